package qute

import (
	"log/slog"
	"sync"

	"github.com/mladedav/qute/internal/packets"
)

// subscribeTracker mirrors sentPublishTracker's request/response
// correlation for SUBSCRIBE<->SUBACK and UNSUBSCRIBE<->UNSUBACK, each with
// its own independent 16-bit identifier namespace. Grounded on the
// teacher's logic.go handleSuback/handleUnsuback and requests.go
// internalSubscribe/internalUnsubscribe.
type subscribeTracker struct {
	log *slog.Logger

	subIDs   *idAllocator
	unsubIDs *idAllocator

	mu              sync.Mutex
	pendingSuback   map[uint16]*token
	pendingUnsuback map[uint16]*token
}

func newSubscribeTracker(log *slog.Logger) *subscribeTracker {
	return &subscribeTracker{
		log:             log,
		subIDs:          newIDAllocator(),
		unsubIDs:        newIDAllocator(),
		pendingSuback:   make(map[uint16]*token),
		pendingUnsuback: make(map[uint16]*token),
	}
}

// prepareSubscribe assigns a packet id to pkt and registers the waiter.
func (t *subscribeTracker) prepareSubscribe(pkt *packets.SubscribePacket) (*token, error) {
	id, err := t.subIDs.allocate()
	if err != nil {
		return nil, err
	}
	pkt.PacketID = id

	tok := newToken()
	t.mu.Lock()
	t.pendingSuback[id] = tok
	t.mu.Unlock()
	return tok, nil
}

// prepareUnsubscribe assigns a packet id to pkt and registers the waiter.
func (t *subscribeTracker) prepareUnsubscribe(pkt *packets.UnsubscribePacket) (*token, error) {
	id, err := t.unsubIDs.allocate()
	if err != nil {
		return nil, err
	}
	pkt.PacketID = id

	tok := newToken()
	t.mu.Lock()
	t.pendingUnsuback[id] = tok
	t.mu.Unlock()
	return tok, nil
}

// handleSuback completes the waiter for the SUBACK's packet id. Any
// per-filter reason code >= 0x80 surfaces as ErrSubscriptionFailed.
func (t *subscribeTracker) handleSuback(p *packets.SubackPacket) {
	t.mu.Lock()
	tok, ok := t.pendingSuback[p.PacketID]
	if ok {
		delete(t.pendingSuback, p.PacketID)
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug("suback for unknown packet id", "pkid", p.PacketID)
		return
	}
	t.subIDs.release(p.PacketID)

	var err error
	for _, code := range p.ReturnCodes {
		if code >= 0x80 {
			err = &MqttError{ReasonCode: ReasonCode(code), Parent: ErrSubscriptionFailed}
			break
		}
	}
	tok.complete(err)
}

// handleUnsuback completes the waiter for the UNSUBACK's packet id.
func (t *subscribeTracker) handleUnsuback(p *packets.UnsubackPacket) {
	t.mu.Lock()
	tok, ok := t.pendingUnsuback[p.PacketID]
	if ok {
		delete(t.pendingUnsuback, p.PacketID)
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug("unsuback for unknown packet id", "pkid", p.PacketID)
		return
	}
	t.unsubIDs.release(p.PacketID)

	var err error
	for _, code := range p.ReasonCodes {
		if code >= 0x80 {
			err = &MqttError{ReasonCode: ReasonCode(code)}
			break
		}
	}
	tok.complete(err)
}

// abort completes every outstanding waiter with ErrClientDisconnected.
func (t *subscribeTracker) abort() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, tok := range t.pendingSuback {
		tok.complete(ErrClientDisconnected)
		delete(t.pendingSuback, id)
	}
	for id, tok := range t.pendingUnsuback {
		tok.complete(ErrClientDisconnected)
		delete(t.pendingUnsuback, id)
	}
}
