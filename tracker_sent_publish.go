package qute

import (
	"log/slog"
	"sync"

	"github.com/mladedav/qute/internal/packets"
)

// sentPublishTracker holds per-direction state for locally originated
// PUBLISH packets at QoS 1/2, grounded on the teacher's logic.go
// handlePuback/handlePubrec/handlePubcomp and requests.go internalPublish,
// restructured from a single logicLoop-guarded map into its own
// mutex-guarded tracker per the concurrency model.
type sentPublishTracker struct {
	log *slog.Logger
	ids *idAllocator

	mu          sync.Mutex
	pendingAck  map[uint16]*token // QoS 1, awaiting PUBACK
	pendingRec  map[uint16]*token // QoS 2, awaiting PUBREC
	pendingComp map[uint16]struct{} // QoS 2, PUBREC received, awaiting PUBCOMP
}

func newSentPublishTracker(log *slog.Logger) *sentPublishTracker {
	return &sentPublishTracker{
		log:         log,
		ids:         newIDAllocator(),
		pendingAck:  make(map[uint16]*token),
		pendingRec:  make(map[uint16]*token),
		pendingComp: make(map[uint16]struct{}),
	}
}

// prepare assigns a packet identifier (for QoS > 0) and returns the
// completion token the caller should await after transmission. For QoS 0
// the returned token is already complete.
func (t *sentPublishTracker) prepare(pkt *packets.PublishPacket) (*token, error) {
	if pkt.QoS == 0 {
		tok := newToken()
		tok.complete(nil)
		return tok, nil
	}

	id, err := t.ids.allocate()
	if err != nil {
		return nil, err
	}
	pkt.PacketID = id

	tok := newToken()

	t.mu.Lock()
	switch pkt.QoS {
	case 1:
		t.pendingAck[id] = tok
	case 2:
		t.pendingRec[id] = tok
	}
	t.mu.Unlock()

	return tok, nil
}

// handlePuback completes the QoS 1 waiter for id, if any.
func (t *sentPublishTracker) handlePuback(p *packets.PubackPacket) {
	t.mu.Lock()
	tok, ok := t.pendingAck[p.PacketID]
	if ok {
		delete(t.pendingAck, p.PacketID)
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug("puback for unknown packet id", "pkid", p.PacketID)
		return
	}
	t.ids.release(p.PacketID)

	var err error
	if p.ReasonCode >= 0x80 {
		err = &MqttError{ReasonCode: ReasonCode(p.ReasonCode)}
	}
	tok.complete(err)
}

// handlePubrec completes the QoS 2 waiter (the design's chosen
// "delivered at PUBREC" semantics) and returns the PUBREL reply packet to
// transmit, moving the id from pendingRec into pendingComp.
func (t *sentPublishTracker) handlePubrec(p *packets.PubrecPacket) (*packets.PubrelPacket, bool) {
	t.mu.Lock()
	tok, ok := t.pendingRec[p.PacketID]
	if ok {
		delete(t.pendingRec, p.PacketID)
		t.pendingComp[p.PacketID] = struct{}{}
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug("pubrec for unknown packet id", "pkid", p.PacketID)
		return nil, false
	}

	var err error
	if p.ReasonCode >= 0x80 {
		err = &MqttError{ReasonCode: ReasonCode(p.ReasonCode)}
		t.mu.Lock()
		delete(t.pendingComp, p.PacketID)
		t.mu.Unlock()
		t.ids.release(p.PacketID)
		tok.complete(err)
		return nil, false
	}

	tok.complete(nil)
	return &packets.PubrelPacket{PacketID: p.PacketID}, true
}

// handlePubcomp clears the local bookkeeping for id; the caller was
// already notified at PUBREC.
func (t *sentPublishTracker) handlePubcomp(p *packets.PubcompPacket) {
	t.mu.Lock()
	_, ok := t.pendingComp[p.PacketID]
	delete(t.pendingComp, p.PacketID)
	t.mu.Unlock()

	if !ok {
		t.log.Debug("pubcomp for unknown packet id", "pkid", p.PacketID)
		return
	}
	t.ids.release(p.PacketID)
}

// abort completes every outstanding waiter with ErrClientDisconnected,
// used by Shutdown/connection teardown.
func (t *sentPublishTracker) abort() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, tok := range t.pendingAck {
		tok.complete(ErrClientDisconnected)
		delete(t.pendingAck, id)
	}
	for id, tok := range t.pendingRec {
		tok.complete(ErrClientDisconnected)
		delete(t.pendingRec, id)
	}
	t.pendingComp = make(map[uint16]struct{})
}
