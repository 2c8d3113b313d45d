package qute

import (
	"log/slog"
	"sync"

	"github.com/mladedav/qute/internal/packets"
)

// receivedPublishTracker tracks inbound QoS 2 PUBLISH packets between the
// moment PUBREC is sent and PUBREL is received, so a redelivery before the
// handshake completes is deduplicated rather than redispatched to the
// Topic Router. Grounded on the teacher's logic.go receivedQoS2 map in
// handlePublish.
type receivedPublishTracker struct {
	log *slog.Logger

	mu         sync.Mutex
	pendingRel map[uint16]struct{}
}

func newReceivedPublishTracker(log *slog.Logger) *receivedPublishTracker {
	return &receivedPublishTracker{
		log:        log,
		pendingRel: make(map[uint16]struct{}),
	}
}

// admit decides what to do with an inbound PUBLISH: whether to dispatch
// it to handlers, and which reply packet (if any) to send back.
func (t *receivedPublishTracker) admit(p *packets.PublishPacket) (dispatch bool, reply packets.Packet) {
	switch p.QoS {
	case 0:
		return true, nil

	case 1:
		return true, &packets.PubackPacket{PacketID: p.PacketID}

	case 2:
		t.mu.Lock()
		_, duplicate := t.pendingRel[p.PacketID]
		if !duplicate {
			t.pendingRel[p.PacketID] = struct{}{}
		}
		t.mu.Unlock()

		if duplicate {
			t.log.Debug("duplicate qos2 publish before pubrel, suppressing redispatch", "pkid", p.PacketID)
			return false, &packets.PubrecPacket{PacketID: p.PacketID}
		}
		return true, &packets.PubrecPacket{PacketID: p.PacketID}
	}

	return true, nil
}

// handlePubrel completes the QoS 2 inbound handshake and returns the
// PUBCOMP reply.
func (t *receivedPublishTracker) handlePubrel(p *packets.PubrelPacket) *packets.PubcompPacket {
	t.mu.Lock()
	delete(t.pendingRel, p.PacketID)
	t.mu.Unlock()

	return &packets.PubcompPacket{PacketID: p.PacketID}
}
