package qute

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mladedav/qute/internal/packets"
)

func TestSubscribeTrackerSuccess(t *testing.T) {
	tr := newSubscribeTracker(slog.Default())

	pkt := &packets.SubscribePacket{Topics: []string{"a/b"}, QoS: []uint8{1}}
	tok, err := tr.prepareSubscribe(pkt)
	require.NoError(t, err)
	require.NotZero(t, pkt.PacketID)

	tr.handleSuback(&packets.SubackPacket{PacketID: pkt.PacketID, ReturnCodes: []uint8{1}})

	assert.NoError(t, tok.Wait(context.Background()))
}

func TestSubscribeTrackerFailureReasonCode(t *testing.T) {
	tr := newSubscribeTracker(slog.Default())

	pkt := &packets.SubscribePacket{Topics: []string{"a/b"}, QoS: []uint8{1}}
	tok, _ := tr.prepareSubscribe(pkt)

	tr.handleSuback(&packets.SubackPacket{PacketID: pkt.PacketID, ReturnCodes: []uint8{0x87}})

	assert.Error(t, tok.Wait(context.Background()), "rejected reason code should surface as an error")
}

func TestUnsubscribeTrackerSuccess(t *testing.T) {
	tr := newSubscribeTracker(slog.Default())

	pkt := &packets.UnsubscribePacket{Topics: []string{"a/b"}}
	tok, err := tr.prepareUnsubscribe(pkt)
	require.NoError(t, err)

	tr.handleUnsuback(&packets.UnsubackPacket{PacketID: pkt.PacketID, ReasonCodes: []uint8{0}})

	assert.NoError(t, tok.Wait(context.Background()))
}

func TestSubscribeTrackerIndependentNamespaces(t *testing.T) {
	tr := newSubscribeTracker(slog.Default())

	sub := &packets.SubscribePacket{Topics: []string{"a"}, QoS: []uint8{0}}
	_, err := tr.prepareSubscribe(sub)
	require.NoError(t, err)

	unsub := &packets.UnsubscribePacket{Topics: []string{"a"}}
	_, err = tr.prepareUnsubscribe(unsub)
	require.NoError(t, err)

	// Subscribe and unsubscribe ids are allocated from separate namespaces,
	// so the first id from each can collide without interference.
	assert.Equal(t, uint16(1), sub.PacketID)
	assert.Equal(t, uint16(1), unsub.PacketID)
}

func TestSubscribeTrackerAbort(t *testing.T) {
	tr := newSubscribeTracker(slog.Default())

	sub := &packets.SubscribePacket{Topics: []string{"a"}, QoS: []uint8{0}}
	subTok, _ := tr.prepareSubscribe(sub)

	unsub := &packets.UnsubscribePacket{Topics: []string{"a"}}
	unsubTok, _ := tr.prepareUnsubscribe(unsub)

	tr.abort()

	for _, tok := range []*token{subTok, unsubTok} {
		assert.ErrorIs(t, tok.Wait(context.Background()), ErrClientDisconnected)
	}
}
