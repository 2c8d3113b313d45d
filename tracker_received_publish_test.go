package qute

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mladedav/qute/internal/packets"
)

func TestReceivedPublishTrackerQoS0(t *testing.T) {
	tr := newReceivedPublishTracker(slog.Default())

	dispatch, reply := tr.admit(&packets.PublishPacket{Topic: "a", QoS: 0})
	assert.True(t, dispatch, "QoS 0 should always dispatch")
	assert.Nil(t, reply, "QoS 0 generates no reply packet")
}

func TestReceivedPublishTrackerQoS1(t *testing.T) {
	tr := newReceivedPublishTracker(slog.Default())

	dispatch, reply := tr.admit(&packets.PublishPacket{Topic: "a", QoS: 1, PacketID: 5})
	assert.True(t, dispatch)
	puback, ok := reply.(*packets.PubackPacket)
	require.True(t, ok, "reply = %T, want *packets.PubackPacket", reply)
	assert.Equal(t, uint16(5), puback.PacketID)
}

func TestReceivedPublishTrackerQoS2DedupesBeforePubrel(t *testing.T) {
	tr := newReceivedPublishTracker(slog.Default())
	pkt := &packets.PublishPacket{Topic: "a", QoS: 2, PacketID: 7}

	dispatch, reply := tr.admit(pkt)
	assert.True(t, dispatch, "first admit should dispatch")
	_, ok := reply.(*packets.PubrecPacket)
	require.True(t, ok, "first admit reply = %T, want *packets.PubrecPacket", reply)

	// Redelivery before PUBREL arrives must not redispatch.
	dispatch, reply = tr.admit(pkt)
	assert.False(t, dispatch, "duplicate admit should not dispatch")
	_, ok = reply.(*packets.PubrecPacket)
	assert.True(t, ok, "duplicate admit should still reply with PUBREC")

	pubcomp := tr.handlePubrel(&packets.PubrelPacket{PacketID: 7})
	assert.Equal(t, uint16(7), pubcomp.PacketID)

	// After PUBREL, a fresh redelivery with the same id is admitted again.
	dispatch, _ = tr.admit(pkt)
	assert.True(t, dispatch, "post-PUBREL redelivery should dispatch")
}
