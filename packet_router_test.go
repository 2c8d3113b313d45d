package qute

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mladedav/qute/internal/packets"
)

type recordingDispatcher struct {
	received []*packets.PublishPacket
}

func (d *recordingDispatcher) dispatch(_ context.Context, p *packets.PublishPacket) {
	d.received = append(d.received, p)
}

func newTestPacketRouter(t *testing.T, dispatcher publishDispatcher) (*packetRouter, net.Conn) {
	t.Helper()
	client, peer := net.Pipe()
	t.Cleanup(func() { client.Close(); peer.Close() })

	conn := NewConnection(client, 0, nil)
	return newPacketRouter(conn, nil, dispatcher, slog.Default()), peer
}

func TestPacketRouterRouteSentPublishQoS0(t *testing.T) {
	router, peer := newTestPacketRouter(t, nil)

	go func() {
		buf := make([]byte, 64)
		peer.Read(buf)
	}()

	err := router.RouteSent(context.Background(), &packets.PublishPacket{Topic: "a", QoS: 0}).Await()
	if err != nil {
		t.Fatalf("Await() = %v", err)
	}
}

func TestPacketRouterRouteSentPublishQoS1AwaitsPuback(t *testing.T) {
	router, peer := newTestPacketRouter(t, nil)

	go func() {
		buf := make([]byte, 64)
		peer.Read(buf)
	}()

	pkt := &packets.PublishPacket{Topic: "a", QoS: 1}
	pending := router.RouteSent(context.Background(), pkt)
	if pkt.PacketID == 0 {
		t.Fatal("expected non-zero packet id after RouteSent")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := router.RouteReceived(context.Background(), &packets.PubackPacket{PacketID: pkt.PacketID}); err != nil {
			t.Errorf("RouteReceived() = %v", err)
		}
	}()

	if err := pending.Await(); err != nil {
		t.Fatalf("Await() = %v", err)
	}
}

func TestPacketRouterInboundQoS1SendsPuback(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	router, peer := newTestPacketRouter(t, dispatcher)

	peerConn := NewConnection(peer, 0, nil)

	done := make(chan error, 1)
	go func() {
		done <- router.RouteReceived(context.Background(), &packets.PublishPacket{Topic: "a", QoS: 1, PacketID: 9})
	}()

	pkt, err := peerConn.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv() = %v", err)
	}
	puback, ok := pkt.(*packets.PubackPacket)
	if !ok {
		t.Fatalf("Recv() = %T, want *packets.PubackPacket", pkt)
	}
	if puback.PacketID != 9 {
		t.Errorf("PacketID = %d, want 9", puback.PacketID)
	}

	if err := <-done; err != nil {
		t.Fatalf("RouteReceived() = %v", err)
	}
	if len(dispatcher.received) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(dispatcher.received))
	}
}

func TestPacketRouterInboundQoS2Handshake(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	router, peer := newTestPacketRouter(t, dispatcher)
	peerConn := NewConnection(peer, 0, nil)

	done := make(chan error, 1)
	go func() {
		done <- router.RouteReceived(context.Background(), &packets.PublishPacket{Topic: "a", QoS: 2, PacketID: 11})
	}()

	pkt, err := peerConn.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv() (pubrec) = %v", err)
	}
	if _, ok := pkt.(*packets.PubrecPacket); !ok {
		t.Fatalf("Recv() = %T, want *packets.PubrecPacket", pkt)
	}
	if err := <-done; err != nil {
		t.Fatalf("RouteReceived() (publish) = %v", err)
	}

	done = make(chan error, 1)
	go func() {
		done <- router.RouteReceived(context.Background(), &packets.PubrelPacket{PacketID: 11})
	}()

	pkt, err = peerConn.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv() (pubcomp) = %v", err)
	}
	if _, ok := pkt.(*packets.PubcompPacket); !ok {
		t.Fatalf("Recv() = %T, want *packets.PubcompPacket", pkt)
	}
	if err := <-done; err != nil {
		t.Fatalf("RouteReceived() (pubrel) = %v", err)
	}

	if len(dispatcher.received) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(dispatcher.received))
	}
}

func TestPacketRouterConnackOutsideHandshake(t *testing.T) {
	router, _ := newTestPacketRouter(t, nil)

	err := router.RouteReceived(context.Background(), &packets.ConnackPacket{ReturnCode: packets.ConnAccepted})
	if !errors.Is(err, ErrUnexpectedPacket) {
		t.Errorf("RouteReceived() = %v, want ErrUnexpectedPacket", err)
	}
}

func TestPacketRouterRouteSentPreparePropagatesError(t *testing.T) {
	router, _ := newTestPacketRouter(t, nil)

	// Exhaust the sent-publish identifier namespace so prepare fails
	// before any bytes are written.
	for i := 0; i < 65535; i++ {
		if _, err := router.sentPublish.ids.allocate(); err != nil {
			t.Fatalf("allocate() = %v", err)
		}
	}

	err := router.RouteSent(context.Background(), &packets.PublishPacket{Topic: "a", QoS: 1}).Await()
	if !errors.Is(err, ErrIdentifierExhausted) {
		t.Errorf("Await() = %v, want ErrIdentifierExhausted", err)
	}
}
