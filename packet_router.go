package qute

import (
	"context"
	"log/slog"

	"github.com/mladedav/qute/internal/packets"
)

// publishDispatcher receives inbound PUBLISH packets admitted by the
// Received-Publish tracker and routes them to registered handlers. The
// Topic Router implements this; kept as an interface here so the Packet
// Router does not depend on the Extractor & Handler System's internals.
type publishDispatcher interface {
	dispatch(ctx context.Context, p *packets.PublishPacket)
}

// packetRouter ties the Connection and the four trackers together,
// translating protocol events on either side into the other. Grounded on
// the teacher's logic.go handleIncoming dispatch switch and requests.go's
// internalPublish/internalSubscribe/internalUnsubscribe, restructured per
// the spec's explicit two-phase outbound dispatch and the mutex-release-
// before-await concurrency invariant.
type packetRouter struct {
	log *slog.Logger

	conn *Connection

	sentPublish     *sentPublishTracker
	receivedPublish *receivedPublishTracker
	subscribe       *subscribeTracker
	connect         *connectTracker

	dispatcher publishDispatcher
}

func newPacketRouter(conn *Connection, auth Authenticator, dispatcher publishDispatcher, log *slog.Logger) *packetRouter {
	if log == nil {
		log = slog.Default()
	}
	return &packetRouter{
		log:             log,
		conn:            conn,
		sentPublish:     newSentPublishTracker(log),
		receivedPublish: newReceivedPublishTracker(log),
		subscribe:       newSubscribeTracker(log),
		connect:         newConnectTracker(auth, log),
		dispatcher:      dispatcher,
	}
}

// RouteReceived dispatches an inbound packet to the tracker that owns it.
// Any reply packet it produces is transmitted via RouteSent so outbound
// state (e.g. the Sent-Publish tracker's PUBREL bookkeeping) stays
// consistent whether the reply originated locally or from this path.
func (r *packetRouter) RouteReceived(ctx context.Context, p packets.Packet) error {
	switch pkt := p.(type) {
	case *packets.ConnackPacket:
		return r.connect.handleConnack(pkt)

	case *packets.PingrespPacket:
		r.connect.handlePingresp()
		return nil

	case *packets.PublishPacket:
		dispatch, reply := r.receivedPublish.admit(pkt)
		if dispatch && r.dispatcher != nil {
			r.dispatcher.dispatch(ctx, pkt)
		}
		if reply != nil {
			return r.RouteSent(ctx, reply).Await()
		}
		return nil

	case *packets.PubackPacket:
		r.sentPublish.handlePuback(pkt)
		return nil

	case *packets.PubrecPacket:
		if pubrel, ok := r.sentPublish.handlePubrec(pkt); ok {
			return r.RouteSent(ctx, pubrel).Await()
		}
		return nil

	case *packets.PubrelPacket:
		pubcomp := r.receivedPublish.handlePubrel(pkt)
		return r.RouteSent(ctx, pubcomp).Await()

	case *packets.PubcompPacket:
		r.sentPublish.handlePubcomp(pkt)
		return nil

	case *packets.SubackPacket:
		r.subscribe.handleSuback(pkt)
		return nil

	case *packets.UnsubackPacket:
		r.subscribe.handleUnsuback(pkt)
		return nil

	case *packets.AuthPacket:
		reply, err := r.connect.handleAuth(pkt)
		if err != nil {
			return err
		}
		if reply != nil {
			return r.RouteSent(ctx, reply).Await()
		}
		return nil

	case *packets.DisconnectPacket:
		r.log.Info("server sent disconnect", "reason_code", pkt.ReasonCode)
		r.connect.handleDisconnect()
		return nil

	default:
		r.log.Warn("received packet type unreachable for a client", "type", p.Type())
		return nil
	}
}

// pendingSend is the outcome of RouteSent's prepare phase: a completion
// future to await once transmission succeeds.
type pendingSend struct {
	ctx context.Context
	err error
	fut *SendFuture
	tok *token
}

// Await transmits the packet and then awaits the owning tracker's
// completion signal, per §4.2's "transmit then await" ordering.
func (p *pendingSend) Await() error {
	if p.err != nil {
		return p.err
	}
	if err := p.fut.Await(); err != nil {
		return err
	}
	if p.tok == nil {
		return nil
	}
	return p.tok.Wait(p.ctx)
}

// RouteSent prepares an outbound packet (assigning an identifier and
// registering it with the owning tracker, entirely while that tracker's
// own mutex is held) and serializes it. The returned pendingSend performs
// the actual transmission and then awaits the tracker's completion signal
// when Await is called - never while any tracker mutex is held.
func (r *packetRouter) RouteSent(ctx context.Context, p packets.Packet) *pendingSend {
	var tok *token
	var err error

	switch pkt := p.(type) {
	case *packets.PublishPacket:
		tok, err = r.sentPublish.prepare(pkt)
	case *packets.SubscribePacket:
		tok, err = r.subscribe.prepareSubscribe(pkt)
	case *packets.UnsubscribePacket:
		tok, err = r.subscribe.prepareUnsubscribe(pkt)
	case *packets.ConnectPacket:
		tok = r.connect.prepareConnect()
	}

	if err != nil {
		return &pendingSend{err: err}
	}

	fut := r.conn.Send(ctx, p)
	return &pendingSend{ctx: ctx, fut: fut, tok: tok}
}

// abort tears down every outstanding waiter of the Sent-Publish and
// Subscribe trackers, used by Shutdown/connection teardown so no Publish
// or Subscribe caller blocks forever on a future that will never resolve.
// The Connect tracker's CONNACK token and PINGRESP waiters are not touched.
func (r *packetRouter) abort() {
	r.sentPublish.abort()
	r.subscribe.abort()
}
