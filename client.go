package qute

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mladedav/qute/internal/packets"
)

// PublishOptions holds per-call configuration for a single Publish,
// following the teacher's functional-option shape used elsewhere (see
// options.go's clientOptions and its With* builders).
type PublishOptions struct {
	UseAlias bool
	Retain   bool
}

// PublishOption configures a single Publish call.
type PublishOption func(*PublishOptions)

// WithRetain marks the published message for the broker to retain, so
// that it is delivered immediately to future subscribers of the topic.
func WithRetain() PublishOption {
	return func(o *PublishOptions) { o.Retain = true }
}

// Publisher is a cloneable handle bound to a Client's packet router,
// letting a handler publish from within its own execution without
// capturing the Client itself (so a handler can't reach Shutdown, etc.).
// Grounded on the teacher's own Client, narrowed to the publish surface
// per §4.8's "cloneable handle" requirement.
type Publisher struct {
	client *Client
}

// Publish publishes a message through the bound client, identically to
// calling Client.Publish.
func (p Publisher) Publish(ctx context.Context, topic string, qos QoS, payload []byte, opts ...PublishOption) Token {
	return p.client.Publish(ctx, topic, qos, payload, opts...)
}

// Subscriber is a cloneable handle bound to a Client's packet router,
// letting a handler subscribe from within its own execution.
type Subscriber struct {
	client *Client
}

// Subscribe subscribes through the bound client, identically to calling
// Client.Subscribe.
func (s Subscriber) Subscribe(ctx context.Context, topic string) Token {
	return s.client.Subscribe(ctx, topic)
}

// Client is the MQTT v5 client facade: it owns one Connection, the
// Packet Router (and, through it, the four trackers), and the read
// goroutine that feeds inbound packets to the router and onward to the
// Topic Router's dispatch goroutines. Grounded on the teacher's Client in
// client.go, stripped of session persistence/auto-reconnect per the
// Non-goals and restructured around the tracker-owned state machines.
type Client struct {
	opts *clientOptions

	conn   *Connection
	router *packetRouter

	outboundAlias *topicAliasState
	inboundAlias  *inboundAliasState

	dispatch *errgroup.Group

	closeOnce sync.Once
	closed    chan struct{}
}

// ClientBuilder assembles connection options before dialing, following
// the teacher's Dial/DialContext functional-option entry point but
// separated into a builder so the Router (needed to construct the packet
// router's dispatcher before the handshake starts) can be supplied
// explicitly at Build time rather than threaded through variadic options.
type ClientBuilder struct {
	addr string
	opts *clientOptions
}

// NewClientBuilder starts a client builder for addr (e.g.
// "tcp://localhost:1883", "tls://broker:8883", "ws://broker:8080/mqtt").
func NewClientBuilder(addr string, opts ...Option) *ClientBuilder {
	options := defaultOptions(addr)
	for _, o := range opts {
		o(options)
	}
	return &ClientBuilder{addr: addr, opts: options}
}

// Build dials addr, performs the CONNECT/CONNACK handshake, issues the
// Topic Router's single derived SUBSCRIBE, and starts the read goroutine.
func (b *ClientBuilder) Build(ctx context.Context, router *Router) (*Client, error) {
	if b.opts.ClientID == "" && b.opts.GeneratedClientIDPrefix == "" {
		b.opts.ClientID = "qute"
	}
	if b.opts.Logger == nil {
		b.opts.Logger = defaultOptions(b.addr).Logger
	}

	conn, err := dialAddr(ctx, b.addr, b.opts)
	if err != nil {
		return nil, err
	}

	qconn := NewConnection(conn, DefaultConnectionMaxPacketSize, b.opts.Logger)

	c := &Client{
		opts:          b.opts,
		conn:          qconn,
		outboundAlias: newTopicAliasState(b.opts.TopicAliasMaximum, b.opts.Logger),
		inboundAlias:  newInboundAliasState(),
		dispatch:      &errgroup.Group{},
		closed:        make(chan struct{}),
	}

	router.bindClientState(ClientState{
		Publisher:  Publisher{client: c},
		Subscriber: Subscriber{client: c},
	})
	c.router = newPacketRouter(qconn, b.opts.Authenticator, router, b.opts.Logger)

	if err := c.handshake(ctx); err != nil {
		qconn.Close()
		return nil, err
	}

	if caps := c.router.connect.capabilities(); caps.TopicAliasMaximum < c.outboundAlias.max {
		c.outboundAlias.max = caps.TopicAliasMaximum
	}

	go c.readLoop()
	go c.keepAliveLoop()

	if filters := router.filters(); len(filters) > 0 {
		qos := make([]uint8, len(filters))
		for i := range qos {
			qos[i] = uint8(ExactlyOnce)
		}
		sub := &packets.SubscribePacket{Topics: filters, QoS: qos}
		if err := c.router.RouteSent(ctx, sub).Await(); err != nil {
			qconn.Close()
			return nil, err
		}
	}

	if b.opts.OnConnect != nil {
		go b.opts.OnConnect(c)
	}

	return c, nil
}

// handshake sends CONNECT and awaits CONNACK (and any intervening AUTH
// exchange, handled transparently inside RouteReceived), per the
// teacher's connect/performHandshake.
func (c *Client) handshake(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	pkt := c.buildConnectPacket()
	if err := c.router.RouteSent(connectCtx, pkt).Await(); err != nil {
		return err
	}

	for {
		p, err := c.conn.Recv(connectCtx)
		if err != nil {
			return err
		}
		if p == nil {
			return &MqttError{Message: "connection closed during handshake", Parent: ErrTruncated}
		}

		switch p.Type() {
		case packets.CONNACK:
			return c.router.RouteReceived(connectCtx, p)
		case packets.AUTH:
			if err := c.router.RouteReceived(connectCtx, p); err != nil {
				return err
			}
		default:
			return &MqttError{Message: "unexpected packet during handshake", Parent: ErrUnexpectedPacket}
		}
	}
}

// buildConnectPacket mirrors the teacher's buildConnectPacket, generalized
// to the client's resolved client id and the v5-only property set.
func (c *Client) buildConnectPacket() *packets.ConnectPacket {
	pkt := &packets.ConnectPacket{
		ProtocolName:  "MQTT",
		ProtocolLevel: 5,
		CleanSession:  c.opts.CleanSession,
		KeepAlive:     uint16(c.opts.KeepAlive.Seconds()),
		ClientID:      c.opts.resolveClientID(),
		Properties:    &packets.Properties{},
	}

	pkt.Properties.RequestProblemInformation = 1
	pkt.Properties.Presence |= packets.PresRequestProblemInformation
	pkt.Properties.RequestResponseInformation = 1
	pkt.Properties.Presence |= packets.PresRequestResponseInformation

	if c.opts.TopicAliasMaximum > 0 {
		pkt.Properties.TopicAliasMaximum = c.opts.TopicAliasMaximum
		pkt.Properties.Presence |= packets.PresTopicAliasMaximum
	}
	if c.opts.SessionExpirySet {
		pkt.Properties.SessionExpiryInterval = c.opts.SessionExpiryInterval
		pkt.Properties.Presence |= packets.PresSessionExpiryInterval
	}
	if c.opts.ReceiveMaximum > 0 {
		pkt.Properties.ReceiveMaximum = c.opts.ReceiveMaximum
		pkt.Properties.Presence |= packets.PresReceiveMaximum
	}
	if c.opts.MaxIncomingPacket > 0 {
		pkt.Properties.MaximumPacketSize = uint32(c.opts.MaxIncomingPacket)
		pkt.Properties.Presence |= packets.PresMaximumPacketSize
	}
	for k, v := range c.opts.ConnectUserProperties {
		pkt.Properties.UserProperties = append(pkt.Properties.UserProperties, packets.UserProperty{Key: k, Value: v})
	}

	if c.opts.Authenticator != nil {
		pkt.Properties.AuthenticationMethod = c.opts.Authenticator.Method()
		pkt.Properties.Presence |= packets.PresAuthenticationMethod
		if data, err := c.opts.Authenticator.InitialData(); err == nil && len(data) > 0 {
			pkt.Properties.AuthenticationData = data
		}
	}

	if c.opts.Username != "" {
		pkt.UsernameFlag = true
		pkt.Username = c.opts.Username
	}
	if c.opts.Password != "" {
		pkt.PasswordFlag = true
		pkt.Password = c.opts.Password
	}

	if c.opts.will != nil {
		pkt.WillFlag = true
		pkt.WillTopic = c.opts.will.Topic
		pkt.WillMessage = c.opts.will.Payload
		pkt.WillQoS = c.opts.will.QoS
		pkt.WillRetain = c.opts.will.Retained
		if c.opts.will.Properties != nil {
			pkt.WillProperties = toInternalProperties(c.opts.will.Properties)
		}
	}

	return pkt
}

// readLoop is the connection's one long-running read goroutine (§5): it
// loops on Connection.Recv and spawns a tracked dispatch goroutine per
// inbound packet so a slow handler cannot head-of-line block subsequent
// reads.
func (c *Client) readLoop() {
	ctx := context.Background()
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		p, err := c.conn.Recv(ctx)
		if err != nil {
			if c.opts.OnConnectionLost != nil {
				go c.opts.OnConnectionLost(c, err)
			}
			return
		}
		if p == nil {
			if c.opts.OnConnectionLost != nil {
				go c.opts.OnConnectionLost(c, nil)
			}
			return
		}

		if pub, ok := p.(*packets.PublishPacket); ok {
			if err := c.inboundAlias.resolve(pub); err != nil {
				c.opts.Logger.Warn("dropping publish with unresolvable topic alias", "error", err)
				continue
			}
		}

		c.dispatch.Go(func() error {
			if err := c.router.RouteReceived(ctx, p); err != nil {
				c.opts.Logger.Error("routing inbound packet failed", "type", p.Type(), "error", err)
			}
			return nil
		})
	}
}

// negotiatedKeepAlive returns the interval the keep-alive loop pings at:
// the server's CONNACK ServerKeepAlive overrides the requested interval
// when present, per the teacher's own requestedKeepAlive/serverKeepAlive
// override pattern in client.go.
func (c *Client) negotiatedKeepAlive() time.Duration {
	if caps := c.router.connect.capabilities(); caps.ServerKeepAlive > 0 {
		return time.Duration(caps.ServerKeepAlive) * time.Second
	}
	return c.opts.KeepAlive
}

// keepAliveLoop sends PINGREQ at the negotiated interval and consumes the
// Connect Tracker's PONG liveness notification, tearing down the
// connection if the server stops answering. Grounded on the teacher's
// writeLoop ping ticker, simplified around the tracker's awaitPong
// plumbing instead of re-deriving pending-ping bookkeeping.
func (c *Client) keepAliveLoop() {
	interval := c.negotiatedKeepAlive()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 1.5x the interval, matching the teacher's keepalive timeout window.
	timeout := interval + interval/2

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
		}

		pong := c.router.connect.awaitPong()
		if err := c.router.RouteSent(context.Background(), &packets.PingreqPacket{}).Await(); err != nil {
			if c.opts.OnConnectionLost != nil {
				go c.opts.OnConnectionLost(c, err)
			}
			return
		}

		select {
		case <-pong:
		case <-time.After(timeout):
			if c.opts.OnConnectionLost != nil {
				go c.opts.OnConnectionLost(c, ErrKeepAliveTimeout)
			}
			return
		case <-c.closed:
			return
		}
	}
}

// Publish publishes payload to topic at the given QoS and returns a Token
// that resolves once the broker has acknowledged delivery (QoS 1/2) or
// immediately (QoS 0).
func (c *Client) Publish(ctx context.Context, topic string, qos QoS, payload []byte, opts ...PublishOption) Token {
	var options PublishOptions
	for _, o := range opts {
		o(&options)
	}

	if err := validatePublishTopic(topic, c.opts); err != nil {
		return failedToken(err)
	}
	if err := validatePayload(payload, c.opts); err != nil {
		return failedToken(err)
	}
	if err := c.router.connect.capabilities().validatePublish(qos, len(payload), options.Retain); err != nil {
		return failedToken(err)
	}

	pkt := &packets.PublishPacket{
		QoS:      uint8(qos),
		Topic:    topic,
		Payload:  payload,
		UseAlias: options.UseAlias,
		Retain:   options.Retain,
	}
	if options.UseAlias {
		c.outboundAlias.apply(pkt)
	}

	send := c.router.RouteSent(ctx, pkt)
	tok := newToken()
	go func() { tok.complete(send.Await()) }()
	return tok
}

// Subscribe issues a single-filter SUBSCRIBE at QoS ExactlyOnce and
// returns a Token resolving once SUBACK arrives. Ad hoc subscriptions made
// this way are not matched against the Topic Router; use route patterns
// registered on the Router passed to Build for handler dispatch.
func (c *Client) Subscribe(ctx context.Context, topic string) Token {
	if err := validateSubscribeFilter(topic, c.opts); err != nil {
		return failedToken(err)
	}
	if err := c.router.connect.capabilities().validateSubscribe(topic); err != nil {
		return failedToken(err)
	}

	pkt := &packets.SubscribePacket{Topics: []string{topic}, QoS: []uint8{uint8(ExactlyOnce)}}
	send := c.router.RouteSent(ctx, pkt)
	tok := newToken()
	go func() { tok.complete(send.Await()) }()
	return tok
}

// Shutdown sends DISCONNECT, waits for every in-flight dispatch goroutine
// to finish, aborts any outstanding trackers with ErrClientDisconnected,
// and closes the connection.
func (c *Client) Shutdown(ctx context.Context) error {
	var shutdownErr error
	c.closeOnce.Do(func() {
		close(c.closed)

		disconnect := &packets.DisconnectPacket{ReasonCode: uint8(ReasonCodeNormalDisconnect)}
		if err := c.conn.Send(ctx, disconnect).Await(); err != nil {
			shutdownErr = err
		}

		_ = c.dispatch.Wait()

		c.router.abort()
		if err := c.conn.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	})
	return shutdownErr
}

// failedToken returns an already-completed Token carrying err, used when
// a Publish/Subscribe call is rejected before any packet is sent.
func failedToken(err error) Token {
	tok := newToken()
	tok.complete(err)
	return tok
}

// dialAddr establishes the underlying byte stream for addr, dispatching
// on URL scheme. tcp/tls/ssl/mqtt/mqtts are dialed directly; ws/wss are
// handled by dial_websocket.go's dialWebSocket. Grounded on the teacher's
// client.go dialServer.
func dialAddr(ctx context.Context, addr string, opts *clientOptions) (net.Conn, error) {
	if opts.Dialer != nil {
		network := "tcp"
		if u, err := url.Parse(addr); err == nil && u.Scheme != "" {
			network = u.Scheme
		}
		return opts.Dialer.DialContext(ctx, network, addr)
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return dialWebSocket(ctx, u, opts)
	}

	if u.Port() == "" {
		switch u.Scheme {
		case "tls", "ssl", "mqtts":
			u.Host = net.JoinHostPort(u.Host, "8883")
		case "tcp", "mqtt", "":
			u.Host = net.JoinHostPort(u.Host, "1883")
		}
	}

	useTLS := u.Scheme == "tls" || u.Scheme == "ssl" || u.Scheme == "mqtts" || opts.TLSConfig != nil
	if !useTLS && u.Scheme != "tcp" && u.Scheme != "mqtt" {
		return nil, fmt.Errorf("unsupported scheme: %s (supported: tcp, mqtt, tls, ssl, mqtts, ws, wss)", u.Scheme)
	}

	if useTLS {
		tlsConfig := opts.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsConfig}
		return dialer.DialContext(ctx, "tcp", u.Host)
	}

	var d net.Dialer
	return d.DialContext(ctx, "tcp", u.Host)
}
