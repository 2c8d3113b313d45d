package qute

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
)

// ContextDialer is an interface for custom network dialing logic.
// It matches the signature of net.Dialer.DialContext.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// clientOptions holds configuration for the MQTT client.
type clientOptions struct {
	// MQTT server address (e.g., "tcp://localhost:1883", "ws://localhost:8883/mqtt")
	Server string

	// Client identifier. If empty and GeneratedClientIDPrefix is set, a
	// random id is generated at connect time.
	ClientID                string
	GeneratedClientIDPrefix string

	// Username for authentication (optional)
	Username string

	// Password for authentication (optional)
	Password string

	// Keep alive interval
	KeepAlive time.Duration

	// Clean session flag (v5: Clean Start)
	CleanSession bool

	// Connection timeout
	ConnectTimeout time.Duration

	// TLS configuration (optional)
	TLSConfig *tls.Config

	// Logger for client events. Defaults to slog.Default() if nil.
	Logger *slog.Logger

	// Limits (0 = use MQTT spec defaults)
	MaxTopicLength    int // Maximum topic length (default: 65535)
	MaxPayloadSize    int // Maximum outgoing payload size (default: 256MB)
	MaxIncomingPacket int // Maximum Packet Size advertised in CONNECT (default: not sent)

	// Will message (optional)
	will *willMessage

	// Lifecycle hooks (optional)
	OnConnect        func(*Client)
	OnConnectionLost func(*Client, error)
	OnServerRedirect func(serverURI string)

	// MQTT v5.0 request flags
	RequestProblemInformation  bool
	RequestResponseInformation bool

	// MQTT v5.0 topic alias maximum (client -> server). 0 = disabled (default).
	TopicAliasMaximum uint16

	// MQTT v5.0 receive maximum (client side flow control). 0 = 65535 (default).
	ReceiveMaximum       uint16
	ReceiveMaximumPolicy LimitPolicy

	// MQTT v5.0 session expiry interval, in seconds. Only used if SessionExpirySet.
	SessionExpiryInterval uint32
	SessionExpirySet      bool

	// MQTT v5.0 User Properties for CONNECT packet
	ConnectUserProperties map[string]string

	// Custom dialer (optional). If set, used instead of net.Dialer/websocket.Dialer.
	Dialer ContextDialer

	// Authenticator for enhanced authentication (optional, CONNECT/AUTH flow).
	Authenticator Authenticator
}

// willMessage represents the Last Will and Testament message.
type willMessage struct {
	Topic      string
	Payload    []byte
	QoS        uint8
	Retained   bool
	Properties *Properties
}

// Option is a functional option for configuring the client.
type Option func(*clientOptions)

// WithClientID sets the client identifier.
//
// The client ID uniquely identifies this client to the MQTT server. When
// neither this option (with a non-empty id) nor WithGeneratedClientIDPrefix
// is given, the client connects with the id "qute".
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.ClientID = id
	}
}

// WithGeneratedClientIDPrefix causes a random client ID of the form
// "<prefix>-<uuid>" to be generated at connect time whenever WithClientID
// was not also given (or was given an empty id).
func WithGeneratedClientIDPrefix(prefix string) Option {
	return func(o *clientOptions) {
		o.GeneratedClientIDPrefix = prefix
	}
}

// resolveClientID returns the configured client id, generating one from
// GeneratedClientIDPrefix if none was set.
func (o *clientOptions) resolveClientID() string {
	if o.ClientID != "" {
		return o.ClientID
	}
	if o.GeneratedClientIDPrefix != "" {
		return o.GeneratedClientIDPrefix + "-" + uuid.NewString()
	}
	return ""
}

// WithCredentials sets the username and password for authentication.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.Username = username
		o.Password = password
	}
}

// WithKeepAlive sets the MQTT keep alive interval (default: 60s).
func WithKeepAlive(duration time.Duration) Option {
	return func(o *clientOptions) {
		o.KeepAlive = duration
	}
}

// WithCleanSession sets the Clean Start flag.
//
// When true (default), the server discards any previous session state and
// subscriptions for this client ID; each connection starts fresh. When
// false, the server resumes prior session state, but that state expires
// immediately on disconnect unless WithSessionExpiryInterval is also set.
//
// Example (persistent session):
//
//	client, err := qute.NewClientBuilder("tcp://localhost:1883",
//	    qute.WithClientID("sensor-1"),
//	    qute.WithCleanSession(false),
//	    qute.WithSessionExpiryInterval(0xFFFFFFFF)).Build(ctx, router)
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.CleanSession = clean
	}
}

// WithConnectTimeout sets the connection timeout (default: 30s).
func WithConnectTimeout(duration time.Duration) Option {
	return func(o *clientOptions) {
		o.ConnectTimeout = duration
	}
}

// WithTLS sets the TLS configuration for secure connections.
// Pass nil for default TLS settings, or provide a custom *tls.Config.
// The server URL should use "tls://", "ssl://", or "mqtts://" scheme, or this option
// will enable TLS for "tcp://" URLs as well.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.TLSConfig = config
	}
}

// WithRequestProblemInformation requests that the server include detailed
// problem information (ReasonString and UserProperties) in error responses.
//
// The value is recorded on the client options but does not change the
// CONNECT packet: the client always sends Request Problem Information = 1.
func WithRequestProblemInformation(request bool) Option {
	return func(o *clientOptions) {
		o.RequestProblemInformation = request
	}
}

// WithRequestResponseInformation requests that the server provide response
// information in the CONNACK packet.
//
// The value is recorded on the client options but does not change the
// CONNECT packet: the client always sends Request Response Information = 1,
// so the server may include a ResponseInformation string in CONNACK.
func WithRequestResponseInformation(request bool) Option {
	return func(o *clientOptions) {
		o.RequestResponseInformation = request
	}
}

// WithTopicAliasMaximum sets the maximum number of topic aliases the client
// will accept from the server when receiving PUBLISH messages.
//
// This value is sent in the CONNECT packet to tell the server how many
// aliases it can send to the client. The server sends its own
// TopicAliasMaximum in CONNACK, telling the client how many aliases it can
// use when publishing (see WithAlias). Outbound aliases are capped at the
// smaller of this value and the server's.
//
// Values:
//   - 0: Topic aliases disabled (default)
//   - 1-65535: Maximum number of aliases to accept from server
func WithTopicAliasMaximum(max uint16) Option {
	return func(o *clientOptions) {
		o.TopicAliasMaximum = max
	}
}

// LimitPolicy names a policy for a limit such as ReceiveMaximum. The client
// records the chosen policy but does not act on it.
type LimitPolicy int

const (
	// LimitPolicyIgnore names the policy of continuing to process past the limit.
	LimitPolicyIgnore LimitPolicy = iota

	// LimitPolicyStrict names the policy of disconnecting with Reason Code
	// 0x93 (Receive Maximum exceeded) when the limit is reached.
	LimitPolicyStrict
)

// WithReceiveMaximum sets the maximum number of unacknowledged QoS 1 and QoS 2
// messages the client is willing to process concurrently. The default value
// is 65535 (maximum allowed by spec). This value is sent in the CONNECT
// packet.
//
// The client does not count inbound in-flight messages against this value;
// the policy argument is stored but changes no behavior.
func WithReceiveMaximum(max uint16, policy LimitPolicy) Option {
	return func(o *clientOptions) {
		o.ReceiveMaximum = max
		o.ReceiveMaximumPolicy = policy
	}
}

// WithSessionExpiryInterval sets how long the server should maintain session
// state after the client disconnects (in seconds).
//
// Values:
//   - 0: Session ends immediately on disconnect (can be explicitly set)
//   - 1-4294967294: Session persists for this many seconds
//   - 4294967295 (0xFFFFFFFF): Session never expires
//
// The server may override this value (e.g., to enforce a maximum limit).
// Combine with WithCleanSession(false) to resume a previous session while
// also controlling how long it persists.
func WithSessionExpiryInterval(seconds uint32) Option {
	return func(o *clientOptions) {
		o.SessionExpiryInterval = seconds
		o.SessionExpirySet = true
	}
}

// WithConnectUserProperties sets the User Properties to be sent in the CONNECT packet.
//
// User Properties are key-value pairs that allow the client to send custom
// metadata to the server during the connection handshake.
func WithConnectUserProperties(props map[string]string) Option {
	return func(o *clientOptions) {
		if o.ConnectUserProperties == nil {
			o.ConnectUserProperties = make(map[string]string)
		}
		for k, v := range props {
			o.ConnectUserProperties[k] = v
		}
	}
}

// WithLogger sets a custom logger for the client.
// If not provided, the client uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.Logger = logger
	}
}

// WithDialer sets a custom dialer for establishing the network connection.
// This enables support for alternative transports (Unix sockets, proxying)
// without adding dependencies for the common case. WebSocket servers
// ("ws://"/"wss://") are handled natively by ClientBuilder.Build and do not require this
// option; set it only to override that behavior.
//
// If provided, the library skips its standard scheme validation and
// delegates connection creation entirely to the dialer.
func WithDialer(dialer ContextDialer) Option {
	return func(o *clientOptions) {
		o.Dialer = dialer
	}
}

// DialFunc is a helper to convert a function to the ContextDialer interface.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext implements ContextDialer.
func (f DialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// WithWill sets the Last Will and Testament (LWT) message.
//
// The LWT is a message the broker publishes on behalf of the client if it
// disconnects unexpectedly (network failure, crash, power loss). It is not
// sent on a graceful Shutdown.
//
// The properties argument is optional and can be used to set Will Properties.
func WithWill(topic string, payload []byte, qos uint8, retained bool, properties ...*Properties) Option {
	return func(o *clientOptions) {
		o.will = &willMessage{
			Topic:    topic,
			Payload:  payload,
			QoS:      qos,
			Retained: retained,
		}
		if len(properties) > 0 && properties[0] != nil {
			o.will.Properties = properties[0]
		}
	}
}

// WithOnConnect sets the handler called when the client connects.
//
// The handler is invoked asynchronously in a separate goroutine.
func WithOnConnect(onConnect func(*Client)) Option {
	return func(o *clientOptions) {
		o.OnConnect = onConnect
	}
}

// WithOnConnectionLost sets the handler called when the connection is lost.
// The error parameter provides the reason for disconnection.
//
// The handler is invoked asynchronously in a separate goroutine to ensure
// it does not block connection teardown.
func WithOnConnectionLost(onConnectionLost func(*Client, error)) Option {
	return func(o *clientOptions) {
		o.OnConnectionLost = onConnectionLost
	}
}

// WithOnServerRedirect sets the handler called when the server provides a
// redirection reference in CONNACK or DISCONNECT.
//
// The server can suggest the client connect elsewhere, for load balancing,
// maintenance, or failover. The handler is stored on the client options,
// but no code path of the client invokes it; the server reference from
// CONNACK is kept only in the negotiated server capabilities, and the
// client does not automatically redirect.
func WithOnServerRedirect(onServerRedirect func(serverURI string)) Option {
	return func(o *clientOptions) {
		o.OnServerRedirect = onServerRedirect
	}
}

// WithAuthenticator sets the authenticator for enhanced (challenge/response)
// authentication.
//
// If set, the client will:
//  1. Send AuthenticationMethod + InitialData in CONNECT
//  2. Handle AUTH challenges from the server via HandleChallenge
//  3. Complete authentication when CONNACK is received
func WithAuthenticator(auth Authenticator) Option {
	return func(o *clientOptions) {
		o.Authenticator = auth
	}
}

// DisconnectOptions holds configuration for a disconnection.
type DisconnectOptions struct {
	ReasonCode ReasonCode
	Properties *Properties
}

// DisconnectOption is a functional option for configuring a disconnection.
// No Client method accepts DisconnectOption values: Client.Shutdown sends
// its DISCONNECT with ReasonCodeNormalDisconnect and no properties.
type DisconnectOption func(*DisconnectOptions)

// WithReason sets the reason code for the DISCONNECT packet.
// Common codes include ReasonCodeNormalDisconnect (default) and
// ReasonCodeDisconnectWithWill.
func WithReason(code ReasonCode) DisconnectOption {
	return func(o *DisconnectOptions) {
		o.ReasonCode = code
	}
}

// WithDisconnectProperties sets the properties for the DISCONNECT packet,
// e.g. to update the session expiry interval or attach a reason string.
func WithDisconnectProperties(props *Properties) DisconnectOption {
	return func(o *DisconnectOptions) {
		o.Properties = props
	}
}

// defaultOptions returns the default client options.
func defaultOptions(server string) *clientOptions {
	return &clientOptions{
		Server:         server,
		KeepAlive:      60 * time.Second,
		CleanSession:   true,
		ConnectTimeout: 30 * time.Second,
		Logger:         slog.Default(),

		// Use MQTT spec defaults (0 = use defaults in validation functions)
		MaxTopicLength:    0,
		MaxPayloadSize:    0,
		MaxIncomingPacket: 0,
	}
}
