package qute

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mladedav/qute/internal/packets"
)

// connectState enumerates the CONNECT/CONNACK handshake's lifecycle.
type connectState int

const (
	connectStateDisconnected connectState = iota
	connectStateConnectSent
	connectStateConnected
)

// connectTracker owns the CONNECT->CONNACK handshake, the CONNACK's
// negotiated server capabilities, the AUTH challenge/response exchange,
// and PINGREQ/PINGRESP liveness notification. Grounded on the teacher's
// client.go performHandshake/processConnackProperties and the ping
// bookkeeping in writeLoop, plus auth_handler.go's handleAuth.
type connectTracker struct {
	log  *slog.Logger
	auth Authenticator

	mu          sync.Mutex
	state       connectState
	connackTok  *token
	serverCaps  serverCapabilities
	pongWaiters []chan struct{}
}

// serverCapabilities holds the negotiated limits read from CONNACK
// properties, used by the Client Facade to fail publish/subscribe
// requests fast rather than let the broker reject them. Grounded on the
// teacher's client.go serverCapabilities/extractServerCapabilities.
type serverCapabilities struct {
	MaximumPacketSize           uint32
	ReceiveMaximum              uint16
	TopicAliasMaximum           uint16
	MaximumQoS                  uint8
	RetainAvailable             bool
	WildcardAvailable           bool
	SubscriptionIDAvailable     bool
	SharedSubscriptionAvailable bool
	AssignedClientIdentifier    string
	ResponseInformation         string
	ServerReference             string
	ServerKeepAlive             uint16
	SessionExpiryInterval       uint32
}

func newConnectTracker(auth Authenticator, log *slog.Logger) *connectTracker {
	return &connectTracker{log: log, auth: auth}
}

// prepareConnect transitions Disconnected -> ConnectSent and returns the
// token that resolves once CONNACK is processed.
func (t *connectTracker) prepareConnect() *token {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = connectStateConnectSent
	t.connackTok = newToken()
	return t.connackTok
}

// handleConnack validates the handshake is in the expected state, records
// server capabilities, and completes the CONNECT token.
func (t *connectTracker) handleConnack(p *packets.ConnackPacket) error {
	t.mu.Lock()
	if t.state != connectStateConnectSent {
		t.mu.Unlock()
		return &MqttError{Message: "received CONNACK outside handshake", Parent: ErrUnexpectedPacket}
	}

	t.state = connectStateConnected
	t.serverCaps = extractServerCapabilities(p.Properties)
	tok := t.connackTok
	t.connackTok = nil
	t.mu.Unlock()

	var err error
	if p.ReturnCode != packets.ConnAccepted {
		err = connackError(p)
	}
	if tok != nil {
		tok.complete(err)
	}
	return nil
}

// handleDisconnect transitions back to Disconnected, per §4.5.
func (t *connectTracker) handleDisconnect() {
	t.mu.Lock()
	t.state = connectStateDisconnected
	t.mu.Unlock()
}

// handlePingresp notifies any goroutines waiting on PONG liveness.
func (t *connectTracker) handlePingresp() {
	t.mu.Lock()
	waiters := t.pongWaiters
	t.pongWaiters = nil
	t.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// awaitPong registers a waiter for the next PINGRESP.
func (t *connectTracker) awaitPong() <-chan struct{} {
	ch := make(chan struct{})
	t.mu.Lock()
	t.pongWaiters = append(t.pongWaiters, ch)
	t.mu.Unlock()
	return ch
}

func (t *connectTracker) capabilities() serverCapabilities {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.serverCaps
}

// validatePublish fails fast against the negotiated server capabilities
// rather than let the broker reject a PUBLISH the client could have
// caught locally. Grounded on the teacher's serverCapabilities fields,
// which previously had no caller enforcing any of them.
func (caps serverCapabilities) validatePublish(qos QoS, payloadLen int, retain bool) error {
	if uint8(qos) > caps.MaximumQoS {
		return &MqttError{Message: fmt.Sprintf("publish QoS %d exceeds server's maximum QoS %d", qos, caps.MaximumQoS), Parent: ErrServerCapabilityExceeded}
	}
	if retain && !caps.RetainAvailable {
		return &MqttError{Message: "publish requests retain but server does not support retained messages", Parent: ErrServerCapabilityExceeded}
	}
	if caps.MaximumPacketSize > 0 && uint32(payloadLen) > caps.MaximumPacketSize {
		return &MqttError{Message: fmt.Sprintf("payload size %d exceeds server's maximum packet size %d", payloadLen, caps.MaximumPacketSize), Parent: ErrServerCapabilityExceeded}
	}
	return nil
}

// validateSubscribe fails fast when a filter uses a feature the server
// did not advertise support for.
func (caps serverCapabilities) validateSubscribe(filter string) error {
	if !caps.WildcardAvailable && (strings.Contains(filter, "+") || strings.Contains(filter, "#")) {
		return &MqttError{Message: fmt.Sprintf("subscribe filter %q uses wildcards but server does not support wildcard subscriptions", filter), Parent: ErrServerCapabilityExceeded}
	}
	return nil
}

// handleAuth processes an AUTH packet from the broker during an extended
// authentication exchange and returns the AUTH response to transmit, if
// the configured Authenticator produced one.
func (t *connectTracker) handleAuth(p *packets.AuthPacket) (*packets.AuthPacket, error) {
	if t.auth == nil {
		t.log.Warn("received AUTH packet but no authenticator configured")
		return nil, nil
	}

	var challengeData []byte
	if p.Properties != nil {
		challengeData = p.Properties.AuthenticationData
	}

	if p.Properties != nil && p.Properties.Presence&packets.PresAuthenticationMethod != 0 {
		if p.Properties.AuthenticationMethod != t.auth.Method() {
			return nil, &MqttError{Message: "authentication method mismatch", Parent: ErrUnexpectedPacket}
		}
	}

	respData, err := t.auth.HandleChallenge(challengeData, p.ReasonCode)
	if err != nil {
		return nil, err
	}

	return &packets.AuthPacket{
		ReasonCode: packets.AuthReasonContinue,
		Properties: &packets.Properties{
			AuthenticationMethod: t.auth.Method(),
			AuthenticationData:   respData,
			Presence:             packets.PresAuthenticationMethod,
		},
	}, nil
}

// connackError translates a non-accepted CONNACK return code into the
// taxonomy's sentinel errors.
func connackError(connack *packets.ConnackPacket) error {
	err := &MqttError{
		ReasonCode: ReasonCode(connack.ReturnCode),
		Parent:     ErrConnectionRefused,
	}
	if connack.Properties != nil && connack.Properties.Presence&packets.PresReasonString != 0 {
		err.Message = connack.Properties.ReasonString
	}

	switch connack.ReturnCode {
	case packets.ConnRefusedBadUsernameOrPassword:
		err.Parent = ErrBadUsernameOrPassword
	case packets.ConnRefusedNotAuthorized:
		err.Parent = ErrNotAuthorized
	}
	return err
}

// extractServerCapabilities extracts server capabilities from CONNACK
// properties, defaulting per the MQTT v5 spec when absent.
func extractServerCapabilities(props *packets.Properties) serverCapabilities {
	caps := serverCapabilities{
		ReceiveMaximum:              65535,
		MaximumQoS:                  2,
		RetainAvailable:             true,
		WildcardAvailable:           true,
		SubscriptionIDAvailable:     true,
		SharedSubscriptionAvailable: true,
	}

	if props == nil {
		return caps
	}

	if props.Presence&packets.PresMaximumPacketSize != 0 {
		caps.MaximumPacketSize = props.MaximumPacketSize
	}
	if props.Presence&packets.PresReceiveMaximum != 0 {
		caps.ReceiveMaximum = props.ReceiveMaximum
	}
	if props.Presence&packets.PresTopicAliasMaximum != 0 {
		caps.TopicAliasMaximum = props.TopicAliasMaximum
	}
	if props.Presence&packets.PresMaximumQoS != 0 {
		caps.MaximumQoS = props.MaximumQoS
	}
	if props.Presence&packets.PresRetainAvailable != 0 {
		caps.RetainAvailable = props.RetainAvailable
	}
	if props.Presence&packets.PresWildcardSubscriptionAvailable != 0 {
		caps.WildcardAvailable = props.WildcardSubscriptionAvailable
	}
	if props.Presence&packets.PresSubscriptionIdentifierAvailable != 0 {
		caps.SubscriptionIDAvailable = props.SubscriptionIdentifierAvailable
	}
	if props.Presence&packets.PresSharedSubscriptionAvailable != 0 {
		caps.SharedSubscriptionAvailable = props.SharedSubscriptionAvailable
	}
	if props.Presence&packets.PresAssignedClientIdentifier != 0 {
		caps.AssignedClientIdentifier = props.AssignedClientIdentifier
	}
	if props.Presence&packets.PresResponseInformation != 0 {
		caps.ResponseInformation = props.ResponseInformation
	}
	if props.Presence&packets.PresServerReference != 0 {
		caps.ServerReference = props.ServerReference
	}
	if props.Presence&packets.PresServerKeepAlive != 0 {
		caps.ServerKeepAlive = props.ServerKeepAlive
	}
	if props.Presence&packets.PresSessionExpiryInterval != 0 {
		caps.SessionExpiryInterval = props.SessionExpiryInterval
	}

	return caps
}
