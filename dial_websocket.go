package qute

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// dialWebSocket dials a ws:// or wss:// broker URL and wraps the
// resulting *websocket.Conn in a net.Conn adapter so the rest of the
// client (Connection's bufio.Reader/io.Writer framing) never needs to
// know the transport isn't raw TCP. Grounded on the gorilla/websocket
// dialing pattern used by the pack's Skpow1234-PeerVault websocket
// client, adapted from its message-oriented Connect into the byte-stream
// net.Conn shape an MQTT frame reader expects.
func dialWebSocket(ctx context.Context, u *url.URL, opts *clientOptions) (net.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.ConnectTimeout,
		TLSClientConfig:  opts.TLSConfig,
		Subprotocols:     []string{"mqtt"},
	}

	header := http.Header{}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return newWebSocketConn(conn), nil
}

// webSocketConn adapts a *websocket.Conn (message-framed) to net.Conn
// (byte-stream), buffering partial reads of the current binary message
// across multiple Read calls.
type webSocketConn struct {
	ws *websocket.Conn

	readBuf bytes.Buffer
}

func newWebSocketConn(ws *websocket.Conn) *webSocketConn {
	return &webSocketConn{ws: ws}
}

func (c *webSocketConn) Read(b []byte) (int, error) {
	for c.readBuf.Len() == 0 {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.readBuf.Write(data)
	}
	return c.readBuf.Read(b)
}

func (c *webSocketConn) Write(b []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *webSocketConn) Close() error {
	return c.ws.Close()
}

func (c *webSocketConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *webSocketConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *webSocketConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *webSocketConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *webSocketConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
