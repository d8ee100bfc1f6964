package mqttc

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSubprotocol is the subprotocol name negotiated during the
// WebSocket handshake for MQTT sessions.
const WebSocketSubprotocol = "mqtt"

const wsBufferSize = 4096

// WSConn presents a WebSocket connection as a net.Conn byte stream. MQTT
// frames arrive as binary messages; leftover message bytes are buffered
// between reads.
type WSConn struct {
	conn    *websocket.Conn
	pending []byte
}

func newWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Read returns buffered bytes from the current message, or pulls the next
// binary message off the socket.
func (c *WSConn) Read(b []byte) (int, error) {
	if len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			return 0, ErrProtocolViolation
		}
		c.pending = data
	}

	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write sends the bytes as one binary message.
func (c *WSConn) Write(b []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *WSConn) Close() error         { return c.conn.Close() }
func (c *WSConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *WSConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetDeadline applies the deadline to both directions.
func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *WSConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *WSConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// WSDialer connects over WebSocket. Addresses are ws:// or wss:// URLs.
type WSDialer struct {
	// Dialer performs the WebSocket handshake. Nil uses
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header carries extra HTTP headers for the handshake request.
	Header http.Header
}

func newWebsocketDialer(tlsConfig *tls.Config) *websocket.Dialer {
	return &websocket.Dialer{
		Subprotocols:    []string{WebSocketSubprotocol},
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		TLSClientConfig: tlsConfig,
	}
}

// NewWSDialer creates a WebSocket dialer that negotiates the MQTT
// subprotocol.
func NewWSDialer() *WSDialer {
	return &WSDialer{Dialer: newWebsocketDialer(nil)}
}

// NewWSDialerTLS creates a WebSocket dialer for wss:// addresses using the
// given TLS configuration.
func NewWSDialerTLS(config *tls.Config) *WSDialer {
	return &WSDialer{Dialer: newWebsocketDialer(config)}
}

// Dial performs the WebSocket handshake against the URL.
func (d *WSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := d.Header
	if header == nil {
		header = http.Header{}
	}

	conn, _, err := dialer.DialContext(ctx, address, header)
	if err != nil {
		return nil, err
	}
	return newWSConn(conn), nil
}

// SetProxyFromEnvironment routes the WebSocket handshake through the proxy
// named by the standard environment variables.
func (d *WSDialer) SetProxyFromEnvironment() {
	if d.Dialer == nil {
		d.Dialer = newWebsocketDialer(nil)
	}
	d.Dialer.Proxy = http.ProxyFromEnvironment
}
