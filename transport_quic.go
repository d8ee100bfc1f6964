package mqttc

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// quicALPN is the ALPN protocol name for MQTT over QUIC.
const quicALPN = "mqtt"

// QUICConn adapts one bidirectional QUIC stream to net.Conn. The whole
// session runs over that single stream.
type QUICConn struct {
	conn   *quic.Conn
	stream *quic.Stream
	mu     sync.Mutex
}

func (c *QUICConn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *QUICConn) Write(b []byte) (int, error) { return c.stream.Write(b) }

// Close shuts the stream down first, then the connection.
func (c *QUICConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stream.Close(); err != nil {
		return err
	}
	return c.conn.CloseWithError(0, "")
}

func (c *QUICConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *QUICConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetDeadline applies the deadline to both directions of the stream.
func (c *QUICConn) SetDeadline(t time.Time) error {
	if err := c.stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.stream.SetWriteDeadline(t)
}

func (c *QUICConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *QUICConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }

// QUICDialer connects over QUIC. QUIC mandates TLS 1.3, and the ALPN
// protocol falls back to "mqtt" when the config does not name one.
type QUICDialer struct {
	TLSConfig  *tls.Config
	QUICConfig *quic.Config
}

// NewQUICDialer builds a dialer around the given TLS config, or a TLS 1.3
// default when nil.
func NewQUICDialer(tlsConfig *tls.Config) *QUICDialer {
	if tlsConfig == nil {
		tlsConfig = defaultQUICTLSConfig()
	}
	return &QUICDialer{TLSConfig: tlsConfig}
}

func defaultQUICTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		NextProtos: []string{quicALPN},
	}
}

// Dial opens the QUIC connection and one bidirectional stream on it.
func (d *QUICDialer) Dial(ctx context.Context, address string) (Conn, error) {
	tlsConfig := d.TLSConfig
	switch {
	case tlsConfig == nil:
		tlsConfig = defaultQUICTLSConfig()
	case len(tlsConfig.NextProtos) == 0:
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{quicALPN}
	}

	conn, err := quic.DialAddr(ctx, address, tlsConfig, d.QUICConfig)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream open failed")
		return nil, err
	}

	return &QUICConn{conn: conn, stream: stream}, nil
}
