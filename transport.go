package mqttc

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Conn is the byte stream a client session runs over. Any net.Conn works;
// the client only needs deadlines and close on top of read and write.
type Conn interface {
	net.Conn
}

// Dialer establishes the transport for one connection attempt. The context
// bounds the whole handshake, including any TLS exchange.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// TCPDialer connects over plain TCP.
type TCPDialer struct {
	// Timeout bounds the connection attempt. Zero relies on the context
	// alone.
	Timeout time.Duration
}

// Dial connects to a host:port address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects over TLS on TCP.
type TLSDialer struct {
	Config *tls.Config

	// Timeout bounds the connection attempt including the TLS handshake.
	// Zero relies on the context alone.
	Timeout time.Duration
}

// Dial connects to a host:port address and completes the TLS handshake.
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config:    d.Config,
	}
	return dialer.DialContext(ctx, "tcp", address)
}
