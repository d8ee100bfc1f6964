package mqttc

import (
	"context"
	"net"
)

// UnixDialer connects over a Unix domain socket. The address is the socket
// path, for example "/var/run/mqtt.sock".
type UnixDialer struct{}

// NewUnixDialer creates a Unix socket dialer.
func NewUnixDialer() *UnixDialer {
	return &UnixDialer{}
}

// Dial connects to the socket at the given path.
func (d *UnixDialer) Dial(ctx context.Context, address string) (Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", address)
}
