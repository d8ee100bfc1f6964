package mqttc

import (
	"time"
)

// keepAliveTracker tracks traffic timing on one connection. PINGREQ is due
// after a full interval without outbound traffic; the connection is
// declared dead after two intervals without inbound traffic.
type keepAliveTracker struct {
	interval        time.Duration
	lastSent        time.Time
	lastRecv        time.Time
	pingOutstanding bool
}

// newKeepAliveTracker creates a tracker for the given keep-alive interval
// in seconds. A zero interval disables keep-alive entirely.
func newKeepAliveTracker(seconds uint16) *keepAliveTracker {
	now := time.Now()
	return &keepAliveTracker{
		interval: time.Duration(seconds) * time.Second,
		lastSent: now,
		lastRecv: now,
	}
}

// setInterval applies a server keep-alive override from CONNACK.
func (k *keepAliveTracker) setInterval(seconds uint16) {
	k.interval = time.Duration(seconds) * time.Second
}

// enabled reports whether keep-alive is active.
func (k *keepAliveTracker) enabled() bool {
	return k.interval > 0
}

// tickInterval returns how often the connection should be checked. Half
// the keep-alive interval keeps the ping within the server's window.
func (k *keepAliveTracker) tickInterval() time.Duration {
	return k.interval / 2
}

// touchSent records outbound traffic.
func (k *keepAliveTracker) touchSent(now time.Time) {
	k.lastSent = now
}

// touchRecv records inbound traffic.
func (k *keepAliveTracker) touchRecv(now time.Time) {
	k.lastRecv = now
	k.pingOutstanding = false
}

// shouldPing reports whether a PINGREQ is due. While a ping is already
// outstanding no second one is sent; the expiry check handles a server
// that never answers.
func (k *keepAliveTracker) shouldPing(now time.Time) bool {
	if !k.enabled() || k.pingOutstanding {
		return false
	}
	return now.Sub(k.lastSent) >= k.interval
}

// pingSent records an outstanding PINGREQ.
func (k *keepAliveTracker) pingSent() {
	k.pingOutstanding = true
}

// expired reports whether the server has gone silent past the tolerated
// window.
func (k *keepAliveTracker) expired(now time.Time) bool {
	if !k.enabled() {
		return false
	}
	return now.Sub(k.lastRecv) >= 2*k.interval
}

// reset restarts the timing on a fresh connection.
func (k *keepAliveTracker) reset(now time.Time) {
	k.lastSent = now
	k.lastRecv = now
	k.pingOutstanding = false
}
