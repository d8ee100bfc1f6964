package mqttc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeepAliveTracker(t *testing.T) {
	base := time.Now()

	t.Run("disabled when zero", func(t *testing.T) {
		k := newKeepAliveTracker(0)
		assert.False(t, k.enabled())
		assert.False(t, k.shouldPing(base.Add(time.Hour)))
		assert.False(t, k.expired(base.Add(time.Hour)))
	})

	t.Run("ping due after one idle interval", func(t *testing.T) {
		k := newKeepAliveTracker(10)
		k.reset(base)

		assert.False(t, k.shouldPing(base.Add(5*time.Second)))
		assert.True(t, k.shouldPing(base.Add(10*time.Second)))
	})

	t.Run("outbound traffic defers the ping", func(t *testing.T) {
		k := newKeepAliveTracker(10)
		k.reset(base)

		k.touchSent(base.Add(8 * time.Second))
		assert.False(t, k.shouldPing(base.Add(12*time.Second)))
		assert.True(t, k.shouldPing(base.Add(18*time.Second)))
	})

	t.Run("expired after two silent intervals", func(t *testing.T) {
		k := newKeepAliveTracker(10)
		k.reset(base)

		assert.False(t, k.expired(base.Add(19*time.Second)))
		assert.True(t, k.expired(base.Add(20*time.Second)))
	})

	t.Run("no second ping while one is outstanding", func(t *testing.T) {
		k := newKeepAliveTracker(10)
		k.reset(base)

		assert.True(t, k.shouldPing(base.Add(10*time.Second)))
		k.pingSent()
		k.touchSent(base.Add(10 * time.Second))

		// Interval elapses again with no PINGRESP; the expiry check
		// takes over instead of a duplicate PINGREQ.
		assert.False(t, k.shouldPing(base.Add(20*time.Second)))

		k.touchRecv(base.Add(12 * time.Second))
		assert.True(t, k.shouldPing(base.Add(20*time.Second)))
	})

	t.Run("inbound traffic clears outstanding ping", func(t *testing.T) {
		k := newKeepAliveTracker(10)
		k.reset(base)

		k.pingSent()
		assert.True(t, k.pingOutstanding)

		k.touchRecv(base.Add(time.Second))
		assert.False(t, k.pingOutstanding)
		assert.False(t, k.expired(base.Add(20*time.Second)))
	})

	t.Run("server override shortens the interval", func(t *testing.T) {
		k := newKeepAliveTracker(60)
		k.setInterval(10)
		k.reset(base)

		assert.True(t, k.shouldPing(base.Add(10*time.Second)))
		assert.Equal(t, 5*time.Second, k.tickInterval())
	})
}
