package mqttc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricTypeString(t *testing.T) {
	assert.Equal(t, "counter", MetricTypeCounter.String())
	assert.Equal(t, "gauge", MetricTypeGauge.String())
	assert.Equal(t, "histogram", MetricTypeHistogram.String())
}

func TestNoOpMetrics(t *testing.T) {
	metrics := NewNoOpMetrics()

	t.Run("all operations are no-ops", func(t *testing.T) {
		c := metrics.Counter(MetricConnectsTotal, nil)
		c.Inc()
		c.Add(5)
		assert.Equal(t, float64(0), c.Value())

		g := metrics.Gauge(MetricInflight, nil)
		g.Inc()
		g.Set(10)
		assert.Equal(t, float64(0), g.Value())

		h := metrics.Histogram(MetricPublishLatency, nil)
		h.Observe(1.5)
		h.ObserveDuration(time.Second)
		assert.Equal(t, uint64(0), h.Count())
	})
}

func TestClientMetrics(t *testing.T) {
	t.Run("connects and reconnects", func(t *testing.T) {
		m := NewMemoryMetrics()
		cm := NewClientMetrics(m)

		cm.Connected()
		cm.Connected()
		cm.ReconnectAttempt()

		assert.Equal(t, float64(2), m.GetCounter(MetricConnectsTotal, nil).Value())
		assert.Equal(t, float64(1), m.GetCounter(MetricReconnectsTotal, nil).Value())
	})

	t.Run("messages by QoS", func(t *testing.T) {
		m := NewMemoryMetrics()
		cm := NewClientMetrics(m)

		cm.MessageReceived(0)
		cm.MessageReceived(1)
		cm.MessageReceived(1)
		cm.MessageSent(2)

		assert.Equal(t, float64(2), m.GetCounter(MetricMessagesReceived, MetricLabels{LabelQoS: "1"}).Value())
		assert.Equal(t, float64(1), m.GetCounter(MetricMessagesReceived, MetricLabels{LabelQoS: "0"}).Value())
		assert.Equal(t, float64(1), m.GetCounter(MetricMessagesSent, MetricLabels{LabelQoS: "2"}).Value())
	})

	t.Run("byte counters", func(t *testing.T) {
		m := NewMemoryMetrics()
		cm := NewClientMetrics(m)

		cm.BytesReceived(100)
		cm.BytesReceived(200)
		cm.BytesSent(150)

		assert.Equal(t, float64(300), m.GetCounter(MetricBytesReceived, nil).Value())
		assert.Equal(t, float64(150), m.GetCounter(MetricBytesSent, nil).Value())
	})

	t.Run("inflight gauge", func(t *testing.T) {
		m := NewMemoryMetrics()
		cm := NewClientMetrics(m)

		cm.InflightUp()
		cm.InflightUp()
		cm.InflightDown()

		assert.Equal(t, float64(1), m.GetGauge(MetricInflight, nil).Value())
	})

	t.Run("pending acks gauge", func(t *testing.T) {
		m := NewMemoryMetrics()
		cm := NewClientMetrics(m)

		cm.PendingAckUp()
		cm.PendingAckUp()
		cm.PendingAckDown()

		assert.Equal(t, float64(1), m.GetGauge(MetricPendingAcks, nil).Value())
	})

	t.Run("publish latency histogram", func(t *testing.T) {
		m := NewMemoryMetrics()
		cm := NewClientMetrics(m)

		cm.PublishLatency(100 * time.Millisecond)
		cm.PublishLatency(200 * time.Millisecond)

		h := m.GetHistogram(MetricPublishLatency, nil)
		assert.Equal(t, uint64(2), h.Count())
		assert.InDelta(t, 0.3, h.Sum(), 0.001)
	})

	t.Run("packet counters by type", func(t *testing.T) {
		m := NewMemoryMetrics()
		cm := NewClientMetrics(m)

		cm.PacketSent(PacketPUBLISH)
		cm.PacketSent(PacketPUBLISH)
		cm.PacketReceived(PacketPUBACK)

		sent := m.GetCounter(MetricPacketsSent, MetricLabels{LabelPacketType: PacketPUBLISH.String()})
		recv := m.GetCounter(MetricPacketsReceived, MetricLabels{LabelPacketType: PacketPUBACK.String()})
		assert.Equal(t, float64(2), sent.Value())
		assert.Equal(t, float64(1), recv.Value())
	})
}
