package mqttc

import (
	"time"
)

// MetricType represents the type of metric.
type MetricType int

const (
	// MetricTypeCounter is a monotonically increasing counter.
	MetricTypeCounter MetricType = 0
	// MetricTypeGauge is a value that can go up and down.
	MetricTypeGauge MetricType = 1
	// MetricTypeHistogram tracks distribution of values.
	MetricTypeHistogram MetricType = 2
)

// String returns the string representation of the metric type.
func (t MetricType) String() string {
	switch t {
	case MetricTypeCounter:
		return "counter"
	case MetricTypeGauge:
		return "gauge"
	case MetricTypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge

	// Histogram returns a histogram metric.
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Inc increments the gauge by 1.
	Inc()

	// Dec decrements the gauge by 1.
	Dec()

	// Add adds the given value to the gauge.
	Add(delta float64)

	// Sub subtracts the given value from the gauge.
	Sub(delta float64)

	// Value returns the current value.
	Value() float64
}

// Histogram tracks the distribution of values.
type Histogram interface {
	// Observe records a value.
	Observe(value float64)

	// ObserveDuration records a duration in seconds.
	ObserveDuration(d time.Duration)

	// Count returns the number of observations.
	Count() uint64

	// Sum returns the sum of all observations.
	Sum() float64
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a metrics sink that discards everything.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return &noOpCounter{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return &noOpGauge{}
}

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram {
	return &noOpHistogram{}
}

type noOpCounter struct{}

func (n *noOpCounter) Inc()           {}
func (n *noOpCounter) Add(_ float64)  {}
func (n *noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (n *noOpGauge) Set(_ float64)  {}
func (n *noOpGauge) Inc()           {}
func (n *noOpGauge) Dec()           {}
func (n *noOpGauge) Add(_ float64)  {}
func (n *noOpGauge) Sub(_ float64)  {}
func (n *noOpGauge) Value() float64 { return 0 }

type noOpHistogram struct{}

func (n *noOpHistogram) Observe(_ float64)               {}
func (n *noOpHistogram) ObserveDuration(_ time.Duration) {}
func (n *noOpHistogram) Count() uint64                   { return 0 }
func (n *noOpHistogram) Sum() float64                    { return 0 }

// Standard metric names for the client.
const (
	// MetricConnectsTotal is the total number of successful connects.
	MetricConnectsTotal = "mqtt_client_connects_total"

	// MetricReconnectsTotal is the total number of reconnection attempts.
	MetricReconnectsTotal = "mqtt_client_reconnects_total"

	// MetricMessagesReceived is the total number of messages received.
	MetricMessagesReceived = "mqtt_client_messages_received_total"

	// MetricMessagesSent is the total number of messages sent.
	MetricMessagesSent = "mqtt_client_messages_sent_total"

	// MetricBytesReceived is the total bytes received.
	MetricBytesReceived = "mqtt_client_bytes_received_total"

	// MetricBytesSent is the total bytes sent.
	MetricBytesSent = "mqtt_client_bytes_sent_total"

	// MetricInflight is the current number of unacknowledged outgoing publishes.
	MetricInflight = "mqtt_client_inflight_publishes"

	// MetricPendingAcks is the current number of inbound publishes awaiting
	// a manual acknowledgment.
	MetricPendingAcks = "mqtt_client_pending_acks"

	// MetricPublishLatency is the publish-to-acknowledgment latency.
	MetricPublishLatency = "mqtt_client_publish_latency_seconds"

	// MetricPacketsSent is the total number of packets sent.
	MetricPacketsSent = "mqtt_client_packets_sent_total"

	// MetricPacketsReceived is the total number of packets received.
	MetricPacketsReceived = "mqtt_client_packets_received_total"
)

// Standard metric labels.
const (
	// LabelPacketType is the packet type label.
	LabelPacketType = "packet_type"

	// LabelQoS is the QoS level label.
	LabelQoS = "qos"

	// LabelReasonCode is the reason code label.
	LabelReasonCode = "reason_code"
)

// ClientMetrics provides convenience methods for common client metrics.
type ClientMetrics struct {
	metrics Metrics
}

// NewClientMetrics creates a new ClientMetrics instance.
func NewClientMetrics(m Metrics) *ClientMetrics {
	return &ClientMetrics{metrics: m}
}

// Connected records a successful connect.
func (c *ClientMetrics) Connected() {
	c.metrics.Counter(MetricConnectsTotal, nil).Inc()
}

// ReconnectAttempt records a reconnection attempt.
func (c *ClientMetrics) ReconnectAttempt() {
	c.metrics.Counter(MetricReconnectsTotal, nil).Inc()
}

// MessageReceived records a received message.
func (c *ClientMetrics) MessageReceived(qos byte) {
	labels := MetricLabels{LabelQoS: string(rune('0' + qos))}
	c.metrics.Counter(MetricMessagesReceived, labels).Inc()
}

// MessageSent records a sent message.
func (c *ClientMetrics) MessageSent(qos byte) {
	labels := MetricLabels{LabelQoS: string(rune('0' + qos))}
	c.metrics.Counter(MetricMessagesSent, labels).Inc()
}

// BytesReceived records received bytes.
func (c *ClientMetrics) BytesReceived(n int) {
	c.metrics.Counter(MetricBytesReceived, nil).Add(float64(n))
}

// BytesSent records sent bytes.
func (c *ClientMetrics) BytesSent(n int) {
	c.metrics.Counter(MetricBytesSent, nil).Add(float64(n))
}

// InflightUp records a publish entering the unacknowledged window.
func (c *ClientMetrics) InflightUp() {
	c.metrics.Gauge(MetricInflight, nil).Inc()
}

// InflightDown records a publish leaving the unacknowledged window.
func (c *ClientMetrics) InflightDown() {
	c.metrics.Gauge(MetricInflight, nil).Dec()
}

// PendingAckUp records a delivery awaiting manual acknowledgment.
func (c *ClientMetrics) PendingAckUp() {
	c.metrics.Gauge(MetricPendingAcks, nil).Inc()
}

// PendingAckDown records a completed manual acknowledgment.
func (c *ClientMetrics) PendingAckDown() {
	c.metrics.Gauge(MetricPendingAcks, nil).Dec()
}

// PublishLatency records publish-to-acknowledgment latency.
func (c *ClientMetrics) PublishLatency(d time.Duration) {
	c.metrics.Histogram(MetricPublishLatency, nil).ObserveDuration(d)
}

// PacketReceived records a received packet.
func (c *ClientMetrics) PacketReceived(packetType PacketType) {
	labels := MetricLabels{LabelPacketType: packetType.String()}
	c.metrics.Counter(MetricPacketsReceived, labels).Inc()
}

// PacketSent records a sent packet.
func (c *ClientMetrics) PacketSent(packetType PacketType) {
	labels := MetricLabels{LabelPacketType: packetType.String()}
	c.metrics.Counter(MetricPacketsSent, labels).Inc()
}
