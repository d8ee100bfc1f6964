package mqttc

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// atomicFloat64 stores a float64 as raw bits so counters and gauges can be
// updated without a lock.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *atomicFloat64) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// MemoryMetrics keeps every instrument in process memory. It backs the unit
// tests and works for small programs that want to inspect client state
// directly.
type MemoryMetrics struct {
	mu         sync.RWMutex
	counters   map[string]*memoryCounter
	gauges     map[string]*memoryGauge
	histograms map[string]*memoryHistogram
}

// NewMemoryMetrics creates an empty in-memory metrics registry.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]*memoryCounter),
		gauges:     make(map[string]*memoryGauge),
		histograms: make(map[string]*memoryHistogram),
	}
}

// instrumentKey collapses a metric name and label set into one registry key.
// Labels are sorted first, so equal sets reach the same instrument no matter
// the map iteration order.
func instrumentKey(name string, labels MetricLabels) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// Counter returns the counter for the name and label set, creating it on
// first use.
func (m *MemoryMetrics) Counter(name string, labels MetricLabels) Counter {
	key := instrumentKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok {
		c = &memoryCounter{}
		m.counters[key] = c
	}
	return c
}

// Gauge returns the gauge for the name and label set, creating it on first
// use.
func (m *MemoryMetrics) Gauge(name string, labels MetricLabels) Gauge {
	key := instrumentKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.gauges[key]
	if !ok {
		g = &memoryGauge{}
		m.gauges[key] = g
	}
	return g
}

// Histogram returns the histogram for the name and label set, creating it
// on first use.
func (m *MemoryMetrics) Histogram(name string, labels MetricLabels) Histogram {
	key := instrumentKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.histograms[key]
	if !ok {
		h = &memoryHistogram{}
		m.histograms[key] = h
	}
	return h
}

// GetCounter looks up a counter without creating it. It returns nil when the
// instrument was never touched.
func (m *MemoryMetrics) GetCounter(name string, labels MetricLabels) Counter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.counters[instrumentKey(name, labels)]; ok {
		return c
	}
	return nil
}

// GetGauge looks up a gauge without creating it.
func (m *MemoryMetrics) GetGauge(name string, labels MetricLabels) Gauge {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if g, ok := m.gauges[instrumentKey(name, labels)]; ok {
		return g
	}
	return nil
}

// GetHistogram looks up a histogram without creating it.
func (m *MemoryMetrics) GetHistogram(name string, labels MetricLabels) Histogram {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if h, ok := m.histograms[instrumentKey(name, labels)]; ok {
		return h
	}
	return nil
}

type memoryCounter struct {
	value atomicFloat64
}

func (c *memoryCounter) Inc()              { c.value.Add(1) }
func (c *memoryCounter) Add(delta float64) { c.value.Add(delta) }
func (c *memoryCounter) Value() float64    { return c.value.Load() }

type memoryGauge struct {
	value atomicFloat64
}

func (g *memoryGauge) Set(value float64) { g.value.Store(value) }
func (g *memoryGauge) Inc()              { g.value.Add(1) }
func (g *memoryGauge) Dec()              { g.value.Add(-1) }
func (g *memoryGauge) Add(delta float64) { g.value.Add(delta) }
func (g *memoryGauge) Sub(delta float64) { g.value.Add(-delta) }
func (g *memoryGauge) Value() float64    { return g.value.Load() }

type memoryHistogram struct {
	count atomic.Uint64
	sum   atomicFloat64
}

func (h *memoryHistogram) Observe(value float64) {
	h.count.Add(1)
	h.sum.Add(value)
}

func (h *memoryHistogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

func (h *memoryHistogram) Count() uint64 { return h.count.Load() }
func (h *memoryHistogram) Sum() float64  { return h.sum.Load() }
