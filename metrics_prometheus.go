package mqttc

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics on a Prometheus registry. Metrics
// are created lazily and deduplicated by name and label set; labels become
// constant labels on the underlying collector.
//
// The Value, Count, and Sum accessors are served from shadow values kept
// alongside the collectors, since Prometheus does not expose reads.
type PrometheusMetrics struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*promCounter
	gauges     map[string]*promGauge
	histograms map[string]*promHistogram
}

// NewPrometheusMetrics creates a Prometheus-backed metrics sink. A nil
// registerer uses the default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		registerer: reg,
		counters:   make(map[string]*promCounter),
		gauges:     make(map[string]*promGauge),
		histograms: make(map[string]*promHistogram),
	}
}

// Counter returns a counter metric.
func (p *PrometheusMetrics) Counter(name string, labels MetricLabels) Counter {
	key := instrumentKey(name, labels)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[key]; ok {
		return c
	}

	c := &promCounter{
		counter: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        name,
			ConstLabels: prometheus.Labels(labels),
		}),
	}
	p.register(c.counter)
	p.counters[key] = c

	return c
}

// Gauge returns a gauge metric.
func (p *PrometheusMetrics) Gauge(name string, labels MetricLabels) Gauge {
	key := instrumentKey(name, labels)

	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[key]; ok {
		return g
	}

	g := &promGauge{
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        name,
			ConstLabels: prometheus.Labels(labels),
		}),
	}
	p.register(g.gauge)
	p.gauges[key] = g

	return g
}

// Histogram returns a histogram metric.
func (p *PrometheusMetrics) Histogram(name string, labels MetricLabels) Histogram {
	key := instrumentKey(name, labels)

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[key]; ok {
		return h
	}

	h := &promHistogram{
		histogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        name,
			ConstLabels: prometheus.Labels(labels),
		}),
	}
	p.register(h.histogram)
	p.histograms[key] = h

	return h
}

// register swallows AlreadyRegisteredError so two PrometheusMetrics on the
// same registry do not panic each other.
func (p *PrometheusMetrics) register(c prometheus.Collector) {
	if err := p.registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}

type promCounter struct {
	counter prometheus.Counter
	shadow  memoryCounter
}

func (c *promCounter) Inc() {
	c.counter.Inc()
	c.shadow.Inc()
}

func (c *promCounter) Add(delta float64) {
	c.counter.Add(delta)
	c.shadow.Add(delta)
}

func (c *promCounter) Value() float64 {
	return c.shadow.Value()
}

type promGauge struct {
	gauge  prometheus.Gauge
	shadow memoryGauge
}

func (g *promGauge) Set(value float64) {
	g.gauge.Set(value)
	g.shadow.Set(value)
}

func (g *promGauge) Inc() {
	g.gauge.Inc()
	g.shadow.Inc()
}

func (g *promGauge) Dec() {
	g.gauge.Dec()
	g.shadow.Dec()
}

func (g *promGauge) Add(delta float64) {
	g.gauge.Add(delta)
	g.shadow.Add(delta)
}

func (g *promGauge) Sub(delta float64) {
	g.gauge.Sub(delta)
	g.shadow.Sub(delta)
}

func (g *promGauge) Value() float64 {
	return g.shadow.Value()
}

type promHistogram struct {
	histogram prometheus.Histogram
	shadow    memoryHistogram
}

func (h *promHistogram) Observe(value float64) {
	h.histogram.Observe(value)
	h.shadow.Observe(value)
}

func (h *promHistogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

func (h *promHistogram) Count() uint64 {
	return h.shadow.Count()
}

func (h *promHistogram) Sum() float64 {
	return h.shadow.Sum()
}
