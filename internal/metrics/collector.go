// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector. It renders text/plain in Prometheus exposition format without
// pulling in the heavy prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector.
var Collector = NewCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Counter returns or creates the named counter.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[name]; ok {
		return ctr
	}
	ctr := &Counter{help: help}
	c.counters[name] = ctr
	return ctr
}

// Gauge returns or creates the named gauge.
func (c *MetricsCollector) Gauge(name, help string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[name]; ok {
		return g
	}
	g := &Gauge{help: help}
	c.gauges[name] = g
	return g
}

// Histogram returns or creates the named histogram with the given upper
// bucket bounds.
func (c *MetricsCollector) Histogram(name, help string, bounds []float64) *Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.histograms[name]; ok {
		return h
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	h := &Histogram{help: help, bounds: sorted, buckets: make([]int64, len(sorted))}
	c.histograms[name] = h
	return h
}

// Handler renders all metrics in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP streambot_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE streambot_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "streambot_uptime_seconds %d\n", int64(time.Since(c.startTime).Seconds()))

		c.mu.Lock()
		defer c.mu.Unlock()

		for _, name := range sortedKeys(c.counters) {
			ctr := c.counters[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, ctr.help, name, name, ctr.Value())
		}
		for _, name := range sortedKeys(c.gauges) {
			g := c.gauges[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, g.help, name, name, g.Value())
		}
		for _, name := range sortedKeys(c.histograms) {
			h := c.histograms[name]
			h.mu.Lock()
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", name, h.help, name)
			for i, le := range h.bounds {
				fmt.Fprintf(&sb, "%s_bucket{le=\"%g\"} %d\n", name, le, h.buckets[i])
			}
			fmt.Fprintf(&sb, "%s_bucket{le=\"+Inf\"} %d\n", name, h.count)
			fmt.Fprintf(&sb, "%s_count %d\n", name, h.count)
			fmt.Fprintf(&sb, "%s_sum %f\n", name, h.sum)
			h.mu.Unlock()
		}

		fmt.Fprint(w, sb.String())
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pipeline metrics used across the application.
var (
	EventsTotal      = Collector.Counter("streambot_chat_events_total", "Inbound chat events seen")
	EnqueuedTotal    = Collector.Counter("streambot_requests_enqueued_total", "Requests placed on the ingestion queue")
	SuppressedTotal  = Collector.Counter("streambot_events_suppressed_total", "Events suppressed by the resolver")
	BatchesTotal     = Collector.Counter("streambot_batches_total", "Batches handed to the dispatcher")
	DispatchesTotal  = Collector.Counter("streambot_dispatches_total", "Backend generation attempts")
	DispatchFailures = Collector.Counter("streambot_dispatch_failures_total", "Backend calls answered with fallback text")
	SendFailures     = Collector.Counter("streambot_send_failures_total", "Outbound chunk deliveries that failed")
	QueueDepth       = Collector.Gauge("streambot_queue_depth", "Current ingestion queue depth")

	DispatchLatency = Collector.Histogram("streambot_dispatch_latency_seconds", "Successful generation latency in seconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60})
)
