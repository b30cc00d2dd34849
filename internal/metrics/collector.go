// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector and the sinks that feed exchange metrics into it. Output is
// text/plain in Prometheus exposition format without pulling in
// prometheus/client_golang.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	counters   sync.Map // name{labels} -> *Counter
	gauges     sync.Map // name{labels} -> *Gauge
	histograms sync.Map // name{labels} -> *Histogram
	startTime  time.Time
	prefix     string
}

// NewMetricsCollector creates a collector whose uptime gauge is named
// <prefix>_uptime_seconds.
func NewMetricsCollector(prefix string) *MetricsCollector {
	if prefix == "" {
		prefix = "wabot"
	}
	return &MetricsCollector{startTime: time.Now(), prefix: prefix}
}

// Prefix is prepended to the names of series derived from recorded metrics.
func (c *MetricsCollector) Prefix() string { return c.prefix }

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the total of all observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Labels renders a tag map as a sorted Prometheus label list.
func Labels(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, tags[k])
	}
	return strings.Join(parts, ",")
}

// --- Registration helpers ---

// Counter returns or creates a counter with the given name and labels.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	actual, _ := c.counters.LoadOrStore(key, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name and labels.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help, labels: labels}
	actual, _ := c.gauges.LoadOrStore(key, g)
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram with the given name and labels.
// A +Inf bucket is always present.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	bs := append([]float64(nil), buckets...)
	sort.Float64s(bs)
	if len(bs) == 0 || !math.IsInf(bs[len(bs)-1], 1) {
		bs = append(bs, math.Inf(1))
	}
	hb := make([]histBucket, len(bs))
	for i, b := range bs {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, help: help, labels: labels, buckets: hb}
	actual, _ := c.histograms.LoadOrStore(key, h)
	return actual.(*Histogram)
}

// --- Prometheus text rendering ---

// sortedValues returns the map's values ordered by key so output is stable.
func sortedValues(m *sync.Map) []any {
	var keys []string
	vals := map[string]any{}
	m.Range(func(k, v any) bool {
		keys = append(keys, k.(string))
		vals[k.(string)] = v
		return true
	})
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = vals[k]
	}
	return out
}

func writeSample(sb *strings.Builder, name, labels string, value any) {
	if labels != "" {
		fmt.Fprintf(sb, "%s{%s} %v\n", name, labels, value)
	} else {
		fmt.Fprintf(sb, "%s %v\n", name, value)
	}
}

// Render writes all metrics in Prometheus text format.
func (c *MetricsCollector) Render() string {
	var sb strings.Builder

	uptime := c.prefix + "_uptime_seconds"
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n", uptime)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", uptime)
	fmt.Fprintf(&sb, "%s %d\n\n", uptime, int64(c.Uptime().Seconds()))

	helpWritten := make(map[string]bool)
	for _, v := range sortedValues(&c.counters) {
		ctr := v.(*Counter)
		if !helpWritten[ctr.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
			helpWritten[ctr.name] = true
		}
		writeSample(&sb, ctr.name, ctr.labels, ctr.Value())
	}

	for _, v := range sortedValues(&c.gauges) {
		g := v.(*Gauge)
		if !helpWritten[g.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
			helpWritten[g.name] = true
		}
		writeSample(&sb, g.name, g.labels, g.Value())
	}

	for _, v := range sortedValues(&c.histograms) {
		h := v.(*Histogram)
		h.mu.Lock()
		if !helpWritten[h.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n", h.name, h.help)
			fmt.Fprintf(&sb, "# TYPE %s histogram\n", h.name)
			helpWritten[h.name] = true
		}
		sep := ""
		if h.labels != "" {
			sep = h.labels + ","
		}
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(&sb, "%s_bucket{%sle=\"%s\"} %d\n", h.name, sep, le, b.count)
		}
		writeSample(&sb, h.name+"_count", h.labels, h.count)
		writeSample(&sb, h.name+"_sum", h.labels, fmt.Sprintf("%f", h.sum))
		h.mu.Unlock()
	}

	return sb.String()
}

// Handler returns an http.HandlerFunc that renders metrics in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Render())
	}
}
