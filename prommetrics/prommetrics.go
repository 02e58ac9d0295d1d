// Package prommetrics exports valloc metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	pm := prommetrics.New(reg)
//	a, _ := valloc.New(64<<20, valloc.WithMetricsCollector(pm))
//	...
//	pm.Observe(a.Stats()) // refresh the arena gauges
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/valloc"
)

const namespace = "valloc"

// Collector implements valloc.MetricsCollector on top of Prometheus metrics.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	bytes       *prometheus.CounterVec
	reallocs    *prometheus.CounterVec
	capacity    prometheus.Gauge
	available   prometheus.Gauge
	largestFree prometheus.Gauge
	chunks      *prometheus.GaugeVec
	fragment    prometheus.Gauge
}

var _ valloc.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg. A nil reg
// leaves the metrics unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of allocator operations",
			Buckets:   prometheus.ExponentialBuckets(50e-9, 4, 10),
		}, []string{"op", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes allocated, freed, read or written",
		}, []string{"op"}),
		reallocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reallocs_total",
			Help:      "Successful reallocations by strategy",
		}, []string{"strategy"}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_capacity_bytes",
			Help:      "Arena capacity in bytes",
		}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_available_bytes",
			Help:      "Free bytes in the arena",
		}),
		largestFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_largest_free_bytes",
			Help:      "Largest allocation that can currently succeed",
		}),
		chunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_chunks",
			Help:      "Number of chunks by state",
		}, []string{"state"}),
		fragment: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_fragmentation_ratio",
			Help:      "Share of free bytes outside the largest free chunk (0.0-1.0)",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.opLatency,
			c.bytes,
			c.reallocs,
			c.capacity,
			c.available,
			c.largestFree,
			c.chunks,
			c.fragment,
		)
	}
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) RecordAlloc(size int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("alloc", status(err)).Observe(d.Seconds())
	if err == nil {
		c.bytes.WithLabelValues("alloc").Add(float64(size))
	}
}

func (c *Collector) RecordFree(size int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("free", status(err)).Observe(d.Seconds())
	if err == nil {
		c.bytes.WithLabelValues("free").Add(float64(size))
	}
}

func (c *Collector) RecordRealloc(_, _ int, moved bool, d time.Duration, err error) {
	c.opLatency.WithLabelValues("realloc", status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	strategy := "in_place"
	if moved {
		strategy = "move"
	}
	c.reallocs.WithLabelValues(strategy).Inc()
}

func (c *Collector) RecordAccess(op valloc.AccessOp, n int, d time.Duration, err error) {
	c.opLatency.WithLabelValues(string(op), status(err)).Observe(d.Seconds())
	if err == nil {
		c.bytes.WithLabelValues(string(op)).Add(float64(n))
	}
}

// Observe refreshes the arena gauges from s.
func (c *Collector) Observe(s valloc.Stats) {
	c.capacity.Set(float64(s.Capacity))
	c.available.Set(float64(s.Available))
	c.largestFree.Set(float64(s.LargestFree))
	c.chunks.WithLabelValues("in_use").Set(float64(s.LiveChunks))
	c.chunks.WithLabelValues("free").Set(float64(s.FreeChunks))
	c.fragment.Set(s.Fragmentation())
}
