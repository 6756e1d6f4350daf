package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "registry"

type Collector struct {
	gatherer prometheus.Gatherer

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	SyncTotal       *prometheus.CounterVec
	SyncDuration    prometheus.Histogram
	DictionaryRows  prometheus.Gauge
	CacheLookups    *prometheus.CounterVec
	CacheEntries    prometheus.Gauge
	LastSyncSuccess prometheus.Gauge
}

// NewCollector registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewCollectorWith(reg, reg)
}

// NewCollectorWith registers on reg and serves from g. Tests pass a
// throwaway registry here so collectors can be created more than once.
func NewCollectorWith(reg prometheus.Registerer, g prometheus.Gatherer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		gatherer: g,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		SyncTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dictionary",
			Name:      "sync_total",
			Help:      "Dictionary sync attempts by outcome (updated, skipped, failed, busy).",
		}, []string{"outcome"}),

		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dictionary",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of dictionary syncs that ran to completion or failure.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		DictionaryRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dictionary",
			Name:      "entries",
			Help:      "Number of entries written by the last successful sync.",
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dictionary",
			Name:      "cache_lookups_total",
			Help:      "Lookup cache reads by result (hit, miss).",
		}, []string{"result"}),

		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dictionary",
			Name:      "cache_entries",
			Help:      "Current number of entries held by the lookup cache.",
		}),

		LastSyncSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dictionary",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last sync that replaced the dictionary. Alert if stale.",
		}),
	}
}

// ObserveSync records one sync attempt.
func (c *Collector) ObserveSync(outcome string, elapsed time.Duration, entries int) {
	c.SyncTotal.WithLabelValues(outcome).Inc()
	if outcome == "busy" {
		return
	}
	c.SyncDuration.Observe(elapsed.Seconds())
	if outcome == "updated" {
		c.DictionaryRows.Set(float64(entries))
		c.LastSyncSuccess.SetToCurrentTime()
	}
}

// ObserveCacheLookup records one lookup cache read.
func (c *Collector) ObserveCacheLookup(hit bool, size int) {
	if hit {
		c.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		c.CacheLookups.WithLabelValues("miss").Inc()
	}
	c.CacheEntries.Set(float64(size))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
