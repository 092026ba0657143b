package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sig-0/fxcache/types"
)

const namespace = "fxcache"

// Fetch results
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the rate cache collectors.
// A nil *Metrics is valid and records nothing
type Metrics struct {
	cacheLookups  *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	storeEntries  prometheus.Gauge
}

// New creates the collectors and registers them with the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Rate lookups, by source and outcome (hit or refresh)",
			},
			[]string{"source", "outcome"},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_fetches_total",
				Help:      "Remote rate fetches, by source and result",
			},
			[]string{"source", "result"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_fetch_duration_seconds",
				Help:      "Remote rate fetch latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		storeEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_entries",
				Help:      "Entries held by the rate store",
			},
		),
	}
}

// CacheHit records a lookup served from the store
func (m *Metrics) CacheHit(source types.Source) {
	if m == nil {
		return
	}

	m.cacheLookups.WithLabelValues(source.String(), "hit").Inc()
}

// CacheRefresh records a lookup that needed a remote fetch
func (m *Metrics) CacheRefresh(source types.Source) {
	if m == nil {
		return
	}

	m.cacheLookups.WithLabelValues(source.String(), "refresh").Inc()
}

// Fetch records a finished remote fetch
func (m *Metrics) Fetch(source types.Source, took time.Duration, err error) {
	if m == nil {
		return
	}

	result := ResultSuccess
	if err != nil {
		result = ResultError
	}

	m.fetches.WithLabelValues(source.String(), result).Inc()
	m.fetchDuration.WithLabelValues(source.String()).Observe(took.Seconds())
}

// StoreEntries records the current store size
func (m *Metrics) StoreEntries(n int) {
	if m == nil {
		return
	}

	m.storeEntries.Set(float64(n))
}
