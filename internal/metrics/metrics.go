package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors shared by the binaries. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	fetchSuccess   *prometheus.CounterVec
	fetchFailure   *prometheus.CounterVec
	itemsFetched   *prometheus.CounterVec
	recordsDropped *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheWriteErrs prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "source_fetch_success_total",
			Help:      "Successful fetches per source",
		}, []string{"source"}),
		fetchFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "source_fetch_failure_total",
			Help:      "Failed fetches per source (network, HTTP, auth, parse)",
		}, []string{"source"}),
		itemsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "source_items_total",
			Help:      "Raw items returned per source",
		}, []string{"source"}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "records_dropped_total",
			Help:      "Records dropped by the normalizer per source",
		}, []string{"source"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "cache_hits_total",
			Help:      "Cache reads served without refreshing",
		}, []string{"set"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "cache_misses_total",
			Help:      "Cache reads that triggered a refresh",
		}, []string{"set"}),
		cacheWriteErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agenda",
			Name:      "cache_write_errors_total",
			Help:      "Failed cache file writes",
		}),
	}

	reg.MustRegister(
		m.fetchSuccess,
		m.fetchFailure,
		m.itemsFetched,
		m.recordsDropped,
		m.cacheHits,
		m.cacheMisses,
		m.cacheWriteErrs,
	)
	return m
}

func (m *Metrics) FetchSuccess(source string, items int) {
	if m == nil {
		return
	}
	m.fetchSuccess.WithLabelValues(source).Inc()
	m.itemsFetched.WithLabelValues(source).Add(float64(items))
}

func (m *Metrics) FetchFailure(source string) {
	if m == nil {
		return
	}
	m.fetchFailure.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordDropped(source string) {
	if m == nil {
		return
	}
	m.recordsDropped.WithLabelValues(source).Inc()
}

func (m *Metrics) CacheHit(set string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(set).Inc()
}

func (m *Metrics) CacheMiss(set string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(set).Inc()
}

func (m *Metrics) CacheWriteError() {
	if m == nil {
		return
	}
	m.cacheWriteErrs.Inc()
}
