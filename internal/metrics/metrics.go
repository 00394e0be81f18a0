package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds all Prometheus metrics for one pipeline run.
// A nil *Registry is valid and records nothing.
type Registry struct {
	*prometheus.Registry

	// Fetch metrics
	fetchRequests *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec

	// Pipeline metrics
	assetsMerged  prometheus.Counter
	assetsSkipped *prometheus.CounterVec
	rowsMerged    prometheus.Counter

	// Backtest metrics
	backtestDays     prometheus.Gauge
	backtestValue    prometheus.Gauge
	backtestReturn   prometheus.Gauge
	backtestDuration prometheus.Histogram
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registry: reg,

		fetchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvt_fetch_requests_total",
				Help: "Total number of upstream requests",
			},
			[]string{"provider", "status"},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nvt_fetch_duration_seconds",
				Help:    "Upstream request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvt_cache_lookups_total",
				Help: "Cache lookups by provider and result",
			},
			[]string{"provider", "result"},
		),
	}

	reg.MustRegister(r.fetchRequests)
	reg.MustRegister(r.fetchDuration)
	reg.MustRegister(r.cacheLookups)

	// Pipeline metrics
	r.assetsMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nvt_assets_merged_total",
			Help: "Assets that produced a merged table",
		},
	)
	r.assetsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvt_assets_skipped_total",
			Help: "Assets skipped, by stage and error code",
		},
		[]string{"stage", "reason"},
	)
	r.rowsMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nvt_rows_merged_total",
			Help: "Rows in the long-format table",
		},
	)
	r.backtestDays = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nvt_backtest_days",
			Help: "Number of simulated dates",
		},
	)
	r.backtestValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nvt_backtest_final_value",
			Help: "Portfolio value after the last simulated date",
		},
	)
	r.backtestReturn = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nvt_backtest_relative_return",
			Help: "Relative return of the run",
		},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nvt_backtest_duration_seconds",
			Help:    "Simulation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	reg.MustRegister(r.assetsMerged)
	reg.MustRegister(r.assetsSkipped)
	reg.MustRegister(r.rowsMerged)
	reg.MustRegister(r.backtestDays)
	reg.MustRegister(r.backtestValue)
	reg.MustRegister(r.backtestReturn)
	reg.MustRegister(r.backtestDuration)

	return r
}

// RecordFetch records one upstream request.
func (r *Registry) RecordFetch(provider string, status int, duration float64) {
	if r == nil {
		return
	}
	r.fetchRequests.WithLabelValues(provider, statusToString(status)).Inc()
	r.fetchDuration.WithLabelValues(provider).Observe(duration)
}

// RecordCache records a cache lookup.
func (r *Registry) RecordCache(provider string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(provider, result).Inc()
}

// RecordAsset records a merged asset and its row count.
func (r *Registry) RecordAsset(rows int) {
	if r == nil {
		return
	}
	r.assetsMerged.Inc()
	r.rowsMerged.Add(float64(rows))
}

// RecordSkip records a skipped asset.
func (r *Registry) RecordSkip(stage, reason string) {
	if r == nil {
		return
	}
	r.assetsSkipped.WithLabelValues(stage, reason).Inc()
}

// RecordBacktest records the outcome of a simulation.
func (r *Registry) RecordBacktest(days int, finalValue, relativeReturn, duration float64) {
	if r == nil {
		return
	}
	r.backtestDays.Set(float64(days))
	r.backtestValue.Set(finalValue)
	r.backtestReturn.Set(relativeReturn)
	r.backtestDuration.Observe(duration)
}

// Export renders all metrics in the Prometheus text exposition format,
// suitable for a node_exporter textfile collector.
func (r *Registry) Export() ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	mfs, err := r.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// statusToString buckets HTTP status codes; 0 means the request never got a response.
func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status >= 100:
		return "1xx"
	default:
		return "error"
	}
}
