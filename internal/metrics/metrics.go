// Package metrics provides Prometheus metrics for the collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the collector.
type Metrics struct {
	// Work unit metrics
	UnitsCompleted *prometheus.CounterVec
	UnitsPartial   *prometheus.CounterVec
	UnitsFailed    *prometheus.CounterVec
	UnitsSkipped   *prometheus.CounterVec

	// Row metrics
	RowsWritten *prometheus.CounterVec
	RowsSkipped *prometheus.CounterVec

	// Fetch metrics
	FetchDuration prometheus.Histogram
	FetchRetries  prometheus.Counter
	FetchErrors   prometheus.Counter

	// Timing metrics
	UnitDuration *prometheus.HistogramVec
}

var defaultMetrics *Metrics

// Init initializes the global metrics. Call once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "keiba_collector"
	}

	unitLabels := []string{"data_type"}

	m := &Metrics{
		UnitsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_completed_total",
				Help:      "Total number of work units completed",
			},
			unitLabels,
		),
		UnitsPartial: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_partial_total",
				Help:      "Total number of work units completed with gaps",
			},
			unitLabels,
		),
		UnitsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_failed_total",
				Help:      "Total number of work units that failed",
			},
			unitLabels,
		),
		UnitsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_skipped_total",
				Help:      "Total number of work units skipped (already complete)",
			},
			unitLabels,
		),
		RowsWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Total number of rows appended to output files",
			},
			unitLabels,
		),
		RowsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_skipped_total",
				Help:      "Total number of rows skipped as duplicate natural keys",
			},
			unitLabels,
		),
		FetchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time to fetch one page, including retries",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
			},
		),
		FetchRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Total number of fetch retry attempts",
			},
		),
		FetchErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Total number of fetches that exhausted their retries",
			},
		),
		UnitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unit_duration_seconds",
				Help:      "Time to collect and persist one work unit",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~1000s
			},
			unitLabels,
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, or nil if Init was not called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus scraping. Blocks until
// the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

func (m *Metrics) IncUnitsCompleted(dataType string) { m.UnitsCompleted.WithLabelValues(dataType).Inc() }
func (m *Metrics) IncUnitsPartial(dataType string)   { m.UnitsPartial.WithLabelValues(dataType).Inc() }
func (m *Metrics) IncUnitsFailed(dataType string)    { m.UnitsFailed.WithLabelValues(dataType).Inc() }
func (m *Metrics) IncUnitsSkipped(dataType string)   { m.UnitsSkipped.WithLabelValues(dataType).Inc() }

func (m *Metrics) AddRowsWritten(dataType string, n float64) {
	m.RowsWritten.WithLabelValues(dataType).Add(n)
}

func (m *Metrics) AddRowsSkipped(dataType string, n float64) {
	m.RowsSkipped.WithLabelValues(dataType).Add(n)
}

func (m *Metrics) ObserveFetchDuration(secs float64) { m.FetchDuration.Observe(secs) }
func (m *Metrics) AddFetchRetries(n float64)         { m.FetchRetries.Add(n) }
func (m *Metrics) IncFetchErrors()                   { m.FetchErrors.Inc() }

func (m *Metrics) ObserveUnitDuration(dataType string, secs float64) {
	m.UnitDuration.WithLabelValues(dataType).Observe(secs)
}
