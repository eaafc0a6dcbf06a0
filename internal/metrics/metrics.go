// Package metrics provides the centralized Prometheus metrics registry for
// the loader.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	DatesProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nse_analytics",
		Name:      "dates_processed_total",
		Help:      "Trading dates that reached a terminal state, by outcome",
	}, []string{"outcome"})
	RowsInsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nse_analytics",
		Name:      "rows_inserted_total",
		Help:      "Total bhavcopy rows bulk-inserted",
	})
	RowsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nse_analytics",
		Name:      "rows_dropped_total",
		Help:      "Source rows dropped during normalization",
	})
	RetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nse_analytics",
		Name:      "retries_total",
		Help:      "Full-cycle retries triggered by mismatch or write failure",
	})
	CountMismatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nse_analytics",
		Name:      "count_mismatches_total",
		Help:      "Validation attempts where source and persisted counts differed",
	})
	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nse_analytics",
		Name:      "downloads_total",
		Help:      "Bhavcopy downloads, by result",
	}, []string{"result"})
)

// Gauge metrics
var (
	LastRunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nse_analytics",
		Name:      "last_run_success",
		Help:      "1 when the most recent loader run validated every date",
	})
	LastValidatedDate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nse_analytics",
		Name:      "last_validated_date",
		Help:      "Most recent trade date (YYYYMMDD) that reached terminal success",
	})
)

// Histogram metrics
var (
	DateLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nse_analytics",
		Name:      "date_load_duration_seconds",
		Help:      "Duration of one trading date's full load cycle in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})
	AggregateQueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nse_analytics",
		Name:      "aggregate_query_duration_seconds",
		Help:      "Duration of monthly aggregate queries in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(DatesProcessedTotal)
		registry.MustRegister(RowsInsertedTotal)
		registry.MustRegister(RowsDroppedTotal)
		registry.MustRegister(RetriesTotal)
		registry.MustRegister(CountMismatchesTotal)
		registry.MustRegister(DownloadsTotal)

		registry.MustRegister(LastRunSuccess)
		registry.MustRegister(LastValidatedDate)

		registry.MustRegister(DateLoadDuration)
		registry.MustRegister(AggregateQueryDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// Serve exposes the metrics handler on addr in a background goroutine.
func Serve(addr, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
