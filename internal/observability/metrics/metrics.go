package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "solarmine_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	projectionRunTotal   *prometheus.CounterVec
	projectionRunLatency *prometheus.HistogramVec
	projectionDates      prometheus.Counter
	projectionFailures   *prometheus.CounterVec

	marketCollectTotal   *prometheus.CounterVec
	marketCollectLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		projectionRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "projection_runs_total",
				Help: "Total projection runs by result",
			},
			[]string{"result"},
		)
		projectionRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "projection_run_latency_seconds",
				Help:    "Projection run latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		)
		projectionDates = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "projection_dates_total",
				Help: "Total projection dates simulated",
			},
		)
		projectionFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "projection_failures_total",
				Help: "Failed projection runs by error kind and component",
			},
			[]string{"kind", "component"},
		)

		marketCollectTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "market_collect_total",
				Help: "Total market data collections by result",
			},
			[]string{"result"},
		)
		marketCollectLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "market_collect_latency_seconds",
				Help:    "Market data collection latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "result_export_total",
				Help: "Total result export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "result_export_latency_seconds",
				Help:    "Result export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			projectionRunTotal,
			projectionRunLatency,
			projectionDates,
			projectionFailures,
			marketCollectTotal,
			marketCollectLatency,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			prometheus.MustRegister(newStoreCollector(db, logger))
		}
	})
}

// ObserveProjectionRun records run duration and result.
func ObserveProjectionRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if projectionRunTotal != nil {
		projectionRunTotal.WithLabelValues(result).Inc()
	}
	if projectionRunLatency != nil {
		projectionRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddProjectionDates increments the simulated date counter by count.
func AddProjectionDates(count int) {
	if count <= 0 {
		return
	}
	if projectionDates != nil {
		projectionDates.Add(float64(count))
	}
}

// IncProjectionFailure counts a failed run by kind and component.
func IncProjectionFailure(kind, component string) {
	if kind == "" {
		kind = "unknown"
	}
	if component == "" {
		component = "unknown"
	}
	if projectionFailures != nil {
		projectionFailures.WithLabelValues(kind, component).Inc()
	}
}

// ObserveMarketCollect records market collection latency and result.
func ObserveMarketCollect(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if marketCollectTotal != nil {
		marketCollectTotal.WithLabelValues(result).Inc()
	}
	if marketCollectLatency != nil {
		marketCollectLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
