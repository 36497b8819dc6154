package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Prometheus metrics for the backfill pipeline

var (
	// Upstream metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statedge_api_calls_total",
			Help: "Total number of Baseball Savant API calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statedge_api_call_duration_seconds",
			Help:    "Duration of API calls in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	// Store metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statedge_db_queries_total",
			Help: "Total number of store queries",
		},
		[]string{"operation", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statedge_db_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statedge_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statedge_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Collection metrics
	DatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statedge_dates_processed_total",
			Help: "Dates that reached a terminal state, by state",
		},
		[]string{"state"},
	)

	DateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statedge_date_duration_seconds",
			Help:    "Time spent collecting one date",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	RecordsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statedge_records_upserted_total",
			Help: "Pitch records written to the store",
		},
	)

	RecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statedge_records_dropped_total",
			Help: "Raw rows discarded as malformed",
		},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statedge_retries_total",
			Help: "Date retries by the step that failed",
		},
		[]string{"step"},
	)

	// Validation metrics
	ValidationCompleteness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statedge_validation_completeness_percent",
			Help: "Pass rate of the last validation, by check",
		},
		[]string{"check"},
	)

	StoredPitches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statedge_stored_pitches",
			Help: "Pitch records stored for the season at the last report",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statedge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statedge_runs_total",
			Help: "Pipeline runs by command and status",
		},
		[]string{"command", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statedge_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"command"},
	)

	LastSuccessfulBackfill = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statedge_last_successful_backfill_timestamp",
			Help: "Timestamp of the last run that produced a COMPLETE report",
		},
	)
)

// RecordAPICall records an API call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordDBQuery records a store query metric
func RecordDBQuery(operation, table, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordDate records a date reaching a terminal state
func RecordDate(state string, duration float64) {
	DatesProcessed.WithLabelValues(state).Inc()
	DateDuration.Observe(duration)
}

// RecordUpserted adds to the upserted records counter
func RecordUpserted(n int) {
	RecordsUpserted.Add(float64(n))
}

// RecordDropped adds to the dropped records counter
func RecordDropped(n int) {
	RecordsDropped.Add(float64(n))
}

// RecordRetry records a retry scheduled after a failed step
func RecordRetry(step string) {
	RetriesTotal.WithLabelValues(step).Inc()
}

// RecordValidation updates completeness gauges after a validation pass
func RecordValidation(samplePct, entityPct float64, storedPitches int64) {
	ValidationCompleteness.WithLabelValues("sample").Set(samplePct)
	ValidationCompleteness.WithLabelValues("entity").Set(entityPct)
	StoredPitches.Set(float64(storedPitches))
}

// RecordRun records a finished pipeline run
func RecordRun(command, status string, duration float64) {
	RunsTotal.WithLabelValues(command, status).Inc()
	RunDuration.WithLabelValues(command).Observe(duration)

	if status == "COMPLETE" {
		LastSuccessfulBackfill.SetToCurrentTime()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// Push sends the default registry to a Prometheus Pushgateway.
// One-shot runs exit before a scrape could happen, so they push instead.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
