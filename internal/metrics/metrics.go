// Package metrics exposes the Prometheus instrumentation for every stage
// of the pipeline, grounded on the teacher's internal/metrics/metrics.go.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsIngestedTotal counts lines the scanner handed to the buffer.
	RecordsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_records_ingested_total",
		Help: "Total log records ingested per source",
	}, []string{"source", "source_type"})

	// RecordsIndexedTotal counts records that reached a committed segment.
	RecordsIndexedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_records_indexed_total",
		Help: "Total log records committed to the index",
	}, []string{"shard"})

	// RecordsDroppedTotal counts records lost to backpressure failures; must
	// stay at 0 under correct backpressure.
	RecordsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_records_dropped_total",
		Help: "Total log records dropped (should remain zero under correct backpressure)",
	}, []string{"reason"})

	// BufferSize is the current number of pending records in the Log Buffer.
	BufferSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logvault_buffer_size",
		Help: "Current number of records pending in the log buffer",
	})

	// BufferUtilization is BufferSize / max_records.
	BufferUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logvault_buffer_utilization",
		Help: "Current log buffer utilization fraction (0.0-1.0)",
	})

	// BufferFlushesTotal counts flush operations, labeled by trigger.
	BufferFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_buffer_flushes_total",
		Help: "Total buffer flushes",
	}, []string{"trigger"})

	// IndexCommitDuration measures commit latency per shard.
	IndexCommitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logvault_index_commit_duration_seconds",
		Help:    "Time spent committing a batch to a shard",
		Buckets: prometheus.DefBuckets,
	}, []string{"shard"})

	// SearchDuration measures query execution latency.
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logvault_search_duration_seconds",
		Help:    "Time spent executing a search plan",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// ShardHealth is 1 if a shard is serving normally, 0 if degraded.
	ShardHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logvault_shard_health",
		Help: "1 if shard is healthy, 0 if degraded/read-only",
	}, []string{"shard"})

	// RetentionDeletedTotal counts records removed by a retention pass.
	RetentionDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_retention_deleted_total",
		Help: "Total records deleted by retention policy application",
	}, []string{"policy"})

	// AlarmEvaluationsTotal counts alarm evaluation passes.
	AlarmEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_alarm_evaluations_total",
		Help: "Total alarm evaluation passes",
	}, []string{"alarm"})

	// AlarmNotificationsTotal counts notification dispatch attempts.
	AlarmNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_alarm_notifications_total",
		Help: "Total notification dispatch attempts",
	}, []string{"channel", "result"})

	// ErrorsTotal counts errors by component and kind.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_errors_total",
		Help: "Total errors by component and error kind",
	}, []string{"component", "error_kind"})

	// ScannerFilesTracked is the number of files the scanner currently tails.
	ScannerFilesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logvault_scanner_files_tracked",
		Help: "Number of files currently tracked by the log scanner",
	})

	// ResponseTimeSeconds measures HTTP handler latency.
	ResponseTimeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logvault_http_response_seconds",
		Help:    "HTTP handler response time",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})
)

// RecordProcessingDuration is a small helper mirroring the teacher's
// metrics.RecordProcessingDuration convenience wrapper.
func RecordProcessingDuration(hist *prometheus.HistogramVec, label string, d time.Duration) {
	hist.WithLabelValues(label).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
