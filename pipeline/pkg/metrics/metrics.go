package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "t3_pipeline_build_info",
			Help: "Build information of the T3 pipeline",
		},
		[]string{"version", "commit", "date"},
	)

	RowsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t3_pipeline_rows_extracted_total",
			Help: "Rows read from the operational store",
		},
		[]string{"table"},
	)

	RowsCleaned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t3_pipeline_rows_cleaned_total",
			Help: "Rows that passed cleaning",
		},
		[]string{"table"},
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t3_pipeline_rows_dropped_total",
			Help: "Rows dropped by cleaning, by first failing rule",
		},
		[]string{"table", "reason"},
	)

	BoundaryRowsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "t3_pipeline_boundary_rows_skipped_total",
			Help: "Transactions re-fetched at the watermark that were already in the lake",
		},
	)

	WatermarkLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t3_pipeline_watermark_lookups_total",
			Help: "Watermark lookups by outcome",
		},
		[]string{"status"},
	)

	ObjectsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t3_pipeline_objects_uploaded_total",
			Help: "Parquet objects promoted into the lake",
		},
		[]string{"table"},
	)

	BytesUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t3_pipeline_bytes_uploaded_total",
			Help: "Parquet bytes promoted into the lake",
		},
		[]string{"table"},
	)

	UploadRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t3_pipeline_upload_retries_total",
			Help: "Object store calls retried after a transient error",
		},
		[]string{"operation"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t3_pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "t3_pipeline_run_duration_seconds",
			Help:    "Duration of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		},
	)

	LastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "t3_pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
	)
)

// Push sends the default registry to a Prometheus pushgateway under the given job name.
func Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
