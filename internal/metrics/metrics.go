// Package metrics holds the Prometheus instruments for the ingestion
// pipeline. A single Metrics value is wired through the services; the
// registry backs the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	UploadsInitiated  prometheus.Counter
	UploadValidations *prometheus.CounterVec
	UploadsReaped     prometheus.Counter

	JobsStarted     prometheus.Counter
	JobsFinished    *prometheus.CounterVec
	JobDuration     prometheus.Histogram
	ChunksProcessed prometheus.Counter

	WebhookDeliveries *prometheus.CounterVec
	WebhookAttempts   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		UploadsInitiated: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_uploads_initiated_total",
			Help: "Upload sessions created.",
		}),
		UploadValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_upload_validations_total",
			Help: "Upload validation outcomes.",
		}, []string{"outcome"}),
		UploadsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_uploads_reaped_total",
			Help: "Stale upload sessions expired by the reaper.",
		}),
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_jobs_started_total",
			Help: "Transcription jobs accepted.",
		}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_jobs_finished_total",
			Help: "Transcription jobs by terminal status.",
		}, []string{"status"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_job_processing_seconds",
			Help:    "Wall time from job start to completion.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ChunksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audio_chunks_processed_total",
			Help: "Audio chunks sent to the transcription provider.",
		}),
		WebhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_webhook_deliveries_total",
			Help: "Webhook delivery outcomes.",
		}, []string{"outcome"}),
		WebhookAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_webhook_attempts_total",
			Help: "Individual webhook HTTP attempts.",
		}),
	}
}
