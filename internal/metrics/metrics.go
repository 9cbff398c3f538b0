// Package metrics exposes the pipeline's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcomes.
const (
	OutcomeTranscripted = "transcripted"
	OutcomeSkipped      = "skipped"
	OutcomeRetry        = "retry"
	OutcomeFailed       = "failed"
	OutcomeMisconfig    = "missing_backend"
	OutcomeStale        = "stale"
	OutcomeInconsistent = "inconsistent"
)

var (
	// JobsTotal counts finished job runs. Labels: engine, outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stt_jobs_total",
			Help: "Transcription job runs by engine and outcome",
		},
		[]string{"engine", "outcome"},
	)

	// RetriesTotal counts re-executions scheduled after a transcription failure.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stt_job_retries_total",
			Help: "Transcription retries by engine",
		},
		[]string{"engine"},
	)

	// AnomaliesTotal counts values corrected while normalizing. Labels: engine, kind.
	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stt_transcript_anomalies_total",
			Help: "Data quality anomalies corrected during normalization",
		},
		[]string{"engine", "kind"},
	)

	// ASRDuration observes engine wall-clock time in seconds.
	ASRDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stt_asr_duration_seconds",
			Help:    "ASR engine run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"engine", "success"},
	)

	// QueueDepth is the task count last read from the queue. Labels: state
	// (waiting, inflight).
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stt_queue_depth",
			Help: "Tasks waiting in or delivered from the job queue",
		},
		[]string{"state"},
	)

	// InFlight is the number of jobs currently executing.
	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stt_jobs_in_flight",
			Help: "Transcription jobs currently running",
		},
	)
)

func RecordJob(engine, outcome string) {
	JobsTotal.WithLabelValues(engine, outcome).Inc()
}

func RecordRetry(engine string) {
	RetriesTotal.WithLabelValues(engine).Inc()
}

func RecordAnomaly(engine, kind string) {
	AnomaliesTotal.WithLabelValues(engine, kind).Inc()
}

func RecordASRDuration(engine string, success bool, seconds float64) {
	label := "true"
	if !success {
		label = "false"
	}
	ASRDuration.WithLabelValues(engine, label).Observe(seconds)
}

func SetQueueDepth(waiting, inflight int64) {
	QueueDepth.WithLabelValues("waiting").Set(float64(waiting))
	QueueDepth.WithLabelValues("inflight").Set(float64(inflight))
}
