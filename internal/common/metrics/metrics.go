package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "geomet-mapfile/internal/common/errors"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	LayersGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mapfile_layers_generated_total",
			Help: "Layers compiled successfully",
		},
	)

	LayersFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapfile_layers_failed_total",
			Help: "Layers skipped or aborted during generation",
		},
		[]string{"error_code"},
	)

	LayerCompileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mapfile_layer_compile_seconds",
			Help:    "Time spent resolving and compiling one layer",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mapfile_run_duration_seconds",
			Help: "Duration of a generation or update run",
		},
		[]string{"operation", "status"},
	)

	Patches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapfile_patches_total",
			Help: "Default-time patches by outcome",
		},
		[]string{"outcome"},
	)
)

// Recorder feeds generation and patch outcomes into the Prometheus
// collectors above.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (*Recorder) RecordLayer(_ string, err error, elapsed time.Duration) {
	LayerCompileDuration.Observe(elapsed.Seconds())
	if err == nil {
		LayersGenerated.Inc()
		return
	}
	LayersFailed.WithLabelValues(string(apperrors.Normalize(err).Code)).Inc()
}

func (*Recorder) RecordPatch(outcome string) {
	Patches.WithLabelValues(outcome).Inc()
}

// ObserveRun records the duration of a run started at start.
func ObserveRun(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RunDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}
