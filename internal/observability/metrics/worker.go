package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	executionsTotal    *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	executionsInFlight prometheus.Gauge
	stageDuration      *prometheus.HistogramVec
	stageRetries       *prometheus.CounterVec
	triggerLag         prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	executionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "worker",
			Name:      "executions_total",
			Help:      "Total finished executions by terminal status.",
		},
		[]string{"service", "status"},
	)
	executionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "worker",
			Name:      "execution_duration_seconds",
			Help:      "Whole-pipeline execution duration in seconds by terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	executionsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docflow",
			Subsystem: "worker",
			Name:      "executions_in_flight",
			Help:      "Number of executions currently being driven.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "worker",
			Name:      "stage_duration_seconds",
			Help:      "Stage attempt duration in seconds by stage and outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage", "outcome"},
	)
	stageRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "worker",
			Name:      "stage_retries_total",
			Help:      "Retried stage attempts by stage.",
		},
		[]string{"service", "stage"},
	)
	triggerLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "worker",
			Name:      "trigger_lag_seconds",
			Help:      "Delay between object creation event and orchestration start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(executionsTotal, executionDuration, executionsInFlight, stageDuration, stageRetries, triggerLag)

	return &WorkerMetrics{
		registry:           registry,
		executionsTotal:    executionsTotal,
		executionDuration:  executionDuration,
		executionsInFlight: executionsInFlight,
		stageDuration:      stageDuration,
		stageRetries:       stageRetries,
		triggerLag:         triggerLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartExecution() {
	m.executionsInFlight.Inc()
}

func (m *WorkerMetrics) FinishExecution(service string, duration time.Duration, err error) {
	m.executionsInFlight.Dec()

	status := "succeeded"
	if err != nil {
		status = "failed"
	}

	m.executionsTotal.WithLabelValues(service, status).Inc()
	m.executionDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

// ObserveStage and ObserveRetry satisfy the orchestrator's StageObserver.
func (m *WorkerMetrics) ObserveStage(stage, outcome string, duration time.Duration) {
	m.stageDuration.WithLabelValues("worker", stage, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveRetry(stage string) {
	m.stageRetries.WithLabelValues("worker", stage).Inc()
}

func (m *WorkerMetrics) ObserveTriggerLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.triggerLag.Observe(lag.Seconds())
}
