package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobsInFlight    prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	llmCallsTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	callRetries     *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfsum",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Processed job attempts by result status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfsum",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Job attempt duration in seconds by result status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfsum",
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of job attempts currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfsum",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between enqueue and the start of an attempt.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	llmCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfsum",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM completions by summarization phase and outcome.",
		},
		[]string{"service", "phase", "status"},
	)
	llmCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfsum",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM completion latency by summarization phase.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 180},
		},
		[]string{"service", "phase"},
	)
	callRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfsum",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "In-call retries of outbound operations.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, queueLag, llmCallsTotal, llmCallDuration, callRetries)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
		jobsInFlight:    jobsInFlight,
		queueLag:        queueLag,
		llmCallsTotal:   llmCallsTotal,
		llmCallDuration: llmCallDuration,
		callRetries:     callRetries,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobsInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(status string, duration time.Duration) {
	m.jobsInFlight.Dec()
	if status == "" {
		status = "unknown"
	}
	m.jobsTotal.WithLabelValues(m.service, status).Inc()
	m.jobDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

// ObserveLLMCall satisfies the summarizer's call observer.
func (m *WorkerMetrics) ObserveLLMCall(phase string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmCallsTotal.WithLabelValues(m.service, phase, status).Inc()
	m.llmCallDuration.WithLabelValues(m.service, phase).Observe(duration.Seconds())
}

// ObserveRetry matches resilience.RetryObserver.
func (m *WorkerMetrics) ObserveRetry(operation string, _ int, _ error) {
	m.callRetries.WithLabelValues(m.service, operation).Inc()
}
