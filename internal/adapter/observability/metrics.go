// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
// The package provides comprehensive observability features
// including metrics collection, distributed tracing, and logging.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// JobsSubmittedTotal counts jobs submitted.
	JobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "Total number of lookup jobs submitted",
		},
	)
	// JobsProcessing is a gauge of sagas currently in the Processing state.
	JobsProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of saga instances currently processing",
		},
	)
	// JobsCompletedTotal counts sagas that reached the Completed state.
	JobsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of saga instances completed",
		},
	)

	// CommandsPublishedTotal counts fan-out commands published by service kind.
	CommandsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_published_total",
			Help: "Total number of lookup commands published during fan-out",
		},
		[]string{"kind"},
	)
	// TaskCompletionsTotal counts TaskCompleted events observed by the saga, by kind and outcome.
	TaskCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_completions_total",
			Help: "Total number of TaskCompleted events applied to sagas",
		},
		[]string{"kind", "outcome"},
	)
	// OrphanCompletionsTotal counts TaskCompleted deliveries with no matching saga instance.
	OrphanCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orphan_completions_total",
			Help: "Total number of TaskCompleted deliveries with no saga instance",
		},
		[]string{"kind"},
	)
	// SagaConflictsTotal counts optimistic-concurrency retries in the saga store.
	SagaConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_store_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts retried in the saga store",
		},
		[]string{"backend"},
	)
	// FanoutSweepsTotal counts sweeper passes that republished a stuck saga's commands.
	FanoutSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_sweeps_total",
			Help: "Total number of sagas whose fan-out commands were republished by the sweeper",
		},
	)

	// LookupDuration records worker lookup durations by kind and outcome.
	LookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookup_duration_seconds",
			Help:    "Lookup duration in seconds by service kind and outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind", "outcome"},
	)
	// ResultStoreWritesTotal counts result-store writes by backend and outcome.
	ResultStoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_store_writes_total",
			Help: "Total number of result store writes by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(CommandsPublishedTotal)
	prometheus.MustRegister(TaskCompletionsTotal)
	prometheus.MustRegister(OrphanCompletionsTotal)
	prometheus.MustRegister(SagaConflictsTotal)
	prometheus.MustRegister(FanoutSweepsTotal)
	prometheus.MustRegister(LookupDuration)
	prometheus.MustRegister(ResultStoreWritesTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// SubmitJob increments the submitted jobs counter.
func SubmitJob() {
	JobsSubmittedTotal.Inc()
}

// StartSaga marks a saga instance as processing.
func StartSaga() {
	JobsProcessing.Inc()
}

// CompleteSaga marks a saga instance complete.
func CompleteSaga() {
	JobsProcessing.Dec()
	JobsCompletedTotal.Inc()
}

// PublishCommand records a fan-out command publication for a service kind.
func PublishCommand(kind string) {
	CommandsPublishedTotal.WithLabelValues(kind).Inc()
}

// ObserveTaskCompletion records a TaskCompleted application outcome for a kind.
func ObserveTaskCompletion(kind, outcome string) {
	TaskCompletionsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveOrphanCompletion records a TaskCompleted delivery with no saga instance.
func ObserveOrphanCompletion(kind string) {
	OrphanCompletionsTotal.WithLabelValues(kind).Inc()
}

// ObserveSagaConflict records an optimistic concurrency retry against a saga store backend.
func ObserveSagaConflict(backend string) {
	SagaConflictsTotal.WithLabelValues(backend).Inc()
}

// ObserveFanoutSweep records a sweeper pass that republished a saga's commands.
func ObserveFanoutSweep() {
	FanoutSweepsTotal.Inc()
}

// ObserveLookup records a worker lookup's duration and outcome.
func ObserveLookup(kind, outcome string, seconds float64) {
	LookupDuration.WithLabelValues(kind, outcome).Observe(seconds)
}

// ObserveResultStoreWrite records a result store write outcome for a backend.
func ObserveResultStoreWrite(backend, outcome string) {
	ResultStoreWritesTotal.WithLabelValues(backend, outcome).Inc()
}
