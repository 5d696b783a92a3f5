// Package metrics provides Prometheus-based recording and querying of
// iteration loop metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the interface the loop controller uses to report metrics.
type Recorder interface {
	ObserveIteration(sessionID, result string, duration time.Duration)
	ObserveBreakerTransition(sessionID, toState string)
	ObserveFailure(sessionID, pattern string)
	SetProgress(sessionID string, progress int)
	ObserveGeneration(sessionID, backend, model string, outputTokens int, duration time.Duration)
}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	iterationsTotal    *prometheus.CounterVec
	iterationDuration  *prometheus.HistogramVec
	breakerTransitions *prometheus.CounterVec
	failuresTotal      *prometheus.CounterVec
	completionProgress *prometheus.GaugeVec
	generationsTotal   *prometheus.CounterVec
	generationTokens   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a Prometheus-based metrics recorder.
// Metrics register on the default registry, so construct it once per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		iterationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_iterations_total",
				Help: "Total number of loop iterations by session and result",
			},
			[]string{"session_id", "result"},
		),
		iterationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autopilot_iteration_duration_seconds",
				Help:    "Duration of complete loop iterations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"session_id"},
		),
		breakerTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_breaker_transitions_total",
				Help: "Total number of circuit breaker state transitions",
			},
			[]string{"session_id", "to_state"},
		),
		failuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_failures_total",
				Help: "Total number of classified iteration failures",
			},
			[]string{"session_id", "pattern"},
		),
		completionProgress: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autopilot_completion_progress",
				Help: "Current completion progress percentage per session",
			},
			[]string{"session_id"},
		),
		generationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_generations_total",
				Help: "Total number of LLM generation calls",
			},
			[]string{"session_id", "backend", "model"},
		),
		generationTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopilot_generation_tokens_total",
				Help: "Total output tokens produced by LLM generations",
			},
			[]string{"session_id", "backend", "model"},
		),
		generationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autopilot_generation_duration_seconds",
				Help:    "Duration of LLM generation calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"session_id", "backend"},
		),
	}
}

// ObserveIteration records a completed iteration. Result is one of
// "progress", "no_progress", or "error".
func (p *PrometheusRecorder) ObserveIteration(sessionID, result string, duration time.Duration) {
	p.iterationsTotal.WithLabelValues(sessionID, result).Inc()
	p.iterationDuration.WithLabelValues(sessionID).Observe(duration.Seconds())
}

// ObserveBreakerTransition records a circuit breaker state change.
func (p *PrometheusRecorder) ObserveBreakerTransition(sessionID, toState string) {
	p.breakerTransitions.WithLabelValues(sessionID, toState).Inc()
}

// ObserveFailure records a classified failure.
func (p *PrometheusRecorder) ObserveFailure(sessionID, pattern string) {
	p.failuresTotal.WithLabelValues(sessionID, pattern).Inc()
}

// SetProgress updates the completion progress gauge for a session.
func (p *PrometheusRecorder) SetProgress(sessionID string, progress int) {
	p.completionProgress.WithLabelValues(sessionID).Set(float64(progress))
}

// ObserveGeneration records a completed LLM generation call.
func (p *PrometheusRecorder) ObserveGeneration(sessionID, backend, model string, outputTokens int, duration time.Duration) {
	p.generationsTotal.WithLabelValues(sessionID, backend, model).Inc()
	p.generationTokens.WithLabelValues(sessionID, backend, model).Add(float64(outputTokens))
	p.generationDuration.WithLabelValues(sessionID, backend).Observe(duration.Seconds())
}

// NoopRecorder discards all observations. Used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) ObserveIteration(string, string, time.Duration)               {}
func (NoopRecorder) ObserveBreakerTransition(string, string)                      {}
func (NoopRecorder) ObserveFailure(string, string)                                {}
func (NoopRecorder) SetProgress(string, int)                                      {}
func (NoopRecorder) ObserveGeneration(string, string, string, int, time.Duration) {}
