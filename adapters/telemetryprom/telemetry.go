// Package telemetryprom implements ports.TelemetrySink with Prometheus
// counters and histograms exposed on cmd/agentruntimed's /metrics endpoint.
package telemetryprom

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agentruntime/ports"
)

// Sink records run/step lifecycle events as Prometheus metrics.
type Sink struct {
	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	stepsTotal    *prometheus.CounterVec
	stepCredits   *prometheus.HistogramVec
	runCredits    *prometheus.HistogramVec
}

// New registers the sink's metrics against reg and returns the sink.
func New(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		runsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentruntime_runs_started_total",
			Help: "Total number of agent runs started.",
		}, []string{"agent_id"}),
		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentruntime_runs_finished_total",
			Help: "Total number of agent runs reaching a terminal status.",
		}, []string{"status"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentruntime_steps_total",
			Help: "Total number of agent steps executed, by status.",
		}, []string{"status"}),
		stepCredits: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentruntime_step_credits",
			Help:    "Credits consumed per step.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"status"}),
		runCredits: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentruntime_run_total_credits",
			Help:    "Total credits consumed per completed run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"status"}),
	}
}

var _ ports.TelemetrySink = (*Sink)(nil)

// StartRun records a run beginning.
func (s *Sink) StartRun(_ context.Context, rec ports.StartRunRecord) {
	s.runsStarted.WithLabelValues(rec.AgentID).Inc()
}

// AddStep records one completed step.
func (s *Sink) AddStep(_ context.Context, rec ports.StepRecord) {
	s.stepsTotal.WithLabelValues(string(rec.Status)).Inc()
	s.stepCredits.WithLabelValues(string(rec.Status)).Observe(float64(rec.Credits))
}

// FinishRun records a run reaching a terminal status.
func (s *Sink) FinishRun(_ context.Context, rec ports.FinishRunRecord) {
	s.runsFinished.WithLabelValues(string(rec.Status)).Inc()
	s.runCredits.WithLabelValues(string(rec.Status)).Observe(float64(rec.TotalCredits))
}
