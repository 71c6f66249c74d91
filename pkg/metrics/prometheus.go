package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	pollsPerTurn    prometheus.Histogram
	toolCallsTotal  *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	serviceTotal    *prometheus.CounterVec
	serviceDuration *prometheus.HistogramVec
	activeRuns      prometheus.Gauge
	sessions        prometheus.Gauge
}

// NewPrometheusRecorder registers the orchestration metrics with reg.
// A nil reg uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_turns_total",
				Help: "Total number of user turns by outcome",
			},
			[]string{"outcome"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_turn_duration_seconds",
				Help:    "Duration of user turns in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		pollsPerTurn: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_run_polls",
				Help:    "Number of run status polls per turn",
				Buckets: prometheus.LinearBuckets(1, 3, 11),
			},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tool_calls_total",
				Help: "Total number of tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_tool_call_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		serviceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_requests_total",
				Help: "Total number of Conversation Service requests by operation and status",
			},
			[]string{"op", "status", "error_type"},
		),
		serviceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conversation_request_duration_seconds",
				Help:    "Duration of Conversation Service requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_active_runs",
				Help: "Runs currently being polled",
			},
		),
		sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_sessions",
				Help: "Sessions currently mapped to threads",
			},
		),
	}
}

func (p *PrometheusRecorder) ObserveTurn(outcome string, polls int, duration time.Duration) {
	p.turnsTotal.WithLabelValues(outcome).Inc()
	p.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	p.pollsPerTurn.Observe(float64(polls))
}

func (p *PrometheusRecorder) ObserveToolCall(tool, status string, duration time.Duration) {
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
	if status != StatusDuplicate {
		p.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	}
}

func (p *PrometheusRecorder) ObserveServiceCall(op, status, errorType string, duration time.Duration) {
	p.serviceTotal.WithLabelValues(op, status, errorType).Inc()
	p.serviceDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) SetActiveRuns(n int) {
	p.activeRuns.Set(float64(n))
}

func (p *PrometheusRecorder) SetSessions(n int) {
	p.sessions.Set(float64(n))
}
