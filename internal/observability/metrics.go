package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus-backed counter/gauge/histogram set consulted
// by the §6 metrics snapshot endpoint and scraped directly at /metrics.
//
// llmRequests/llmFailures mirror LLMRequestCounter's totals in a plain
// atomic so the JSON snapshot endpoint can read a cheap running total
// without walking Prometheus's internal metric vectors, the same way the
// session snapshot reads the session store's own counters directly
// rather than scraping a gauge.
type Metrics struct {
	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	ToolExecDuration   *prometheus.HistogramVec
	ToolExecCounter    *prometheus.CounterVec
	ActiveConnections  prometheus.Gauge
	ActiveSessions     prometheus.Gauge
	CircuitState       *prometheus.GaugeVec
	SessionMessages    prometheus.Counter

	llmRequests atomic.Int64
	llmFailures atomic.Int64
}

// RecordLLMRequest increments the LLM request/failure snapshot totals
// alongside the Prometheus counters, keyed by outcome.
func (m *Metrics) RecordLLMRequest(success bool) {
	m.llmRequests.Add(1)
	if !success {
		m.llmFailures.Add(1)
	}
}

// LLMSnapshot returns the running LLM request/failure totals for the §6
// metrics snapshot endpoint.
func (m *Metrics) LLMSnapshot() (requests, failures int64) {
	return m.llmRequests.Load(), m.llmFailures.Load()
}

// NewMetrics registers and returns a fresh Metrics set against the given
// registerer (pass prometheus.DefaultRegisterer in production, a fresh
// prometheus.NewRegistry() in tests to avoid collisions).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "copilot_llm_request_duration_seconds",
			Help:    "LLM adapter call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "copilot_llm_requests_total",
			Help: "LLM adapter calls by provider, model, and outcome.",
		}, []string{"provider", "model", "status"}),
		ToolExecDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "copilot_tool_execution_duration_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"tool"}),
		ToolExecCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "copilot_tool_executions_total",
			Help: "Tool executions by name and outcome.",
		}, []string{"tool", "status"}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "copilot_gateway_active_connections",
			Help: "Currently open client connections.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "copilot_sessions_active",
			Help: "Currently live sessions in the session store.",
		}),
		CircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "copilot_llm_circuit_state",
			Help: "LLM provider circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"provider"}),
		SessionMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "copilot_session_messages_total",
			Help: "Total messages appended across all sessions.",
		}),
	}
}

// CircuitStateValue converts a circuit breaker state name to the gauge
// value used by CircuitState.
func CircuitStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
