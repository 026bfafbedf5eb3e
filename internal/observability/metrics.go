package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus series for the generation loop: LLM request
// latency and token usage, tool dispatch outcomes, compression runs, and
// error counts. Trimmed from the ancestor codebase's Metrics (which also
// tracked chat-channel webhooks, HTTP handlers, and database queries —
// none of which this orchestrator has) down to what the Session
// Orchestrator, Tool Dispatcher, and Context Compressor actually emit.
type Metrics struct {
	// LLMRequestDuration measures provider stream latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts generation steps by provider, model, status.
	// Labels: provider, model, status (success|error|cancelled)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption by provider, model, type.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks resolved generation cost.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ContextWindowUsed tracks prompt tokens used per request.
	// Labels: provider, model
	ContextWindowUsed *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations by tool name and status.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// CompressionCounter counts compression runs by outcome.
	// Labels: status (success|error)
	CompressionCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (orchestrator|dispatch|provider|history), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge of currently loaded sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus collectors. Call once at
// process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shakespeare_llm_request_duration_seconds",
				Help:    "Duration of a single generation step's provider stream",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shakespeare_llm_requests_total",
				Help: "Total generation steps by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shakespeare_llm_tokens_total",
				Help: "Total tokens consumed by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shakespeare_llm_cost_usd_total",
				Help: "Resolved generation cost in USD",
			},
			[]string{"provider", "model"},
		),
		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shakespeare_context_window_tokens",
				Help:    "Prompt tokens used per generation step",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000, 256000},
			},
			[]string{"provider", "model"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shakespeare_tool_executions_total",
				Help: "Total tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shakespeare_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		CompressionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shakespeare_compression_runs_total",
				Help: "Total context-compression runs by outcome",
			},
			[]string{"status"},
		),
		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shakespeare_errors_total",
				Help: "Total errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shakespeare_active_sessions",
				Help: "Current number of loaded sessions",
			},
		),
	}
}

// RecordLLMRequest records metrics for one generation step's provider call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int64) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
		m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMCost records resolved generation cost.
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordToolExecution records metrics for a single tool call.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordCompression records a compression run's outcome.
func (m *Metrics) RecordCompression(status string) {
	m.CompressionCounter.WithLabelValues(status).Inc()
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SessionStarted increments the active sessions gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active sessions gauge.
func (m *Metrics) SessionEnded() {
	m.ActiveSessions.Dec()
}
