// Package metrics provides Prometheus export for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartfold/agentpipe/agent"
	"github.com/smartfold/agentpipe/orchestrator"
	"github.com/smartfold/agentpipe/routing"
)

// Exporter collects pipeline metrics and serves them in Prometheus format.
// It implements orchestrator.Recorder.
type Exporter struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	runLatency *prometheus.HistogramVec
	runsActive prometheus.Gauge

	stages       *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec

	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec

	llmTokens  *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec
}

// Config configures the exporter.
type Config struct {
	// Registry to register on. A new one is created when nil.
	Registry *prometheus.Registry
	// LatencyBuckets for the histograms, in seconds.
	LatencyBuckets []float64
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates an exporter and registers its collectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"category", "status"},
	)
	e.runLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "run_latency_seconds",
			Help:      "Pipeline run latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"category"},
	)
	e.runsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "runs_active",
			Help:      "Number of runs currently executing",
		},
	)

	e.stages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "agent_steps_total",
			Help:      "Total number of agent steps",
		},
		[]string{"role", "status"},
	)
	e.stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "agent_step_latency_seconds",
			Help:      "Agent step latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"role"},
	)

	e.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool_name", "status"},
	)
	e.toolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "tool_latency_seconds",
			Help:      "Tool call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"tool_name"},
	)

	e.llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"role", "token_type"},
	)
	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentpipe",
			Subsystem: "pipeline",
			Name:      "llm_latency_seconds",
			Help:      "LLM request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"role"},
	)

	registry.MustRegister(
		e.runs,
		e.runLatency,
		e.runsActive,
		e.stages,
		e.stageLatency,
		e.toolCalls,
		e.toolLatency,
		e.llmTokens,
		e.llmLatency,
	)

	return e
}

// RecordRun records one completed pipeline run.
func (e *Exporter) RecordRun(category routing.Category, status orchestrator.RunStatus, duration time.Duration) {
	e.runs.WithLabelValues(string(category), string(status)).Inc()
	e.runLatency.WithLabelValues(string(category)).Observe(duration.Seconds())
}

// RecordStage records one agent step.
func (e *Exporter) RecordStage(role agent.Role, status agent.StepStatus, duration time.Duration) {
	e.stages.WithLabelValues(string(role), string(status)).Inc()
	e.stageLatency.WithLabelValues(string(role)).Observe(duration.Seconds())
}

// RecordToolCall records one tool invocation.
func (e *Exporter) RecordToolCall(toolName string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.toolCalls.WithLabelValues(toolName, status).Inc()
	e.toolLatency.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordLLMUsage records provider token consumption and latency per role.
func (e *Exporter) RecordLLMUsage(role string, promptTokens, completionTokens int, latency time.Duration) {
	e.llmTokens.WithLabelValues(role, "prompt").Add(float64(promptTokens))
	e.llmTokens.WithLabelValues(role, "completion").Add(float64(completionTokens))
	e.llmLatency.WithLabelValues(role).Observe(latency.Seconds())
}

// RunStarted marks a run as in flight. The returned func marks it done.
func (e *Exporter) RunStarted() func() {
	e.runsActive.Inc()
	return e.runsActive.Dec
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

var _ orchestrator.Recorder = (*Exporter)(nil)
