// Package metrics records pipeline, agent and memory activity in Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry; nothing is registered globally.
type Recorder struct {
	registry *prometheus.Registry

	stageTransitions *prometheus.CounterVec
	failures         *prometheus.CounterVec
	agentCalls       *prometheus.CounterVec
	agentDuration    *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	costsTotal       *prometheus.CounterVec
	memoryOps        *prometheus.CounterVec
	memoryDuration   *prometheus.HistogramVec
	memoryEvicted    prometheus.Counter
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stageTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_transitions_total",
				Help: "Pipeline stage transitions by target stage",
			},
			[]string{"stage"},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_failures_total",
				Help: "Pipeline failures by stage and error kind",
			},
			[]string{"stage", "kind"},
		),
		agentCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_calls_total",
				Help: "Agent invocations by role, attempt outcome and error kind",
			},
			[]string{"role", "status", "error_type"},
		),
		agentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_call_duration_seconds",
				Help:    "Duration of agent invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"role"},
		),
		tokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens used by model calls",
			},
			[]string{"model", "role", "type"},
		),
		costsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Cost in USD of model calls",
			},
			[]string{"model", "role"},
		),
		memoryOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_operations_total",
				Help: "Memory store operations by op and status",
			},
			[]string{"op", "status"},
		),
		memoryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memory_operation_duration_seconds",
				Help:    "Duration of memory store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		memoryEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "memory_evicted_items_total",
			Help: "Memory items removed by TTL or retention floor",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) ObserveStage(stage string) {
	r.stageTransitions.WithLabelValues(stage).Inc()
}

func (r *Recorder) ObserveFailure(stage, kind string) {
	r.failures.WithLabelValues(stage, kind).Inc()
}

// ObserveAgentCall records one attempt of an agent invocation.
func (r *Recorder) ObserveAgentCall(role string, d time.Duration, errorType string) {
	status := "success"
	if errorType != "" {
		status = "error"
	}
	r.agentCalls.WithLabelValues(role, status, errorType).Inc()
	r.agentDuration.WithLabelValues(role).Observe(d.Seconds())
}

// ObserveUsage records token usage and cost of one model call.
func (r *Recorder) ObserveUsage(role, model string, promptTokens, completionTokens int, cost float64) {
	r.tokensTotal.WithLabelValues(model, role, "prompt").Add(float64(promptTokens))
	r.tokensTotal.WithLabelValues(model, role, "completion").Add(float64(completionTokens))
	r.costsTotal.WithLabelValues(model, role).Add(cost)
}

func (r *Recorder) ObserveMemoryOp(op string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.memoryOps.WithLabelValues(op, status).Inc()
	r.memoryDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (r *Recorder) ObserveEvicted(n int) {
	r.memoryEvicted.Add(float64(n))
}
