package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered once per process on the default registry
var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_messages_processed_total",
		Help: "Messages handled by the orchestrator, by outcome",
	}, []string{"outcome"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_response_cache_lookups_total",
		Help: "Response cache lookups by outcome (computed, hit, shared)",
	}, []string{"outcome"})

	modelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_model_calls_total",
		Help: "Remote model invocations by result",
	}, []string{"result"})

	modelLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_model_call_duration_seconds",
		Help:    "Remote model call latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	validationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_validation_failures_total",
		Help: "Model outputs rejected by the response validator, by kind",
	}, []string{"kind"})

	memoryOpFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_memory_op_failures_total",
		Help: "memory_ops entries that could not be applied, by op",
	}, []string{"op"})

	dispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_task_dispatch_failures_total",
		Help: "Task batches the execution service did not accept",
	})
)
