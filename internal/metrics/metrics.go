// Package metrics exposes the orchestration core's Prometheus instrumentation:
// Project/Environment state, Container lifecycle, Task queue depth and
// duration, Agent Turn Engine iteration/cost, and Tool Registry invocation
// counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// EnvironmentsByState tracks the number of ProjectEnvironments in each
	// lifecycle state (spec.md §4.B).
	EnvironmentsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_environments_by_state",
			Help: "Number of project environments by lifecycle state",
		},
		[]string{"state", "substrate"},
	)

	// ContainersByState tracks the number of Containers in each lifecycle
	// state.
	ContainersByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_containers_by_state",
			Help: "Number of containers by lifecycle state",
		},
		[]string{"state"},
	)

	// ContainerTransitions tracks status-transition counts for Containers.
	ContainerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_container_transitions_total",
			Help: "Total number of container status transitions",
		},
		[]string{"from", "to"},
	)

	// HibernationEvents tracks ProjectEnvironment hibernate/restore cycles.
	HibernationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_hibernation_events_total",
			Help: "Total number of project environment hibernation events",
		},
		[]string{"reason"},
	)

	// RestoreEvents tracks ProjectEnvironment restores from hibernation.
	RestoreEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_restore_events_total",
			Help: "Total number of project environment restore events",
		},
		[]string{},
	)

	// TaskQueueDepth tracks the number of durable tasks currently queued or
	// running, by kind.
	TaskQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_task_queue_depth",
			Help: "Number of tasks queued or running, by kind",
		},
		[]string{"kind", "status"},
	)

	// TaskDuration tracks end-to-end task execution duration by kind and
	// terminal status.
	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_task_duration_seconds",
			Help:    "Duration of background task execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "status"},
	)

	// AgentTurnIterations tracks the number of tool-call iterations an Agent
	// Turn took before stopping.
	AgentTurnIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_agent_turn_iterations",
			Help:    "Number of iterations an agent turn ran before stopping",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"completion_reason"},
	)

	// AgentTurnCostUSD tracks the estimated cost of a single completed Agent
	// Turn.
	AgentTurnCostUSD = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_agent_turn_cost_usd",
			Help:    "Estimated cost in USD of a single agent turn",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"completion_reason"},
	)

	// AgentTurnsTotal tracks completed turns by completion reason
	// (complete, max_iterations, max_cost, cancelled, approval_denied,
	// fatal_tool_error).
	AgentTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_agent_turns_total",
			Help: "Total number of completed agent turns by completion reason",
		},
		[]string{"completion_reason"},
	)

	// ToolInvocations tracks Tool Registry executions by tool name, approval
	// decision, and outcome.
	ToolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_tool_invocations_total",
			Help: "Total number of tool invocations by tool, decision, and outcome",
		},
		[]string{"tool", "decision", "outcome"},
	)

	// ToolInvocationDuration tracks tool execution latency by tool name.
	ToolInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_tool_invocation_duration_seconds",
			Help:    "Duration of tool invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		EnvironmentsByState,
		ContainersByState,
		ContainerTransitions,
		HibernationEvents,
		RestoreEvents,
		TaskQueueDepth,
		TaskDuration,
		AgentTurnIterations,
		AgentTurnCostUSD,
		AgentTurnsTotal,
		ToolInvocations,
		ToolInvocationDuration,
	)
}

// RecordEnvironmentState sets the current count of environments in state on
// a given substrate ("local-engine" or "cluster").
func RecordEnvironmentState(state, substrate string, count float64) {
	EnvironmentsByState.WithLabelValues(state, substrate).Set(count)
}

// RecordContainerState sets the current count of containers in state.
func RecordContainerState(state string, count float64) {
	ContainersByState.WithLabelValues(state).Set(count)
}

// RecordContainerTransition increments the transition counter for a
// from->to status change.
func RecordContainerTransition(from, to string) {
	ContainerTransitions.WithLabelValues(from, to).Inc()
}

// RecordHibernation increments the hibernation counter for reason (e.g.
// "idle_reaper", "manual").
func RecordHibernation(reason string) {
	HibernationEvents.WithLabelValues(reason).Inc()
}

// RecordRestore increments the restore counter.
func RecordRestore() {
	RestoreEvents.WithLabelValues().Inc()
}

// RecordTaskQueueDepth sets the current depth of tasks in status for kind.
func RecordTaskQueueDepth(kind, status string, depth float64) {
	TaskQueueDepth.WithLabelValues(kind, status).Set(depth)
}

// ObserveTaskDuration records how long a task of kind took to reach a
// terminal status.
func ObserveTaskDuration(kind, status string, seconds float64) {
	TaskDuration.WithLabelValues(kind, status).Observe(seconds)
}

// ObserveAgentTurn records the iteration count and estimated cost of one
// completed agent turn, and increments its completion counter.
func ObserveAgentTurn(completionReason string, iterations int, costUSD float64) {
	AgentTurnIterations.WithLabelValues(completionReason).Observe(float64(iterations))
	AgentTurnCostUSD.WithLabelValues(completionReason).Observe(costUSD)
	AgentTurnsTotal.WithLabelValues(completionReason).Inc()
}

// RecordToolInvocation increments the invocation counter for tool under
// decision ("execute", "needs_approval", "refused") and outcome ("success",
// "error"), and observes its execution duration.
func RecordToolInvocation(tool, decision, outcome string, seconds float64) {
	ToolInvocations.WithLabelValues(tool, decision, outcome).Inc()
	ToolInvocationDuration.WithLabelValues(tool).Observe(seconds)
}
