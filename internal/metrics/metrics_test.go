package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordEnvironmentState(t *testing.T) {
	RecordEnvironmentState("active", "local-engine", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(EnvironmentsByState.WithLabelValues("active", "local-engine")))
}

func TestRecordContainerTransition(t *testing.T) {
	before := testutil.ToFloat64(ContainerTransitions.WithLabelValues("starting", "running"))
	RecordContainerTransition("starting", "running")
	assert.Equal(t, before+1, testutil.ToFloat64(ContainerTransitions.WithLabelValues("starting", "running")))
}

func TestObserveAgentTurn(t *testing.T) {
	countBefore := testutil.ToFloat64(AgentTurnsTotal.WithLabelValues("stop"))
	ObserveAgentTurn("stop", 4, 0.02)
	assert.Equal(t, countBefore+1, testutil.ToFloat64(AgentTurnsTotal.WithLabelValues("stop")))
}

func TestRecordToolInvocation(t *testing.T) {
	before := testutil.ToFloat64(ToolInvocations.WithLabelValues("read_file", "execute", "success"))
	RecordToolInvocation("read_file", "execute", "success", 0.01)
	assert.Equal(t, before+1, testutil.ToFloat64(ToolInvocations.WithLabelValues("read_file", "execute", "success")))
}

func TestRecordTaskQueueDepth(t *testing.T) {
	RecordTaskQueueDepth("container_start", "queued", 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(TaskQueueDepth.WithLabelValues("container_start", "queued")))
}
