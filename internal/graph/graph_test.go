package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

func conn(from, to string) models.ContainerConnection {
	return models.ContainerConnection{FromContainerID: from, ToContainerID: to, Kind: models.ConnectionDependsOn}
}

func TestDetectCycle_DirectSelfLoop(t *testing.T) {
	assert.True(t, DetectCycle(nil, "a", "a"))
}

func TestDetectCycle_Indirect(t *testing.T) {
	existing := []models.ContainerConnection{conn("a", "b"), conn("b", "c")}
	// c depends_on a would close the loop a->b->c->a
	assert.True(t, DetectCycle(existing, "c", "a"))
}

func TestDetectCycle_NoCycle(t *testing.T) {
	existing := []models.ContainerConnection{conn("a", "b")}
	assert.False(t, DetectCycle(existing, "c", "b"))
}

func TestTopoOrder_DependenciesFirst(t *testing.T) {
	ids := []string{"frontend", "backend", "db"}
	connections := []models.ContainerConnection{conn("frontend", "backend"), conn("backend", "db")}

	order, err := TopoOrder(ids, connections)
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["db"], pos["backend"])
	assert.Less(t, pos["backend"], pos["frontend"])
}

func TestTopoOrder_CycleRejected(t *testing.T) {
	ids := []string{"a", "b"}
	connections := []models.ContainerConnection{conn("a", "b"), conn("b", "a")}

	_, err := TopoOrder(ids, connections)
	require.Error(t, err)
	oErr, ok := err.(*orcherr.Error)
	require.True(t, ok)
	assert.Equal(t, orcherr.CodeCycleInGraph, oErr.Code)
}

func TestStopOrder_IsReversed(t *testing.T) {
	ids := []string{"frontend", "backend"}
	connections := []models.ContainerConnection{conn("frontend", "backend")}

	startOrder, err := TopoOrder(ids, connections)
	require.NoError(t, err)
	stopOrder, err := StopOrder(ids, connections)
	require.NoError(t, err)

	require.Len(t, stopOrder, len(startOrder))
	for i := range startOrder {
		assert.Equal(t, startOrder[i], stopOrder[len(stopOrder)-1-i])
	}
}
