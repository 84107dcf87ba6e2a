package agentloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
	"github.com/tesslate/studio-orchestrator/internal/tools"
)

type scriptedGateway struct {
	responses []string
	calls     int
}

func (g *scriptedGateway) Chat(ctx context.Context, req ChatRequest, onChunk func(Chunk)) (*ChatResponse, error) {
	idx := g.calls
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	g.calls++
	content := g.responses[idx]
	onChunk(Chunk{Content: content})
	return &ChatResponse{Content: content, Cost: 0.1}, nil
}

func newTestLoop(t *testing.T, gateway Gateway, registry *tools.Registry) *Loop {
	t.Helper()
	return New(Config{Gateway: gateway, Registry: registry, Budget: Budget{MaxIterations: 10, MaxCost: 5}})
}

func TestRun_CompletesWithoutToolCalls(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{"<thinking>thinking</thinking>all done<done/>"}}
	registry := tools.New(tools.Options{})
	loop := newTestLoop(t, gateway, registry)

	result, err := loop.Run(context.Background(), TurnRequest{ChatID: "c1", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, ReasonComplete, result.CompletionReason)
	assert.Equal(t, "all done", result.FinalResponse)
	assert.Equal(t, 1, result.Iterations)
}

func TestRun_NoToolCallsStopsEvenWithoutDoneMarker(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{"just a reply, no tools"}}
	registry := tools.New(tools.Options{})
	loop := newTestLoop(t, gateway, registry)

	result, err := loop.Run(context.Background(), TurnRequest{ChatID: "c1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, ReasonComplete, result.CompletionReason)
	assert.Equal(t, "just a reply, no tools", result.FinalResponse)
}

func TestRun_ExecutesToolThenCompletes(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{
		`<tool name="todos"><param name="op" value="list"/></tool>`,
		`done using tools<done/>`,
	}}
	registry := tools.New(tools.Options{})
	loop := newTestLoop(t, gateway, registry)

	result, err := loop.Run(context.Background(), TurnRequest{ChatID: "c1", ProjectID: "p1", Message: "list todos", EditMode: tools.EditModeAllow})
	require.NoError(t, err)
	assert.Equal(t, ReasonComplete, result.CompletionReason)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, result.ToolCallsMade)
	require.Len(t, result.Steps, 2)
	require.Len(t, result.Steps[0].ToolCalls, 1)
	assert.True(t, result.Steps[0].ToolCalls[0].Result.Success)
}

func TestRun_MaxIterationsExhausted(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{
		`<tool name="todos"><param name="op" value="list"/></tool>`,
	}}
	registry := tools.New(tools.Options{})
	loop := New(Config{Gateway: gateway, Registry: registry, Budget: Budget{MaxIterations: 3, MaxCost: 5}})

	result, err := loop.Run(context.Background(), TurnRequest{ChatID: "c1", ProjectID: "p1", Message: "loop", EditMode: tools.EditModeAllow})
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxIterations, result.CompletionReason)
	assert.Equal(t, 3, result.Iterations)
}

func TestRun_ApprovalDenied(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{
		`<tool name="write_file"><param name="path" value="a.txt"/><param name="content" value="x"/></tool>`,
	}}
	registry := tools.New(tools.Options{
		Lookup: func(ctx context.Context, projectID, containerID string) (string, substrate.SpaceHandle, string, error) {
			return models.ContainerRunning, "space", "frontend", nil
		},
	})
	loop := New(Config{
		Gateway:  gateway,
		Registry: registry,
		Budget:   Budget{MaxIterations: 5, MaxCost: 5},
		Approve: func(ctx context.Context, ticket models.ApprovalTicket, timeout time.Duration) models.ApprovalResolution {
			return models.ApprovalStop
		},
	})

	result, err := loop.Run(context.Background(), TurnRequest{
		ChatID: "c1", ProjectID: "p1", ContainerID: "ct1", Message: "write a file", EditMode: tools.EditModeAsk,
	})
	require.NoError(t, err)
	assert.Equal(t, ReasonApprovalDenied, result.CompletionReason)
	require.Len(t, result.Steps, 1)
	require.Len(t, result.Steps[0].ToolCalls, 1)
	assert.Equal(t, "denied", result.Steps[0].ToolCalls[0].Result.Error)
}

func TestRun_CancelledContext(t *testing.T) {
	gateway := &scriptedGateway{responses: []string{"irrelevant"}}
	registry := tools.New(tools.Options{})
	loop := newTestLoop(t, gateway, registry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := loop.Run(ctx, TurnRequest{ChatID: "c1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, result.CompletionReason)
}

func TestParse_ExtractsToolCallsAndCompletion(t *testing.T) {
	raw := `<thinking>reasoning here</thinking>Some text <tool name="read_file"><param name="path" value="a.txt"/></tool> more text<done/>`
	parsed := Parse(raw)
	assert.Equal(t, "reasoning here", parsed.Thought)
	require.Len(t, parsed.ToolCalls, 1)
	assert.Equal(t, "read_file", parsed.ToolCalls[0].Name)
	assert.True(t, parsed.IsComplete)
	assert.NotContains(t, parsed.Text, "<tool")
	assert.NotContains(t, parsed.Text, "<thinking>")
}

func TestParse_MalformedToolCallSurfacesError(t *testing.T) {
	raw := `<tool name=""></tool>`
	parsed := Parse(raw)
	require.Len(t, parsed.ToolCalls, 1)
	assert.Error(t, parsed.ToolCalls[0].Err)
}
