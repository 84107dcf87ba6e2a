// Package gateway defines the external LLM gateway contract that the Agent
// Turn Engine (internal/agentloop) streams chat completions against.
// spec.md §1 excludes the gateway's own internals as a Non-goal; this
// package holds only the interface and wire-level request/response shapes
// a concrete collaborator must satisfy. The one HTTP-backed implementation
// the orchestrator ships against an OpenAI-compatible endpoint lives in
// another package, as internal/agentloop.HTTPGateway.
package gateway

import (
	"context"

	"github.com/tesslate/studio-orchestrator/internal/tools"
)

// Chunk is one piece of a streamed model response.
type Chunk struct {
	Thought string // incremental reasoning text, if the model exposes it
	Content string // incremental user-visible text
}

// ChatMessage is one entry of the prompt sent to the Gateway.
type ChatMessage struct {
	Role    string // "system", "user", "assistant", "tool"
	Content string
}

// ChatRequest is one iteration's call to the model gateway.
type ChatRequest struct {
	Messages []ChatMessage
	Tools    []tools.Def
	Model    string
}

// ChatResponse is the fully-accumulated result of one streamed call.
type ChatResponse struct {
	Content string
	Cost    float64 // cost units consumed by this call, per spec.md §6 agent.max_cost
}

// Gateway is the model backend the turn engine streams against. Turn-level
// retry/backoff is the Gateway's concern, not the Loop's.
type Gateway interface {
	Chat(ctx context.Context, req ChatRequest, onChunk func(Chunk)) (*ChatResponse, error)
}
