// Package agentloop implements the Agent Turn Engine (spec.md §4.E): the
// iterate → build-context → stream → parse → execute-tools cycle that
// turns one user Message into a trajectory of AgentSteps.
package agentloop

import (
	"context"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/gateway"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/tools"
)

// Chunk, ChatMessage, ChatRequest, ChatResponse, and Gateway are aliases
// onto internal/gateway's contract, so this package's Loop and the
// HTTPGateway it ships with are defined against the same external-collaborator
// interface the rest of the orchestrator imports.
type Chunk = gateway.Chunk
type ChatMessage = gateway.ChatMessage
type ChatRequest = gateway.ChatRequest
type ChatResponse = gateway.ChatResponse
type Gateway = gateway.Gateway

// CompletionReason matches spec.md §4.E exactly.
type CompletionReason string

const (
	ReasonComplete        CompletionReason = "complete"
	ReasonMaxIterations   CompletionReason = "max_iterations"
	ReasonMaxCost         CompletionReason = "max_cost"
	ReasonCancelled       CompletionReason = "cancelled"
	ReasonApprovalDenied  CompletionReason = "approval_denied"
	ReasonFatalToolError  CompletionReason = "fatal_tool_error"
)

// Event is emitted during a turn for SSE fan-out (internal/httpapi's
// EventRouter owns delivery to subscribers).
type Event struct {
	Type string // "raw_token", "iteration", "approval_request", "complete", "error"
	Data any
}

// RawTokenData backs a "raw_token" Event.
type RawTokenData struct {
	Data string `json:"data"`
}

// ApprovalRequestData backs an "approval_request" Event.
type ApprovalRequestData struct {
	ApprovalID       string `json:"approvalId"`
	ToolName         string `json:"toolName"`
	ToolParameters   string `json:"toolParameters"`
	ToolDescription  string `json:"toolDescription"`
}

// CompleteData backs a "complete" Event.
type CompleteData struct {
	FinalResponse    string           `json:"finalResponse"`
	Iterations       int              `json:"iterations"`
	ToolCallsMade    int              `json:"toolCallsMade"`
	CompletionReason CompletionReason `json:"completionReason"`
}

// ErrorData backs an "error" Event.
type ErrorData struct {
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable"`
}

// ApprovalWaiter blocks until an ApprovalTicket is resolved, or the wait
// itself times out (spec.md §4.E "wait on ticket with per-turn timeout").
type ApprovalWaiter func(ctx context.Context, ticket models.ApprovalTicket, timeout time.Duration) models.ApprovalResolution

// Budget bounds a single turn (spec.md §5 "every externally initiated
// operation has a deadline").
type Budget struct {
	MaxIterations int
	MaxCost       float64
	ApprovalWait  time.Duration
}

// TurnRequest is the input to Run: one user message against one Chat.
type TurnRequest struct {
	ChatID      string
	ProjectID   string
	ContainerID string
	UserID      string
	Message     string
	SystemPrompt string
	History     []ChatMessage
	EditMode    tools.EditMode
	Model       string
}

// TurnResult is the output of a completed (or terminated) turn.
type TurnResult struct {
	Steps            []models.AgentStep
	FinalResponse    string
	Iterations       int
	ToolCallsMade    int
	CompletionReason CompletionReason
}
