package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Chat is an ordered, append-only conversation scoped to a Project.
type Chat struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"projectId" db:"project_id"`
	Title     string    `json:"title,omitempty" db:"title"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Message is one entry in a Chat. When Role is "assistant", Steps holds the
// ordered AgentStep trajectory that produced Content.
type Message struct {
	ID        string      `json:"id" db:"id"`
	ChatID    string      `json:"chatId" db:"chat_id"`
	Role      string      `json:"role" db:"role"`
	Content   string      `json:"content" db:"content"`
	Sequence  int64       `json:"sequence" db:"sequence"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
	Steps     []AgentStep `json:"steps,omitempty" db:"-"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCall records one tool invocation made during an AgentStep, and its
// outcome. Result is set once the call resolves; a nil Result means the
// call is still pending an approval decision or execution.
type ToolCall struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
	Result     *ToolResult     `json:"result,omitempty"`
}

// ToolResult is the outcome of a ToolCall.
type ToolResult struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ToolCalls is the JSONB-backed slice type stored on an AgentStep row.
type ToolCalls []ToolCall

func (t *ToolCalls) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, t)
}

func (t ToolCalls) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// AgentStep is one iteration of the Agent Turn Engine's loop: an optional
// thought, zero or more tool calls, a fragment of response text, and
// whether the loop considers the turn complete after this step.
type AgentStep struct {
	ID               string    `json:"id" db:"id"`
	MessageID        string    `json:"messageId" db:"message_id"`
	Iteration        int       `json:"iteration" db:"iteration"`
	Thought          string    `json:"thought,omitempty" db:"thought"`
	ToolCalls        ToolCalls `json:"toolCalls,omitempty" db:"tool_calls"`
	ResponseFragment string    `json:"responseFragment,omitempty" db:"response_fragment"`
	IsComplete       bool      `json:"isComplete" db:"is_complete"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// ApprovalResolution is the user's response to an ApprovalTicket.
type ApprovalResolution string

const (
	ApprovalAllowOnce ApprovalResolution = "allow_once"
	ApprovalAllowAll  ApprovalResolution = "allow_all"
	ApprovalStop      ApprovalResolution = "stop"
)

// ApprovalTicket is an ephemeral, in-memory record of a tool call awaiting
// user approval (spec.md §4.D). It is never persisted to the metadata
// store; it lives only for the duration of the pending promise.
type ApprovalTicket struct {
	ID          string
	ToolName    string
	Parameters  json.RawMessage
	Description string
	CreatedAt   time.Time
	Resolve     func(ApprovalResolution)
}
