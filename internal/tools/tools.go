// Package tools implements the Tool Registry & Execution layer (spec.md
// §4.D): a fixed, versioned set of tools the Agent Turn Engine can invoke
// against a Project's Containers, gated by capability checks and an approval
// policy. Parameters are not validated against Def.ParamSchema; each handler
// decodes its own parameters when it runs.
package tools

import "encoding/json"

// ApprovalPolicy classifies how a tool call is gated against the active
// edit mode.
type ApprovalPolicy string

const (
	ApprovalNever     ApprovalPolicy = "never"
	ApprovalHighRisk  ApprovalPolicy = "high_risk"
	ApprovalAlways    ApprovalPolicy = "always"
)

// EditMode is the per-turn policy the user has selected for how permissive
// tool execution should be.
type EditMode string

const (
	EditModeAllow EditMode = "allow"
	EditModeAsk   EditMode = "ask"
	EditModePlan  EditMode = "plan"
)

// Tool names, matching spec.md §4.D's required tool set exactly.
const (
	ReadFile     = "read_file"
	WriteFile    = "write_file"
	PatchFile    = "patch_file"
	MultiEdit    = "multi_edit"
	DeleteFile   = "delete_file"
	ListDir      = "list_dir"
	Glob         = "glob"
	Grep         = "grep"
	Bash         = "bash"
	ShellSession = "shell_session"
	Fetch        = "fetch"
	Todos        = "todos"
	Metadata     = "metadata"
)

// Def describes one registered tool: its name, parameter schema, required
// capability, and default approval policy.
type Def struct {
	Name              string
	Description       string
	ParamSchema       json.RawMessage
	RequiresContainer bool
	Approval          ApprovalPolicy
}

// Call is a parsed tool invocation the Agent Turn Engine wants executed
// against a target (project_id, container_id).
type Call struct {
	Name       string
	Parameters json.RawMessage
}

// Target identifies where a Call should run.
type Target struct {
	ProjectID   string
	ContainerID string
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool            `json:"success"`
	Tool    string          `json:"tool"`
	Payload json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decision is what the registry's Plan step resolved for a Call.
type Decision string

const (
	DecisionExecute        Decision = "execute"
	DecisionNeedsApproval  Decision = "needs_approval"
	DecisionRefused        Decision = "refused"
)

// Plan is the outcome of evaluating a Call's tool name, capability, and
// approval policy before execution; its parameters are not checked here.
type Plan struct {
	Decision    Decision
	RefuseError error
}
