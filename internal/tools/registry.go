package tools

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// invocationsPerMinute bounds a single user's tool calls across all of
// their projects (spec.md §4.D "Rate limit: 30 tool invocations per user
// per minute").
const invocationsPerMinute = 30

// AuditEntry is one row of the tool execution audit log (spec.md §4.D
// "audit-logged (user, project, tool, params, outcome, duration, risk
// tier, timestamp)").
type AuditEntry struct {
	UserID    string
	ProjectID string
	Tool      string
	Params    json.RawMessage
	Success   bool
	Error     string
	RiskTier  ApprovalPolicy
	Duration  time.Duration
	Timestamp time.Time
}

// ContainerLookup resolves a target container's current status and space
// handle for capability checks, without the registry importing the store
// package directly.
type ContainerLookup func(ctx context.Context, projectID, containerID string) (status string, space substrate.SpaceHandle, containerDir string, err error)

// MetadataLookup answers a metadata tool query with project/container
// facts drawn from the metadata store.
type MetadataLookup func(ctx context.Context, projectID, containerID, query string) (json.RawMessage, error)

// ShellWriter forwards input bytes to an already-open persistent terminal
// session. No package in this repository keeps a registry of such sessions,
// and cmd/orchestrator leaves ShellWriter unset, so shell_session returns an
// error there.
type ShellWriter func(ctx context.Context, sessionID string, input []byte) error

// Options configures the external collaborators a Registry dispatches
// into; every field is optional except Driver and ContainerLookup.
type Options struct {
	Driver         substrate.Driver
	Lookup         ContainerLookup
	Metadata       MetadataLookup
	ShellWriter    ShellWriter
	FetchAllowlist []string
	OnAudit        func(AuditEntry)
}

// Registry holds the fixed tool set and dispatches calls against a
// Substrate Driver.
type Registry struct {
	defs      map[string]Def
	driver    substrate.Driver
	lookup    ContainerLookup
	metadata  MetadataLookup
	shellWrite ShellWriter
	allowlist map[string]bool
	blocklist *CommandValidator

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	todos    map[string][]TodoItem

	onAudit func(AuditEntry)
}

// New builds a Registry bound to a single Substrate Driver and the
// collaborators described by opts (cmd/orchestrator wires Lookup, Metadata
// and OnAudit to internal/store).
func New(opts Options) *Registry {
	allowlist := make(map[string]bool, len(opts.FetchAllowlist))
	for _, h := range opts.FetchAllowlist {
		allowlist[h] = true
	}
	return &Registry{
		defs:       defaultTools(),
		driver:     opts.Driver,
		lookup:     opts.Lookup,
		metadata:   opts.Metadata,
		shellWrite: opts.ShellWriter,
		allowlist:  allowlist,
		blocklist:  NewCommandValidator(),
		limiters:   make(map[string]*rate.Limiter),
		todos:      make(map[string][]TodoItem),
		onAudit:    opts.OnAudit,
	}
}

func defaultTools() map[string]Def {
	defs := []Def{
		{Name: ReadFile, Description: "returns file text or not_found", Approval: ApprovalNever, RequiresContainer: true},
		{Name: WriteFile, Description: "writes via file-manager; creates parents", Approval: ApprovalHighRisk, RequiresContainer: true},
		{Name: PatchFile, Description: "applies a unified diff atomically", Approval: ApprovalHighRisk, RequiresContainer: true},
		{Name: MultiEdit, Description: "ordered find-and-replace, all-or-nothing", Approval: ApprovalHighRisk, RequiresContainer: true},
		{Name: DeleteFile, Description: "removes a file", Approval: ApprovalAlways, RequiresContainer: true},
		{Name: ListDir, Description: "read-only directory listing", Approval: ApprovalNever, RequiresContainer: true},
		{Name: Glob, Description: "read-only pattern discovery", Approval: ApprovalNever, RequiresContainer: true},
		{Name: Grep, Description: "read-only content search", Approval: ApprovalNever, RequiresContainer: true},
		{Name: Bash, Description: "one-shot command in target container", Approval: ApprovalHighRisk, RequiresContainer: true},
		{Name: ShellSession, Description: "send input to a persistent terminal", Approval: ApprovalHighRisk, RequiresContainer: true},
		{Name: Fetch, Description: "outbound HTTP subject to allowlist", Approval: ApprovalHighRisk, RequiresContainer: false},
		{Name: Todos, Description: "planning scratchpad", Approval: ApprovalNever, RequiresContainer: false},
		{Name: Metadata, Description: "returns project/container facts", Approval: ApprovalNever, RequiresContainer: false},
	}
	m := make(map[string]Def, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return m
}

// Describe returns the tool set as presented to the model, in the order
// it was registered.
func (r *Registry) Describe() []Def {
	names := []string{ReadFile, WriteFile, PatchFile, MultiEdit, DeleteFile, ListDir, Glob, Grep, Bash, ShellSession, Fetch, Todos, Metadata}
	out := make([]Def, 0, len(names))
	for _, n := range names {
		out = append(out, r.defs[n])
	}
	return out
}

// Plan validates a Call's name and capability requirements and resolves
// whether it may execute immediately under editMode, must pause for
// approval, or is refused outright.
func (r *Registry) Plan(ctx context.Context, call Call, target Target, editMode EditMode) Plan {
	def, ok := r.defs[call.Name]
	if !ok {
		return Plan{Decision: DecisionRefused, RefuseError: orcherr.UserErrorf(orcherr.CodeUnknownTool, "unknown tool %q", call.Name)}
	}

	if def.RequiresContainer {
		if target.ContainerID == "" {
			return Plan{Decision: DecisionRefused, RefuseError: orcherr.UserError(orcherr.CodeInvalidInput, call.Name+" requires a target container")}
		}
		status, _, _, err := r.lookup(ctx, target.ProjectID, target.ContainerID)
		if err != nil {
			return Plan{Decision: DecisionRefused, RefuseError: err}
		}
		if (call.Name == ShellSession || call.Name == Bash) && status != models.ContainerRunning {
			return Plan{Decision: DecisionRefused, RefuseError: orcherr.UserError(orcherr.CodeConflict, call.Name+" requires a running container, current status: "+status)}
		}
	}

	if call.Name == Bash || call.Name == ShellSession {
		if verdict := r.blocklist.Screen(call.Parameters); verdict != nil {
			return Plan{Decision: DecisionRefused, RefuseError: verdict}
		}
	}

	switch def.Approval {
	case ApprovalNever:
		return Plan{Decision: DecisionExecute}
	case ApprovalAlways:
		return Plan{Decision: DecisionNeedsApproval}
	case ApprovalHighRisk:
		if editMode == EditModeAllow {
			return Plan{Decision: DecisionExecute}
		}
		return Plan{Decision: DecisionNeedsApproval}
	default:
		return Plan{Decision: DecisionNeedsApproval}
	}
}

// Allow reports whether userID may issue another tool call right now,
// enforcing the per-user 30/min invocation limit.
func (r *Registry) Allow(userID string) bool {
	r.mu.Lock()
	limiter, ok := r.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(invocationsPerMinute)/60, invocationsPerMinute)
		r.limiters[userID] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}

// Execute runs a Call that Plan has already cleared for immediate
// execution (or that an approval ticket has just released), and records
// an audit entry regardless of outcome.
func (r *Registry) Execute(ctx context.Context, userID string, call Call, target Target) Result {
	start := time.Now()
	def := r.defs[call.Name]
	log := logger.Tools()

	payload, err := r.dispatch(ctx, call, target)
	res := Result{Tool: call.Name, Success: err == nil}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Payload = payload
	}

	entry := AuditEntry{
		UserID: userID, ProjectID: target.ProjectID, Tool: call.Name, Params: call.Parameters,
		Success: res.Success, Error: res.Error, RiskTier: def.Approval,
		Duration: time.Since(start), Timestamp: start,
	}
	if r.onAudit != nil {
		r.onAudit(entry)
	}
	log.Info().Str("tool", call.Name).Str("project_id", target.ProjectID).Bool("success", res.Success).
		Dur("duration", entry.Duration).Msg("tool executed")
	return res
}

func (r *Registry) dispatch(ctx context.Context, call Call, target Target) (json.RawMessage, error) {
	_, space, containerDir, err := r.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	switch call.Name {
	case ReadFile:
		var p struct{ Path string `json:"path"` }
		if err := json.Unmarshal(call.Parameters, &p); err != nil {
			return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid read_file params")
		}
		content, err := r.driver.ReadFile(ctx, space, containerDir, p.Path)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"content": string(content)})

	case WriteFile:
		var p struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(call.Parameters, &p); err != nil {
			return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid write_file params")
		}
		if err := r.driver.WriteFile(ctx, space, containerDir, p.Path, []byte(p.Content)); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"written": true})

	case DeleteFile:
		var p struct{ Path string `json:"path"` }
		if err := json.Unmarshal(call.Parameters, &p); err != nil {
			return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid delete_file params")
		}
		if err := r.driver.DeleteFile(ctx, space, containerDir, p.Path); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"deleted": true})

	case ListDir:
		var p struct{ Path string `json:"path"` }
		json.Unmarshal(call.Parameters, &p)
		entries, err := r.driver.ListDir(ctx, space, containerDir, p.Path)
		if err != nil {
			return nil, err
		}
		return json.Marshal(entries)

	case Glob:
		var p struct{ Pattern string `json:"pattern"` }
		if err := json.Unmarshal(call.Parameters, &p); err != nil {
			return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid glob params")
		}
		matches, err := r.driver.Glob(ctx, space, containerDir, p.Pattern)
		if err != nil {
			return nil, err
		}
		return json.Marshal(matches)

	case Grep:
		var p struct{ Pattern string `json:"pattern"` }
		if err := json.Unmarshal(call.Parameters, &p); err != nil {
			return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid grep params")
		}
		matches, err := r.driver.Grep(ctx, space, containerDir, p.Pattern)
		if err != nil {
			return nil, err
		}
		return json.Marshal(matches)

	case Bash:
		var p struct {
			Argv    []string `json:"argv"`
			Timeout int      `json:"timeout"`
		}
		if err := json.Unmarshal(call.Parameters, &p); err != nil || len(p.Argv) == 0 {
			return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid bash params")
		}
		timeout := time.Duration(p.Timeout) * time.Second
		if timeout <= 0 || timeout > 300*time.Second {
			timeout = 300 * time.Second
		}
		result, err := r.driver.ExecCommand(ctx, space, target.ContainerID, p.Argv, timeout)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)

	case PatchFile:
		return r.dispatchPatchFile(ctx, space, containerDir, call.Parameters)

	case MultiEdit:
		return r.dispatchMultiEdit(ctx, space, containerDir, call.Parameters)

	case ShellSession:
		return r.dispatchShellSession(ctx, call.Parameters)

	case Fetch:
		return r.dispatchFetch(ctx, call.Parameters)

	case Todos:
		return r.dispatchTodos(target.ProjectID, call.Parameters)

	case Metadata:
		return r.dispatchMetadata(ctx, target, call.Parameters)

	default:
		return nil, orcherr.UserErrorf(orcherr.CodeUnknownTool, "unknown tool %q", call.Name)
	}
}

func (r *Registry) resolveTarget(ctx context.Context, target Target) (status string, space substrate.SpaceHandle, containerDir string, err error) {
	if target.ContainerID == "" {
		return "", "", "", nil
	}
	return r.lookup(ctx, target.ProjectID, target.ContainerID)
}
