package agentloop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tesslate/studio-orchestrator/internal/metrics"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/tools"
)

const defaultApprovalWait = 5 * time.Minute

// Loop drives one turn at a time against a Gateway and a tools.Registry.
// It holds no per-turn state between calls to Run; everything a turn needs
// travels in TurnRequest and the cancellation token passed via ctx.
type Loop struct {
	gateway  Gateway
	registry *tools.Registry
	approve  ApprovalWaiter
	budget   Budget
	onEvent  func(chatID string, ev Event)
}

// Config configures a new Loop.
type Config struct {
	Gateway  Gateway
	Registry *tools.Registry
	Approve  ApprovalWaiter
	Budget   Budget
	OnEvent  func(chatID string, ev Event)
}

// New builds a Loop. A nil Budget.MaxIterations/MaxCost falls back to
// spec.md §6's defaults (100 iterations, 5 cost units/turn).
func New(cfg Config) *Loop {
	budget := cfg.Budget
	if budget.MaxIterations <= 0 {
		budget.MaxIterations = 100
	}
	if budget.MaxCost <= 0 {
		budget.MaxCost = 5
	}
	if budget.ApprovalWait <= 0 {
		budget.ApprovalWait = defaultApprovalWait
	}
	return &Loop{
		gateway:  cfg.Gateway,
		registry: cfg.Registry,
		approve:  cfg.Approve,
		budget:   budget,
		onEvent:  cfg.OnEvent,
	}
}

// Run executes one turn to completion: iterate, stream, parse, execute
// tool calls, repeat until the model signals completion or a budget is
// exhausted. It never returns an error for ordinary turn termination —
// every outcome short of an internal bug resolves to a TurnResult with the
// matching CompletionReason.
func (l *Loop) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	target := tools.Target{ProjectID: req.ProjectID, ContainerID: req.ContainerID}
	editMode := req.EditMode
	if editMode == "" {
		editMode = tools.EditModeAsk
	}

	messages := l.buildInitialMessages(req)
	var steps []models.AgentStep
	var costSpent float64
	toolCallsMade := 0
	iteration := 0

	for iteration < l.budget.MaxIterations && costSpent < l.budget.MaxCost {
		if ctx.Err() != nil {
			return l.finish(steps, "", iteration, toolCallsMade, ReasonCancelled, req.ChatID, costSpent), nil
		}

		iteration++

		chunks := ""
		resp, err := l.gateway.Chat(ctx, ChatRequest{Messages: messages, Tools: l.registry.Describe(), Model: req.Model}, func(c Chunk) {
			chunks += c.Content
			l.emit(req.ChatID, Event{Type: "raw_token", Data: RawTokenData{Data: c.Content}})
		})
		if err != nil {
			if ctx.Err() != nil {
				return l.finish(steps, "", iteration, toolCallsMade, ReasonCancelled, req.ChatID, costSpent), nil
			}
			l.emit(req.ChatID, Event{Type: "error", Data: ErrorData{Error: err.Error(), Recoverable: false}})
			return nil, orcherr.Wrap(err)
		}
		costSpent += resp.Cost

		parsed := Parse(resp.Content)
		step := models.AgentStep{
			ID:               uuid.NewString(),
			Iteration:        iteration,
			Thought:          parsed.Thought,
			ResponseFragment: parsed.Text,
			IsComplete:       parsed.IsComplete,
			CreatedAt:        time.Now().UTC(),
		}

		assistantText := parsed.Text
		if assistantText != "" {
			messages = append(messages, ChatMessage{Role: "assistant", Content: resp.Content})
		}

		fatal := false
		denied := false
		for _, call := range parsed.ToolCalls {
			if call.Err != nil {
				tc := models.ToolCall{
					Name: call.Name,
					Result: &models.ToolResult{Success: false, Error: "parse_error: " + call.Err.Error()},
				}
				step.ToolCalls = append(step.ToolCalls, tc)
				messages = append(messages, ChatMessage{Role: "tool", Content: "parse_error: " + call.Err.Error()})
				continue
			}

			toolCallsMade++
			plan := l.registry.Plan(ctx, tools.Call{Name: call.Name, Parameters: call.Parameters}, target, editMode)

			if plan.Decision == tools.DecisionRefused {
				tc := models.ToolCall{
					Name:       call.Name,
					Parameters: call.Parameters,
					Result:     &models.ToolResult{Success: false, Error: plan.RefuseError.Error()},
				}
				step.ToolCalls = append(step.ToolCalls, tc)
				messages = append(messages, ChatMessage{Role: "tool", Content: plan.RefuseError.Error()})
				continue
			}

			if plan.Decision == tools.DecisionNeedsApproval {
				ticket := models.ApprovalTicket{
					ID:          uuid.NewString(),
					ToolName:    call.Name,
					Parameters:  call.Parameters,
					Description: fmt.Sprintf("%s requires approval", call.Name),
					CreatedAt:   time.Now().UTC(),
				}
				l.emit(req.ChatID, Event{Type: "approval_request", Data: ApprovalRequestData{
					ApprovalID: ticket.ID, ToolName: call.Name,
					ToolParameters: string(call.Parameters), ToolDescription: ticket.Description,
				}})

				resolution := models.ApprovalStop
				if l.approve != nil {
					resolution = l.approve(ctx, ticket, l.budget.ApprovalWait)
				}

				switch resolution {
				case models.ApprovalStop:
					tc := models.ToolCall{Name: call.Name, Parameters: call.Parameters,
						Result: &models.ToolResult{Success: false, Error: "denied"}}
					step.ToolCalls = append(step.ToolCalls, tc)
					denied = true
				case models.ApprovalAllowAll:
					editMode = tools.EditModeAllow
				}
				if denied {
					break
				}
			}

			result := l.registry.Execute(ctx, req.UserID, tools.Call{Name: call.Name, Parameters: call.Parameters}, target)
			tc := models.ToolCall{
				Name:       call.Name,
				Parameters: call.Parameters,
				Result:     &models.ToolResult{Success: result.Success, Payload: result.Payload, Error: result.Error},
			}
			step.ToolCalls = append(step.ToolCalls, tc)
			messages = append(messages, ChatMessage{Role: "tool", Content: toolMessageContent(result)})

			if !result.Success && isFatal(result.Error) {
				fatal = true
				break
			}
		}

		steps = append(steps, step)
		l.emit(req.ChatID, Event{Type: "iteration", Data: step})

		if denied {
			return l.finish(steps, step.ResponseFragment, iteration, toolCallsMade, ReasonApprovalDenied, req.ChatID, costSpent), nil
		}
		if fatal {
			return l.finish(steps, step.ResponseFragment, iteration, toolCallsMade, ReasonFatalToolError, req.ChatID, costSpent), nil
		}
		if step.IsComplete || len(step.ToolCalls) == 0 {
			return l.finish(steps, step.ResponseFragment, iteration, toolCallsMade, ReasonComplete, req.ChatID, costSpent), nil
		}
	}

	reason := ReasonMaxIterations
	if costSpent >= l.budget.MaxCost {
		reason = ReasonMaxCost
	}
	last := ""
	if len(steps) > 0 {
		last = steps[len(steps)-1].ResponseFragment
	}
	return l.finish(steps, last, iteration, toolCallsMade, reason, req.ChatID, costSpent), nil
}

func (l *Loop) finish(steps []models.AgentStep, finalText string, iteration, toolCalls int, reason CompletionReason, chatID string, costSpent float64) *TurnResult {
	l.emit(chatID, Event{Type: "complete", Data: CompleteData{
		FinalResponse: finalText, Iterations: iteration, ToolCallsMade: toolCalls, CompletionReason: reason,
	}})
	metrics.ObserveAgentTurn(string(reason), iteration, costSpent)
	return &TurnResult{
		Steps: steps, FinalResponse: finalText, Iterations: iteration,
		ToolCallsMade: toolCalls, CompletionReason: reason,
	}
}

func (l *Loop) emit(chatID string, ev Event) {
	if l.onEvent != nil {
		l.onEvent(chatID, ev)
	}
}

func (l *Loop) buildInitialMessages(req TurnRequest) []ChatMessage {
	messages := make([]ChatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, req.History...)
	messages = append(messages, ChatMessage{Role: "user", Content: req.Message})
	return messages
}

func toolMessageContent(result tools.Result) string {
	if result.Success {
		return string(result.Payload)
	}
	return "error: " + result.Error
}

// fatalToolCodes aborts the remaining tool calls in the current iteration
// (spec.md §4.E "if result.error is fatal: break") — internal bugs and
// permission/quota errors are fatal; ordinary user errors (bad path, bad
// args, blocked command) are not, so the model can retry with corrected
// parameters on the next iteration.
var fatalToolCodes = []string{orcherr.CodeInternal, orcherr.CodeForbidden, orcherr.CodeOutOfQuota}

// isFatal inspects a tool result's error string for one of fatalToolCodes.
// orcherr.Error.Error() always renders as "<code>: <message>[: <cause>]",
// so a prefix check is sufficient without the registry having to carry the
// structured error across the tools.Result boundary.
func isFatal(errMsg string) bool {
	for _, code := range fatalToolCodes {
		if strings.HasPrefix(errMsg, code+":") {
			return true
		}
	}
	return false
}
