package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tesslate/studio-orchestrator/internal/agentloop"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/tools"
	"github.com/tesslate/studio-orchestrator/internal/validator"
)

// ChatHandler implements the Agent Turn Engine's SSE stream and approval
// resolution endpoints (spec.md §4.E).
type ChatHandler struct {
	s *Server
}

func newChatHandler(s *Server) *ChatHandler { return &ChatHandler{s: s} }

func (h *ChatHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/chat/agent/stream", h.stream)
	r.POST("/chat/agent/approval", h.approval)
}

type agentStreamRequest struct {
	ProjectID   string `json:"projectId" validate:"required"`
	ChatID      string `json:"chatId,omitempty"`
	ContainerID string `json:"containerId,omitempty"`
	Message     string `json:"message" validate:"required"`
	EditMode    string `json:"editMode,omitempty" validate:"omitempty,oneof=allow ask plan"`
	Model       string `json:"model,omitempty"`
}

// stream runs one Agent Turn and relays its events as Server-Sent Events.
// The turn itself runs to completion regardless of whether the client stays
// connected — internal/httpapi.EventRouter fans events to the chat's
// subscribers independently of any one stream's lifetime, and the turn's
// trajectory is persisted once Run returns either way.
func (h *ChatHandler) stream(c *gin.Context) {
	userID := requestUserID(c)
	if !h.s.chatLimiter.Allow(userID) {
		respondErr(c, orcherr.UserError(orcherr.CodeRateLimited, "too many agent turns, slow down"))
		return
	}

	var req agentStreamRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
		if err := h.s.store.CreateChat(c.Request.Context(), models.Chat{ID: chatID, ProjectID: req.ProjectID}); err != nil {
			respondErr(c, err)
			return
		}
	}

	history, err := h.loadHistory(c, chatID)
	if err != nil {
		respondErr(c, err)
		return
	}

	seq, err := h.s.store.NextMessageSequence(c.Request.Context(), chatID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := h.s.store.CreateMessage(c.Request.Context(), models.Message{
		ID: uuid.NewString(), ChatID: chatID, Role: models.RoleUser, Content: req.Message, Sequence: seq,
	}); err != nil {
		respondErr(c, err)
		return
	}

	events, unregister := h.s.events.Register(chatID)
	defer unregister()

	turnDone := make(chan *agentloop.TurnResult, 1)
	turnErr := make(chan error, 1)
	turnCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		result, err := h.s.loop.Run(turnCtx, agentloop.TurnRequest{
			ChatID: chatID, ProjectID: req.ProjectID, ContainerID: req.ContainerID,
			UserID: userID, Message: req.Message, History: history,
			EditMode: tools.EditMode(req.EditMode), Model: req.Model,
		})
		if err != nil {
			turnErr <- err
			return
		}
		h.persistTrajectory(turnCtx, chatID, result)
		turnDone <- result
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	for {
		select {
		case ev := <-events:
			writeSSE(c, ev)
		case <-turnDone:
			return
		case err := <-turnErr:
			oe := orcherr.Wrap(err)
			fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n", oe.Error())
			c.Writer.Flush()
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeSSE(c *gin.Context, ev agentloop.Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, payload)
	c.Writer.Flush()
}

func (h *ChatHandler) loadHistory(c *gin.Context, chatID string) ([]agentloop.ChatMessage, error) {
	messages, err := h.s.store.ListMessagesByChat(c.Request.Context(), chatID)
	if err != nil {
		return nil, err
	}
	out := make([]agentloop.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, agentloop.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func (h *ChatHandler) persistTrajectory(ctx context.Context, chatID string, result *agentloop.TurnResult) {
	seq, err := h.s.store.NextMessageSequence(ctx, chatID)
	if err != nil {
		return
	}
	messageID := uuid.NewString()
	if err := h.s.store.CreateMessage(ctx, models.Message{
		ID: messageID, ChatID: chatID, Role: models.RoleAssistant, Content: result.FinalResponse, Sequence: seq,
	}); err != nil {
		return
	}
	for _, step := range result.Steps {
		step.MessageID = messageID
		h.s.store.InsertAgentStep(ctx, step)
	}
}

type approvalRequest struct {
	TicketID   string `json:"ticketId" validate:"required"`
	Resolution string `json:"resolution" validate:"required,oneof=allow_once allow_all stop"`
}

func (h *ChatHandler) approval(c *gin.Context) {
	var req approvalRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	if !h.s.approvals.Resolve(req.TicketID, models.ApprovalResolution(req.Resolution)) {
		respondErr(c, orcherr.UserError(orcherr.CodeNotFound, "no pending approval ticket: "+req.TicketID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
