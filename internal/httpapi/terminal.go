package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
	"github.com/tesslate/studio-orchestrator/internal/websocket"
)

// TerminalHandler implements the duplex terminal WebSocket (spec.md §4.A
// "OpenTerminal").
type TerminalHandler struct {
	s *Server
}

func newTerminalHandler(s *Server) *TerminalHandler { return &TerminalHandler{s: s} }

func (h *TerminalHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/projects/:slug/containers/:id/terminal", h.serve)
}

func (h *TerminalHandler) serve(c *gin.Context) {
	project, err := h.s.store.GetProjectBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondErr(c, err)
		return
	}
	env, err := h.s.store.GetProjectEnvironment(c.Request.Context(), project.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if env.Status != models.EnvActive {
		respondErr(c, orcherr.UserError(orcherr.CodeConflict, "project environment is "+env.Status+", ensure it first"))
		return
	}

	conn, err := websocket.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WebSocket().Warn().Err(err).Msg("terminal websocket upgrade failed")
		return
	}

	space := substrate.SpaceHandle(env.SubstrateHandle)
	containerID := c.Param("id")
	h.s.envMgr.TouchActivity(c.Request.Context(), project.ID)

	websocket.ServeTerminal(c.Request.Context(), conn, h.s.driver, space, containerID)
}
