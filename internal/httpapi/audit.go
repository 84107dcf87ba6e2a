package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AuditHandler exposes a Project's tool-execution audit trail (spec.md
// §4.D).
type AuditHandler struct {
	s *Server
}

func newAuditHandler(s *Server) *AuditHandler { return &AuditHandler{s: s} }

func (h *AuditHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/projects/:slug/audit", h.list)
}

func (h *AuditHandler) list(c *gin.Context) {
	project, err := h.s.store.GetProjectBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondErr(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.s.store.ListToolInvocationsByProject(c.Request.Context(), project.ID, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auditEntries": entries})
}
