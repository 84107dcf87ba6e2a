package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TaskHandler implements Task status polling (spec.md §4.F).
type TaskHandler struct {
	s *Server
}

func newTaskHandler(s *Server) *TaskHandler { return &TaskHandler{s: s} }

func (h *TaskHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/tasks/:id/status", h.status)
}

func (h *TaskHandler) status(c *gin.Context) {
	task, err := h.s.store.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
