package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
	"github.com/tesslate/studio-orchestrator/internal/validator"
)

// ContainerHandler implements per-Container lifecycle and the file save
// endpoint (spec.md §4.C, §4.A).
type ContainerHandler struct {
	s *Server
}

func newContainerHandler(s *Server) *ContainerHandler { return &ContainerHandler{s: s} }

func (h *ContainerHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/projects/:slug/start-dev-container", h.startDev)
	r.POST("/projects/:slug/containers/:id/start", h.start)
	r.POST("/projects/:slug/containers/:id/stop", h.stop)
	r.GET("/projects/:slug/containers/status", h.status)
	r.POST("/projects/:slug/files/save", h.saveFile)
}

func (h *ContainerHandler) resolveProject(c *gin.Context) (*models.Project, bool) {
	project, err := h.s.store.GetProjectBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondErr(c, err)
		return nil, false
	}
	return project, true
}

func (h *ContainerHandler) spaceFor(c *gin.Context, projectID string) (substrate.SpaceHandle, bool) {
	env, err := h.s.store.GetProjectEnvironment(c.Request.Context(), projectID)
	if err != nil {
		respondErr(c, err)
		return "", false
	}
	if env.Status != models.EnvActive {
		respondErr(c, orcherr.UserError(orcherr.CodeConflict, "project environment is "+env.Status+", ensure it first"))
		return "", false
	}
	return substrate.SpaceHandle(env.SubstrateHandle), true
}

func (h *ContainerHandler) startDev(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}
	space, err := h.s.envMgr.Ensure(c.Request.Context(), project.ID)
	if err != nil {
		respondErr(c, err)
		return
	}

	containers, err := h.s.store.ListContainersByProject(c.Request.Context(), project.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	var dev *models.Container
	for i := range containers {
		if containers[i].DirName == devContainerDir {
			dev = &containers[i]
			break
		}
	}
	if dev == nil {
		respondErr(c, orcherr.UserError(orcherr.CodeNotFound, "project has no \"dev\" container"))
		return
	}

	if err := h.s.runtime.StartContainer(c.Request.Context(), space, dev.ID, nil); err != nil {
		respondErr(c, err)
		return
	}
	h.s.envMgr.TouchActivity(c.Request.Context(), project.ID)
	c.JSON(http.StatusOK, gin.H{"containerId": dev.ID})
}

func (h *ContainerHandler) start(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}
	space, ok := h.spaceFor(c, project.ID)
	if !ok {
		return
	}
	if err := h.s.runtime.StartContainer(c.Request.Context(), space, c.Param("id"), nil); err != nil {
		respondErr(c, err)
		return
	}
	h.s.envMgr.TouchActivity(c.Request.Context(), project.ID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ContainerHandler) stop(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}
	space, ok := h.spaceFor(c, project.ID)
	if !ok {
		return
	}
	if err := h.s.runtime.StopContainer(c.Request.Context(), space, c.Param("id"), nil); err != nil {
		respondErr(c, err)
		return
	}
	h.s.envMgr.TouchActivity(c.Request.Context(), project.ID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ContainerHandler) status(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}
	containers, err := h.s.store.ListContainersByProject(c.Request.Context(), project.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"containers": containers})
}

type saveFileRequest struct {
	ContainerDir string `json:"containerDir" validate:"required"`
	Path         string `json:"path" validate:"required"`
	Content      string `json:"content"`
}

// saveFile writes via the Substrate Driver's file-manager path, which
// resolves Path against /app/<containerDir>/ and rejects any attempt to
// escape it (spec.md §4.A path containment).
func (h *ContainerHandler) saveFile(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}
	space, ok := h.spaceFor(c, project.ID)
	if !ok {
		return
	}

	var req saveFileRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	if err := h.s.driver.WriteFile(c.Request.Context(), space, req.ContainerDir, req.Path, []byte(req.Content)); err != nil {
		respondErr(c, err)
		return
	}
	h.s.envMgr.TouchActivity(c.Request.Context(), project.ID)
	c.JSON(http.StatusOK, gin.H{"written": true})
}
