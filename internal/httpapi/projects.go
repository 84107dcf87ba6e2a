package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tesslate/studio-orchestrator/internal/graph"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
	"github.com/tesslate/studio-orchestrator/internal/taskbus"
	"github.com/tesslate/studio-orchestrator/internal/validator"
)

// devContainerDir is the conventional directory name of a Project's default
// container: the one POST /projects/{slug}/start-dev-container brings up.
const devContainerDir = "dev"

// ProjectHandler implements Project creation and lookup (spec.md §6).
type ProjectHandler struct {
	s *Server
}

func newProjectHandler(s *Server) *ProjectHandler { return &ProjectHandler{s: s} }

func (h *ProjectHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/projects", h.create)
	r.GET("/projects", h.list)
	r.GET("/projects/:slug", h.get)
	r.DELETE("/projects/:slug", h.delete)
}

type containerSpecRequest struct {
	DirName  string            `json:"dirName" validate:"required"`
	Image    string            `json:"image" validate:"required"`
	Command  []string          `json:"command,omitempty"`
	Port     int               `json:"port"`
	Memory   string            `json:"memory,omitempty"`
	CPU      string            `json:"cpu,omitempty"`
	Template containerTemplate `json:"template"`
}

type containerTemplate struct {
	GitURL      string `json:"gitUrl,omitempty"`
	GitRef      string `json:"gitRef,omitempty"`
	TemplateDir string `json:"templateDir,omitempty"`
}

type connectionRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
	Kind string `json:"kind" validate:"required,oneof=depends_on network"`
}

type createProjectRequest struct {
	Slug           string                 `json:"slug" validate:"required,slug"`
	Name           string                 `json:"name" validate:"required"`
	DeploymentMode string                 `json:"deploymentMode" validate:"required,deploymentmode"`
	Containers     []containerSpecRequest `json:"containers" validate:"required,min=1,dive"`
	Connections    []connectionRequest    `json:"connections,omitempty" validate:"dive"`
}

// create inserts a Project and its Containers synchronously, validates the
// requested dependency graph for cycles before any row is written, then
// submits an async project_setup task that materializes each container's
// template once the Project Environment is ready.
func (h *ProjectHandler) create(c *gin.Context) {
	var req createProjectRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	byDirName := make(map[string]string, len(req.Containers))
	containers := make([]models.Container, 0, len(req.Containers))
	project := models.Project{
		ID:             uuid.NewString(),
		OwnerID:        requestUserID(c),
		Slug:           req.Slug,
		Name:           req.Name,
		DeploymentMode: req.DeploymentMode,
	}

	for _, cs := range req.Containers {
		if _, dup := byDirName[cs.DirName]; dup {
			respondErr(c, orcherr.UserError(orcherr.CodeInvalidInput, "duplicate container dirName: "+cs.DirName))
			return
		}
		id := uuid.NewString()
		byDirName[cs.DirName] = id
		containers = append(containers, models.Container{
			ID:             id,
			ProjectID:      project.ID,
			DirName:        cs.DirName,
			Image:          cs.Image,
			Command:        cs.Command,
			Port:           cs.Port,
			Hostname:       fmt.Sprintf("%s.%s.%s", cs.DirName, project.Slug, h.s.cfg.Deployment.AppDomain),
			Status:         models.ContainerPending,
			ResourceMemory: cs.Memory,
			ResourceCPU:    cs.CPU,
		})
	}

	var connections []models.ContainerConnection
	for _, cr := range req.Connections {
		fromID, ok := byDirName[cr.From]
		if !ok {
			respondErr(c, orcherr.UserError(orcherr.CodeInvalidInput, "unknown connection endpoint: "+cr.From))
			return
		}
		toID, ok := byDirName[cr.To]
		if !ok {
			respondErr(c, orcherr.UserError(orcherr.CodeInvalidInput, "unknown connection endpoint: "+cr.To))
			return
		}
		if cr.Kind == models.ConnectionDependsOn && graph.DetectCycle(connections, fromID, toID) {
			respondErr(c, orcherr.UserError(orcherr.CodeCycleInGraph, "connection would introduce a cycle: "+cr.From+" -> "+cr.To))
			return
		}
		connections = append(connections, models.ContainerConnection{
			ID: uuid.NewString(), ProjectID: project.ID,
			FromContainerID: fromID, ToContainerID: toID, Kind: cr.Kind,
		})
	}

	if err := h.s.store.CreateProject(c.Request.Context(), project); err != nil {
		respondErr(c, err)
		return
	}
	for _, ct := range containers {
		if err := h.s.store.InsertContainer(c.Request.Context(), ct); err != nil {
			respondErr(c, err)
			return
		}
	}
	for _, conn := range connections {
		if err := h.s.store.InsertConnection(c.Request.Context(), conn); err != nil {
			respondErr(c, err)
			return
		}
	}

	templates := make(map[string]containerTemplate, len(req.Containers))
	for _, cs := range req.Containers {
		templates[cs.DirName] = cs.Template
	}

	task, err := h.s.submitTask(context.Background(), models.TaskProjectSetup, project.OwnerID, project.ID, project.ID,
		func(ctx context.Context, t *taskbus.Task) (json.RawMessage, error) {
			return h.setupProject(ctx, t, project, containers, templates)
		})
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"project":        project,
		"taskId":         task.ID,
		"statusEndpoint": fmt.Sprintf("/tasks/%s/status", task.ID),
	})
}

func (h *ProjectHandler) setupProject(ctx context.Context, t *taskbus.Task, project models.Project, containers []models.Container, templates map[string]containerTemplate) (json.RawMessage, error) {
	space, err := h.s.envMgr.Ensure(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	t.Emit("progress", "environment ready")

	for _, ct := range containers {
		tmpl := templates[ct.DirName]
		source := substrate.TemplateSource{GitURL: tmpl.GitURL, GitRef: tmpl.GitRef, TemplateDir: tmpl.TemplateDir}
		if err := h.s.driver.MaterializeTemplate(ctx, space, ct.DirName, source); err != nil {
			return nil, err
		}
		if err := h.s.store.MarkContainerFilesReady(ctx, ct.ID); err != nil {
			return nil, err
		}
		t.Emit("progress", "materialized "+ct.DirName)
	}

	return json.Marshal(map[string]string{"projectId": project.ID})
}

// delete tears a Project down in an async task: envMgr.Delete stops its
// containers, calls the driver's Hibernate on an active space and marks the
// environment tombstone before the project and its rows are soft-deleted,
// so a caller that lists projects mid-teardown still sees it. Nothing
// removes an archive the local engine's Hibernate wrote, and the cluster
// driver's namespace and storage claim are kept.
func (h *ProjectHandler) delete(c *gin.Context) {
	project, err := h.s.store.GetProjectBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondErr(c, err)
		return
	}

	task, err := h.s.submitTask(context.Background(), models.TaskDelete, requestUserID(c), project.ID, project.ID,
		func(ctx context.Context, t *taskbus.Task) (json.RawMessage, error) {
			return h.deleteProject(ctx, t, project)
		})
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"taskId":         task.ID,
		"statusEndpoint": fmt.Sprintf("/tasks/%s/status", task.ID),
	})
}

func (h *ProjectHandler) deleteProject(ctx context.Context, t *taskbus.Task, project *models.Project) (json.RawMessage, error) {
	if err := h.s.envMgr.Delete(ctx, project.ID); err != nil {
		return nil, err
	}
	t.Emit("progress", "environment torn down")

	if err := h.s.store.SoftDeleteProject(ctx, project.ID); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"projectId": project.ID})
}

func (h *ProjectHandler) list(c *gin.Context) {
	projects, err := h.s.store.ListProjectsByOwner(c.Request.Context(), requestUserID(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *ProjectHandler) get(c *gin.Context) {
	project, err := h.s.store.GetProjectBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondErr(c, err)
		return
	}
	containers, err := h.s.store.ListContainersByProject(c.Request.Context(), project.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project, "containers": containers})
}
