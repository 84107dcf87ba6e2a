// Package httpapi implements the orchestration core's control-plane HTTP
// surface (spec.md §6): Project creation, Container lifecycle, the file
// save endpoint, the Agent Turn Engine's SSE stream and approval
// resolution, Task status polling, the duplex terminal WebSocket, and the
// supplemented per-project audit trail. Authentication is handled upstream
// of this package (spec.md §1 Non-goal); handlers here trust an
// X-User-ID header forwarded by whatever gateway sits in front of them.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/tesslate/studio-orchestrator/internal/agentloop"
	"github.com/tesslate/studio-orchestrator/internal/config"
	"github.com/tesslate/studio-orchestrator/internal/environment"
	"github.com/tesslate/studio-orchestrator/internal/events"
	"github.com/tesslate/studio-orchestrator/internal/graph"
	"github.com/tesslate/studio-orchestrator/internal/middleware"
	"github.com/tesslate/studio-orchestrator/internal/store"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
	"github.com/tesslate/studio-orchestrator/internal/taskbus"
	"github.com/tesslate/studio-orchestrator/internal/tools"
	"github.com/tesslate/studio-orchestrator/internal/websocket"
)

// Deps collects every collaborator the control-plane API dispatches into.
// cmd/orchestrator builds each of these once at startup and wires them
// together here; Loop and Approvals are constructed against
// NewApprovalRegistry/NewEventRouter before the Server itself, so the
// Loop's approval and event hooks and the Server's HTTP handlers share the
// same registries.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	EnvMgr    *environment.Manager
	Runtime   *graph.Runtime
	Tasks     *taskbus.Bus
	Driver    substrate.Driver
	Publisher *events.Publisher
	Hub       *websocket.Hub
	Registry  *tools.Registry
	Loop      *agentloop.Loop
	Approvals *ApprovalRegistry
	Events    *EventRouter
}

// Server wires every collaborator into a gin.Engine implementing spec.md
// §6's route table.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	envMgr    *environment.Manager
	runtime   *graph.Runtime
	tasks     *taskbus.Bus
	driver    substrate.Driver
	publisher *events.Publisher
	hub       *websocket.Hub
	registry  *tools.Registry
	loop      *agentloop.Loop
	approvals *ApprovalRegistry
	events    *EventRouter

	chatLimiter *middleware.RateLimiter

	engine *gin.Engine
}

// New builds a Server and registers every route.
func New(deps Deps) *Server {
	s := &Server{
		cfg:       deps.Config,
		store:     deps.Store,
		envMgr:    deps.EnvMgr,
		runtime:   deps.Runtime,
		tasks:     deps.Tasks,
		driver:    deps.Driver,
		publisher: deps.Publisher,
		hub:       deps.Hub,
		registry:  deps.Registry,
		loop:      deps.Loop,
		approvals: deps.Approvals,
		events:    deps.Events,

		chatLimiter: middleware.NewDefaultRateLimiter(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.StructuredLogger(middleware.DefaultStructuredLoggerConfig()))
	limiter := middleware.NewRateLimiter(20, 40)
	engine.Use(limiter.Middleware())

	engine.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{})))

	newProjectHandler(s).RegisterRoutes(engine)
	newContainerHandler(s).RegisterRoutes(engine)
	newChatHandler(s).RegisterRoutes(engine)
	newTaskHandler(s).RegisterRoutes(engine)
	newTerminalHandler(s).RegisterRoutes(engine)
	newAuditHandler(s).RegisterRoutes(engine)

	s.engine = engine
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }
