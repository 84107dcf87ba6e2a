package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/tesslate/studio-orchestrator/internal/agentloop"
	"github.com/tesslate/studio-orchestrator/internal/cache"
	"github.com/tesslate/studio-orchestrator/internal/config"
	"github.com/tesslate/studio-orchestrator/internal/environment"
	"github.com/tesslate/studio-orchestrator/internal/events"
	"github.com/tesslate/studio-orchestrator/internal/graph"
	"github.com/tesslate/studio-orchestrator/internal/httpapi"
	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/store"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
	"github.com/tesslate/studio-orchestrator/internal/substrate/cluster"
	"github.com/tesslate/studio-orchestrator/internal/substrate/localengine"
	"github.com/tesslate/studio-orchestrator/internal/taskbus"
	"github.com/tesslate/studio-orchestrator/internal/tools"
	"github.com/tesslate/studio-orchestrator/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration core's control-plane API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Initialize(cfg.Logging.Level, cfg.Logging.Pretty)
	log := logger.GetLogger()

	st, err := store.New(store.Config{
		Host: cfg.Store.Host, Port: cfg.Store.Port, User: cfg.Store.User,
		Password: cfg.Store.Password, DBName: cfg.Store.DBName, SSLMode: cfg.Store.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	redisCache, err := cache.NewCache(cache.Config{
		Enabled: cfg.Cache.Enabled, Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis cache unavailable, continuing without it")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	publisher, err := events.NewPublisher(events.Config{
		URL: cfg.NATS.URL, User: cfg.NATS.User, Password: cfg.NATS.Password,
	})
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}
	defer publisher.Close()

	driver, err := buildDriver(cfg)
	if err != nil {
		return fmt.Errorf("init substrate driver: %w", err)
	}
	log.Info().Str("substrate", driver.Substrate()).Msg("substrate driver ready")

	envMgr := environment.New(st, redisCache, driver, publisher, cfg.Deployment.HibernationIdleMin)

	reaper := environment.NewReaper(envMgr, time.Minute)
	reaper.Start()
	defer reaper.Stop()

	runtime := graph.New(st, driver, publisher)
	tasks := taskbus.New(4)
	defer tasks.Close()

	hub := websocket.NewHub()
	go hub.Run()

	registry := tools.New(tools.Options{
		Driver:   driver,
		Lookup:   containerLookup(st),
		Metadata: metadataLookup(st),
		OnAudit:  onAudit(st),
	})

	gateway := agentloop.NewHTTPGateway(agentloop.HTTPGatewayConfig{
		BaseURL: cfg.Gateway.URL, APIKey: cfg.Gateway.APIKey, CostPerCall: cfg.Gateway.CostPerCall,
	})

	approvals := httpapi.NewApprovalRegistry()
	eventRouter := httpapi.NewEventRouter()

	loop := agentloop.New(agentloop.Config{
		Gateway:  gateway,
		Registry: registry,
		Approve:  approvals.Waiter(),
		Budget: agentloop.Budget{
			MaxIterations: cfg.Agent.MaxIterations,
			MaxCost:       cfg.Agent.MaxCostPerTurn,
			ApprovalWait:  5 * time.Minute,
		},
		OnEvent: eventRouter.OnEvent,
	})

	server := httpapi.New(httpapi.Deps{
		Config: cfg, Store: st, EnvMgr: envMgr, Runtime: runtime, Tasks: tasks,
		Driver: driver, Publisher: publisher, Hub: hub, Registry: registry,
		Loop: loop, Approvals: approvals, Events: eventRouter,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("control-plane API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("control-plane API error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildDriver selects and constructs the Substrate Driver for
// cfg.Deployment.Mode (spec.md §4.A "dual-substrate").
func buildDriver(cfg *config.Config) (substrate.Driver, error) {
	switch cfg.Deployment.Mode {
	case "cluster":
		restCfg, err := clusterRestConfig()
		if err != nil {
			return nil, err
		}
		clientset, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("build kubernetes clientset: %w", err)
		}
		return cluster.New(clientset, restCfg, cluster.Config{
			AppDomain:         cfg.Deployment.AppDomain,
			StorageClaimSize:  cfg.Deployment.StorageClaimSize,
			StorageAccessMode: cfg.Deployment.StorageAccessMode,
		}), nil
	default:
		cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("build docker client: %w", err)
		}
		spaceRoot := getEnv("LOCALENGINE_SPACE_ROOT", "/var/lib/orchestrator/spaces")
		archiveRoot := getEnv("LOCALENGINE_ARCHIVE_ROOT", "/var/lib/orchestrator/archives")
		return localengine.New(cli, localengine.Config{
			NetworkName: getEnv("LOCALENGINE_NETWORK", "orchestrator"),
			SpaceRoot:   spaceRoot,
			ArchiveRoot: archiveRoot,
		}), nil
	}
}

// clusterRestConfig prefers in-cluster config (the orchestrator running as
// a pod) and falls back to a kubeconfig file for local development against
// a remote cluster.
func clusterRestConfig() (*rest.Config, error) {
	if restCfg, err := rest.InClusterConfig(); err == nil {
		return restCfg, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for kubeconfig: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
