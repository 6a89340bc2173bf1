// Command runexec-server boots the run execution subsystem: the in-memory
// stores, the event sink and SSE registry, the worker-pool-backed run
// manager, and the bounded HTTP facade (spec.md §4).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/catface996/aiops-executor/internal/adapter"
	"github.com/catface996/aiops-executor/internal/config"
	"github.com/catface996/aiops-executor/internal/domain"
	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
	"github.com/catface996/aiops-executor/internal/logging"
	"github.com/catface996/aiops-executor/internal/observability"
	serverhttp "github.com/catface996/aiops-executor/internal/server/http"
	"github.com/catface996/aiops-executor/internal/server/app"
)

func main() {
	logger := logging.NewComponentLogger("Bootstrap")

	cfg, err := config.Load(os.Getenv("RUNEXEC_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var obsCfg observability.Config
	if cfg.ObservabilityConfigPath != "" {
		obsCfg, err = observability.LoadConfig(cfg.ObservabilityConfigPath)
		if err != nil {
			log.Fatalf("load observability config: %v", err)
		}
	} else {
		obsCfg = observability.DefaultConfig()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		log.Fatalf("init observability: %v", err)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	events := app.NewInMemoryEventRepository()
	registry := app.NewRegistry(events,
		app.WithSubscriberBuffer(cfg.SubscriberBuffer),
		app.WithDropObserver(app.MetricsDropObserver{Metrics: obs.Metrics}),
	)
	var sinkOpts []app.SinkOption
	if obs.Metrics != nil {
		sinkOpts = append(sinkOpts, app.WithEventListeners(agentdomain.EventListenerFunc(func(e agentdomain.AgentEvent) {
			category, _, _ := strings.Cut(e.EventType(), ".")
			obs.Metrics.RecordEvent(context.Background(), category)
		})))
	}
	sink := app.NewSink(events, registry, sinkOpts...)

	runStoreOpts := []app.RunStoreOption{app.WithRunRetention(cfg.RunRetention)}
	if cfg.RunStatePath != "" {
		runStoreOpts = append(runStoreOpts, app.WithRunPersistenceFile(cfg.RunStatePath))
	}
	runs := app.NewInMemoryRunStore(runStoreOpts...)
	defer runs.Close()

	hierarchies := app.NewInMemoryHierarchyStore(demoHierarchy())
	resolvers := demoAgentRegistry()

	manager := app.NewManager(app.ManagerConfig{WorkerPoolSize: cfg.WorkerPoolSize}, runs, hierarchies, registry, sink, resolvers, obs)

	handler := serverhttp.NewRouter(manager, runs, events, registry, obs)
	server := &http.Server{Addr: cfg.BindAddr, Handler: handler}

	go func() {
		logger.Info("listening on %s", cfg.BindAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error: %v", err)
	}
}

// demoHierarchy seeds a minimal hierarchy so the server is immediately
// usable without a separate hierarchy-authoring step; the real CRUD surface
// for hierarchies is external to this subsystem (spec.md §1, §3).
func demoHierarchy() domain.Hierarchy {
	return domain.Hierarchy{
		ID:   "default",
		Name: "default",
		Teams: []domain.Team{
			{
				ID:   "research",
				Name: "Research",
				Role: "team_supervisor",
				Workers: []domain.Worker{
					{ID: "analyst", Name: "Analyst", Role: "worker", AgentRef: "echo-worker"},
				},
			},
		},
	}
}

func demoAgentRegistry() adapter.Registry {
	return adapter.RegistryFunc(func(agentRef string) (adapter.Agent, error) {
		return echoAgent{}, nil
	})
}

// echoAgent is a placeholder Agent that echoes its input as a single final
// chunk; real deployments replace this registry with one resolving actual
// LLM-backed agents per domain.Worker.AgentRef.
type echoAgent struct{}

func (echoAgent) Invoke(ctx context.Context, worker domain.Worker, input string) (adapter.Stream, error) {
	return &echoStream{text: input}, nil
}

type echoStream struct {
	text string
	done bool
}

func (s *echoStream) Next(ctx context.Context) (adapter.Chunk, bool, error) {
	if s.done {
		return adapter.Chunk{}, false, nil
	}
	s.done = true
	return adapter.Chunk{Kind: adapter.ChunkFinal, TextDelta: s.text}, true, nil
}
