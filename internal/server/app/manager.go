package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/catface996/aiops-executor/internal/adapter"
	"github.com/catface996/aiops-executor/internal/async"
	"github.com/catface996/aiops-executor/internal/domain"
	"github.com/catface996/aiops-executor/internal/id"
	"github.com/catface996/aiops-executor/internal/logging"
	"github.com/catface996/aiops-executor/internal/observability"
	"github.com/catface996/aiops-executor/internal/server/ports"
	"github.com/ygrebnov/workers"
)

// errCancelledByUser is the cause attached to a run's context when an
// operator cancels it, distinguishing a deliberate cancel from any other
// context cancellation (e.g. process shutdown) in logs.
var errCancelledByUser = errors.New("run cancelled by user")

// Manager is the process-wide singleton owning the bounded worker pool that
// executes runs (spec.md §4.5). Grounded in the teacher's
// task_execution_service.go: a cancelFuncs map guarded by its own mutex, a
// pool sized from configuration, start_run opening the hub and registering
// the cancel func before returning so a caller can always subscribe or
// cancel immediately after start_run returns.
type Manager struct {
	runs        ports.RunRepository
	hierarchies ports.HierarchyRepository
	registry    *Registry
	sink        *Sink
	resolvers   adapter.Registry
	obs         *observability.Observability
	logger      logging.Logger

	pool workers.Workers[string]

	mu          sync.Mutex
	cancelFuncs map[string]context.CancelCauseFunc
}

// ManagerConfig configures the worker pool backing a Manager.
type ManagerConfig struct {
	// WorkerPoolSize bounds how many runs execute concurrently (spec.md §6
	// worker_pool_size). Zero lets the pool grow dynamically.
	WorkerPoolSize uint
}

// NewManager builds a Manager and starts its worker pool immediately.
func NewManager(cfg ManagerConfig, runs ports.RunRepository, hierarchies ports.HierarchyRepository, registry *Registry, sink *Sink, resolvers adapter.Registry, obs *observability.Observability) *Manager {
	m := &Manager{
		runs:        runs,
		hierarchies: hierarchies,
		registry:    registry,
		sink:        sink,
		resolvers:   resolvers,
		obs:         obs,
		logger:      logging.NewComponentLogger("RunManager"),
		cancelFuncs: make(map[string]context.CancelCauseFunc),
	}

	m.pool = workers.New[string](context.Background(), &workers.Config{
		MaxWorkers:       cfg.WorkerPoolSize,
		StartImmediately: true,
		ResultsBufferSize: 1024,
		ErrorsBufferSize:  1024,
	})

	async.Go(m.logger, "run-manager-drain-results", m.drainResults)
	async.Go(m.logger, "run-manager-drain-errors", m.drainErrors)

	return m
}

func (m *Manager) drainResults() {
	for runID := range m.pool.GetResults() {
		m.logger.Debug("run %s finished executing", runID)
	}
}

func (m *Manager) drainErrors() {
	for err := range m.pool.GetErrors() {
		m.logger.Error("worker pool task error: %v", err)
	}
}

// StartRun creates a run, opens its hub, registers its cancellation
// function, and schedules its execution on the worker pool — all before
// returning, so a caller holding the returned run can immediately
// subscribe to or cancel it (spec.md §4.5).
func (m *Manager) StartRun(ctx context.Context, hierarchyID, task string) (*domain.Run, error) {
	hierarchy, err := m.hierarchies.Get(ctx, hierarchyID)
	if err != nil {
		return nil, err
	}

	if err := validateHierarchy(ctx, *hierarchy, m.resolvers); err != nil {
		return nil, err
	}

	run, err := m.runs.Create(ctx, hierarchyID, task)
	if err != nil {
		return nil, err
	}

	if _, err := m.registry.Open(run.ID); err != nil {
		return nil, domain.UnavailableError("open hub for run %s: %v", run.ID, err)
	}

	runCtx, cancel := context.WithCancelCause(context.Background())
	runCtx = id.WithRunID(runCtx, run.ID)
	m.mu.Lock()
	m.cancelFuncs[run.ID] = cancel
	m.mu.Unlock()

	hierarchyCopy := *hierarchy
	if err := m.pool.AddTask(func(taskCtx context.Context) (string, error) {
		defer m.forgetCancelFunc(run.ID)
		if m.obs != nil {
			m.obs.Metrics.IncrementActiveRuns(taskCtx)
			defer m.obs.Metrics.DecrementActiveRuns(taskCtx)
		}
		executor := NewExecutor(m.sink, m.registry, m.runs, m.resolvers, WithExecutorObservability(m.obs))
		executor.Execute(runCtx, run, hierarchyCopy)
		return run.ID, nil
	}); err != nil {
		m.forgetCancelFunc(run.ID)
		cancel(nil)
		m.registry.Close(run.ID)
		return nil, domain.UnavailableError("schedule run %s: %v", run.ID, err)
	}

	return run, nil
}

// CancelRun cancels an in-flight or pending run (spec.md §4.5). A pending
// run whose worker has not yet been dispatched is marked cancelled in the
// store directly, rather than waiting for the pool to pick it up, so API
// callers observe the cancellation immediately; the executor, once
// scheduled, independently recognizes the already-cancelled context and
// emits the run's single lifecycle.cancelled event.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	run, err := m.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return domain.ConflictError("run %s is already %s", runID, run.Status)
	}

	m.mu.Lock()
	cancel, ok := m.cancelFuncs[runID]
	m.mu.Unlock()
	if ok {
		cancel(errCancelledByUser)
	}

	if run.Status == domain.StatusPending {
		now := time.Now().UTC()
		return m.runs.UpdateStatus(ctx, runID, domain.StatusCancelled, domain.StatusUpdate{CompletedAt: &now})
	}
	return nil
}

func (m *Manager) forgetCancelFunc(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancelFuncs, runID)
}
