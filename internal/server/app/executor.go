package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/catface996/aiops-executor/internal/adapter"
	"github.com/catface996/aiops-executor/internal/domain"
	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
	"github.com/catface996/aiops-executor/internal/id"
	"github.com/catface996/aiops-executor/internal/logging"
	"github.com/catface996/aiops-executor/internal/observability"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

// Executor drives one run to terminal state (spec.md §4.4). Each Executor
// instance is used for exactly one run and discarded afterwards — the
// manager creates a fresh one per dispatched run.
type Executor struct {
	sink      *Sink
	registry  *Registry
	runs      ports.RunRepository
	resolvers adapter.Registry
	logger    logging.Logger
	obs       *observability.Observability
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorObservability wires tracing/metrics into the executor.
func WithExecutorObservability(obs *observability.Observability) ExecutorOption {
	return func(e *Executor) { e.obs = obs }
}

// tracer returns the wired Tracer, or nil — Tracer.StartSpan tolerates a nil
// receiver and degrades to a no-op span, so call sites never branch on obs.
func (e *Executor) tracer() *observability.Tracer {
	if e.obs == nil {
		return nil
	}
	return e.obs.Tracer
}

// NewExecutor builds an Executor for one run.
func NewExecutor(sink *Sink, registry *Registry, runs ports.RunRepository, resolvers adapter.Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		sink:      sink,
		registry:  registry,
		runs:      runs,
		resolvers: resolvers,
		logger:    logging.NewComponentLogger("Executor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

type emitFunc func(source agentdomain.Source, classification agentdomain.Classification, data map[string]any) error

// Execute drives run to a terminal state, emitting events through the sink,
// and closes the run's hub as a guaranteed-final step regardless of outcome
// (§4.4 Failure semantics).
func (e *Executor) Execute(ctx context.Context, run *domain.Run, hierarchy domain.Hierarchy) {
	defer e.sink.Forget(run.ID)
	defer e.registry.Close(run.ID)

	if runID := id.RunIDFromContext(ctx); runID != "" {
		e.logger = logging.WithLogID(e.logger, runID)
	}

	ctx, span := e.tracer().StartSpan(ctx, "executor.run",
		attribute.String("run.id", run.ID),
		attribute.String("hierarchy.id", hierarchy.ID),
	)
	defer span.End()

	startTime := time.Now()
	stats := &domain.EventCounts{}

	emit := func(source agentdomain.Source, classification agentdomain.Classification, data map[string]any) error {
		ev := agentdomain.New(source, classification, data)
		ev.RunID = run.ID
		if _, err := e.sink.Emit(ctx, ev); err != nil {
			return err
		}
		switch classification.Category {
		case agentdomain.CategoryLifecycle:
			stats.Lifecycle++
		case agentdomain.CategoryLLM:
			stats.LLM++
		case agentdomain.CategoryDispatch:
			stats.Dispatch++
		case agentdomain.CategorySystem:
			stats.System++
		}
		return nil
	}

	globalSource := agentdomain.Source{
		AgentID:   "global:" + hierarchy.ID,
		AgentType: agentdomain.AgentGlobalSupervisor,
		AgentName: hierarchy.Name,
	}

	// Cancellation requested before lifecycle.started: skip it entirely,
	// write only lifecycle.cancelled (spec.md §4.4, scenario S5).
	if cancelled(ctx) {
		e.finishCancelled(ctx, run, globalSource, stats, emit)
		return
	}

	if err := emit(globalSource, agentdomain.Classification{Category: agentdomain.CategoryLifecycle, Action: agentdomain.ActionStarted}, map[string]any{"task": run.Task}); err != nil {
		e.finishFailed(ctx, run, globalSource, stats, emit, err)
		return
	}

	topology := hierarchy.Clone()
	if err := e.runs.SetTopology(ctx, run.ID, topology); err != nil {
		e.finishFailed(ctx, run, globalSource, stats, emit, err)
		return
	}
	if err := emit(globalSource, agentdomain.Classification{Category: agentdomain.CategorySystem, Action: agentdomain.ActionTopology}, map[string]any{"hierarchy": topologySnapshot(topology)}); err != nil {
		e.finishFailed(ctx, run, globalSource, stats, emit, err)
		return
	}

	if err := e.runs.UpdateStatus(ctx, run.ID, domain.StatusRunning, domain.StatusUpdate{}); err != nil {
		e.finishFailed(ctx, run, globalSource, stats, emit, err)
		return
	}

	globalWorker := domain.Worker{ID: "global", Name: hierarchy.Name, AgentRef: adapter.GlobalSupervisorRefPrefix + hierarchy.ID}
	dispatchTable := map[string]dispatchHandler{
		adapter.DispatchTeamTool: func(ctx context.Context, callID string, args map[string]any) (string, error) {
			return e.runTeam(ctx, hierarchy, callID, args, stats, emit)
		},
	}

	result, err := e.drain(ctx, globalSource, globalWorker, run.Task, emit, dispatchTable)
	if err != nil {
		if errors.Is(err, context.Canceled) || cancelled(ctx) {
			e.finishCancelled(ctx, run, globalSource, stats, emit)
			return
		}
		e.finishFailed(ctx, run, globalSource, stats, emit, err)
		return
	}

	if err := emit(globalSource, agentdomain.Classification{Category: agentdomain.CategoryLifecycle, Action: agentdomain.ActionCompleted}, map[string]any{"result": result}); err != nil {
		// Completion event itself failed to persist: the run's final state
		// is still recorded as completed in the store, best-effort — we
		// cannot retroactively turn a successful run into a failure because
		// the event sink, not the executor, owns durability semantics here.
		e.logger.Error("failed to emit lifecycle.completed for run %s: %v", run.ID, err)
	}

	now := time.Now().UTC()
	_ = e.runs.UpdateStatus(ctx, run.ID, domain.StatusCompleted, domain.StatusUpdate{
		Result:      &result,
		Statistics:  stats,
		CompletedAt: &now,
	})
	if e.obs != nil {
		e.obs.Metrics.RecordRunExecution(ctx, "completed", time.Since(startTime))
	}
}

// dispatchHandler executes one recursive branch (team or worker) and
// returns the branch's final accumulated text as the synthetic tool result
// fed back to the calling supervisor (spec.md §4.4 steps 4-5).
type dispatchHandler func(ctx context.Context, callID string, args map[string]any) (string, error)

// runTeam handles a dispatch_team tool call observed at the global level:
// emit dispatch.team, then recursively run the team supervisor and its
// workers, depth-first (spec.md §4.4 step 3-4).
func (e *Executor) runTeam(ctx context.Context, hierarchy domain.Hierarchy, callID string, args map[string]any, stats *domain.EventCounts, emit emitFunc) (string, error) {
	teamID, _ := args["team_id"].(string)
	instruction, _ := args["instruction"].(string)
	team, ok := hierarchy.FindTeam(teamID)
	if !ok {
		return "", domain.ValidationError("dispatch_team: unknown team %q", teamID)
	}

	if cancelled(ctx) {
		return "", context.Canceled
	}

	ctx, span := e.tracer().StartSpan(ctx, "executor.team", attribute.String("team.id", team.ID))
	defer span.End()

	teamSource := agentdomain.Source{
		AgentID:   "team:" + team.ID,
		AgentType: agentdomain.AgentTeamSupervisor,
		AgentName: team.Name,
		TeamName:  team.Name,
	}
	if err := emit(teamSource, agentdomain.Classification{Category: agentdomain.CategoryDispatch, Action: agentdomain.ActionDispatchTeam}, map[string]any{
		"call_id": callID, "team_id": team.ID, "team_name": team.Name, "instruction": instruction,
	}); err != nil {
		return "", err
	}
	if e.obs != nil {
		e.obs.Metrics.RecordDispatch(ctx, "team")
	}

	teamWorker := domain.Worker{ID: team.ID, Name: team.Name, AgentRef: adapter.TeamSupervisorRefPrefix + team.ID}
	dispatchTable := map[string]dispatchHandler{
		adapter.DispatchWorkerTool: func(ctx context.Context, callID string, args map[string]any) (string, error) {
			return e.runWorker(ctx, team, callID, args, stats, emit)
		},
	}
	result, err := e.drain(ctx, teamSource, teamWorker, instruction, emit, dispatchTable)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// runWorker handles a dispatch_worker tool call observed at the team level:
// emit dispatch.worker, then invoke the worker's own adapter to completion
// (spec.md §4.4 step 5). Workers do not dispatch further.
func (e *Executor) runWorker(ctx context.Context, team domain.Team, callID string, args map[string]any, stats *domain.EventCounts, emit emitFunc) (string, error) {
	workerID, _ := args["worker_id"].(string)
	instruction, _ := args["instruction"].(string)
	worker, ok := team.FindWorker(workerID)
	if !ok {
		return "", domain.ValidationError("dispatch_worker: unknown worker %q in team %q", workerID, team.ID)
	}

	if cancelled(ctx) {
		return "", context.Canceled
	}

	ctx, span := e.tracer().StartSpan(ctx, "executor.worker", attribute.String("worker.id", worker.ID))
	defer span.End()

	workerSource := agentdomain.Source{
		AgentID:   "worker:" + worker.ID,
		AgentType: agentdomain.AgentWorker,
		AgentName: worker.Name,
		TeamName:  team.Name,
	}
	if err := emit(workerSource, agentdomain.Classification{Category: agentdomain.CategoryDispatch, Action: agentdomain.ActionDispatchWorker}, map[string]any{
		"call_id": callID, "worker_id": worker.ID, "worker_name": worker.Name, "instruction": instruction,
	}); err != nil {
		return "", err
	}
	if e.obs != nil {
		e.obs.Metrics.RecordDispatch(ctx, "worker")
	}

	result, err := e.drain(ctx, workerSource, worker, instruction, emit, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// drain invokes the agent bound to worker and consumes its chunk stream
// until it ends, cancellation is observed, or the adapter errors. Text and
// reasoning deltas and tool calls/results are emitted as events in yield
// order (§4.4 Ordering guarantees). A tool call matching an entry in
// dispatchTable triggers the recursive branch and a synthetic tool_result
// event built from the branch's accumulated output, rather than expecting
// the adapter itself to supply that tool's result.
func (e *Executor) drain(ctx context.Context, source agentdomain.Source, worker domain.Worker, input string, emit emitFunc, dispatchTable map[string]dispatchHandler) (string, error) {
	agentImpl, err := e.resolvers.Resolve(worker.AgentRef)
	if err != nil {
		return "", fmt.Errorf("resolve agent %s: %w", worker.AgentRef, err)
	}

	stream, err := agentImpl.Invoke(ctx, worker, input)
	if err != nil {
		return "", fmt.Errorf("invoke agent %s: %w", worker.AgentRef, err)
	}

	var finalText string
	for {
		if cancelled(ctx) {
			return "", context.Canceled
		}

		chunk, ok, err := stream.Next(ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			// Stream ended without error: either it ran to natural completion,
			// or cancellation cut it short promptly with no final chunk (§6).
			if cancelled(ctx) {
				return "", context.Canceled
			}
			break
		}

		switch chunk.Kind {
		case adapter.ChunkText:
			if err := emit(source, agentdomain.Classification{Category: agentdomain.CategoryLLM, Action: agentdomain.ActionStream}, map[string]any{"delta": chunk.TextDelta}); err != nil {
				return "", err
			}
		case adapter.ChunkReasoning:
			if err := emit(source, agentdomain.Classification{Category: agentdomain.CategoryLLM, Action: agentdomain.ActionReasoning}, map[string]any{"delta": chunk.TextDelta}); err != nil {
				return "", err
			}
		case adapter.ChunkToolCall:
			if err := emit(source, agentdomain.Classification{Category: agentdomain.CategoryLLM, Action: agentdomain.ActionToolCall}, map[string]any{
				"call_id": chunk.CallID, "tool_name": chunk.ToolName, "arguments": chunk.Args,
			}); err != nil {
				return "", err
			}
			if handler, ok := dispatchTable[chunk.ToolName]; ok {
				result, err := handler(ctx, chunk.CallID, chunk.Args)
				if err != nil {
					return "", err
				}
				if err := emit(source, agentdomain.Classification{Category: agentdomain.CategoryLLM, Action: agentdomain.ActionToolResult}, map[string]any{
					"call_id": chunk.CallID, "result": result,
				}); err != nil {
					return "", err
				}
			}
		case adapter.ChunkToolResult:
			if err := emit(source, agentdomain.Classification{Category: agentdomain.CategoryLLM, Action: agentdomain.ActionToolResult}, map[string]any{
				"call_id": chunk.CallID, "result": chunk.Result,
			}); err != nil {
				return "", err
			}
		case adapter.ChunkFinal:
			finalText = chunk.TextDelta
		}
	}

	return finalText, nil
}

// finishCancelled emits the single lifecycle.cancelled event for the run and
// transitions its status; called exactly once, at the top level, regardless
// of how deep the cancellation was observed (spec.md §4.4, §8 invariant 2).
func (e *Executor) finishCancelled(ctx context.Context, run *domain.Run, source agentdomain.Source, stats *domain.EventCounts, emit emitFunc) {
	// Use a background context for the final event: ctx is already
	// cancelled, and the terminal event must still be persisted.
	finalEmit := func(classification agentdomain.Classification, data map[string]any) {
		ev := agentdomain.New(source, classification, data)
		ev.RunID = run.ID
		if _, err := e.sink.Emit(context.Background(), ev); err != nil {
			e.logger.Error("failed to emit lifecycle.cancelled for run %s: %v", run.ID, err)
			return
		}
		stats.Lifecycle++
	}
	finalEmit(agentdomain.Classification{Category: agentdomain.CategoryLifecycle, Action: agentdomain.ActionCancelled}, map[string]any{})

	now := time.Now().UTC()
	_ = e.runs.UpdateStatus(context.Background(), run.ID, domain.StatusCancelled, domain.StatusUpdate{
		Statistics:  stats,
		CompletedAt: &now,
	})
	if e.obs != nil {
		e.obs.Metrics.RecordRunExecution(context.Background(), "cancelled", 0)
	}
}

// finishFailed records a system.error event (best-effort) followed by
// lifecycle.failed, and transitions the run to failed (spec.md §4.4 Failure
// semantics, §7 AdapterFailure/PersistenceFailure).
func (e *Executor) finishFailed(ctx context.Context, run *domain.Run, source agentdomain.Source, stats *domain.EventCounts, emit emitFunc, cause error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	bg := context.Background()
	finalEmit := func(classification agentdomain.Classification, data map[string]any) {
		ev := agentdomain.New(source, classification, data)
		ev.RunID = run.ID
		if _, err := e.sink.Emit(bg, ev); err != nil {
			e.logger.Error("failed to emit %s for run %s: %v", classification.String(), run.ID, err)
			return
		}
		switch classification.Category {
		case agentdomain.CategorySystem:
			stats.System++
		case agentdomain.CategoryLifecycle:
			stats.Lifecycle++
		}
	}

	finalEmit(agentdomain.Classification{Category: agentdomain.CategorySystem, Action: agentdomain.ActionError}, map[string]any{"message": cause.Error()})
	finalEmit(agentdomain.Classification{Category: agentdomain.CategoryLifecycle, Action: agentdomain.ActionFailed}, map[string]any{"error": cause.Error()})

	errMsg := cause.Error()
	now := time.Now().UTC()
	_ = e.runs.UpdateStatus(bg, run.ID, domain.StatusFailed, domain.StatusUpdate{
		Error:       &errMsg,
		Statistics:  stats,
		CompletedAt: &now,
	})
	e.logger.Error("run %s failed: %v", run.ID, cause)
	if e.obs != nil {
		e.obs.Metrics.RecordRunExecution(bg, "failed", 0)
	}
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// topologySnapshot renders a hierarchy into the plain-map shape published in
// the system.topology event payload.
func topologySnapshot(h domain.Hierarchy) map[string]any {
	teams := make([]map[string]any, 0, len(h.Teams))
	for _, team := range h.Teams {
		workers := make([]map[string]any, 0, len(team.Workers))
		for _, w := range team.Workers {
			workers = append(workers, map[string]any{"id": w.ID, "name": w.Name, "role": w.Role})
		}
		teams = append(teams, map[string]any{"id": team.ID, "name": team.Name, "role": team.Role, "workers": workers})
	}
	return map[string]any{"id": h.ID, "name": h.Name, "teams": teams}
}
