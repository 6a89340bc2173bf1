package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catface996/aiops-executor/internal/adapter"
	"github.com/catface996/aiops-executor/internal/domain"
)

func newTestManager(t *testing.T, scripts map[string]adapter.Script) (*Manager, *InMemoryRunStore, *InMemoryEventRepository, *Registry) {
	t.Helper()
	events := NewInMemoryEventRepository()
	registry := NewRegistry(events)
	sink := NewSink(events, registry)
	runs := NewInMemoryRunStore()
	t.Cleanup(runs.Close)
	hierarchies := NewInMemoryHierarchyStore(testHierarchy())

	agent := adapter.NewScriptedAgent(scripts)
	manager := NewManager(ManagerConfig{WorkerPoolSize: 2}, runs, hierarchies, registry, sink, adapter.SingleAgentRegistry(agent), nil)
	return manager, runs, events, registry
}

// StartRun must open the run's hub and register its cancel function before
// returning, so a caller can subscribe or cancel immediately.
func TestManager_StartRun_HubOpenBeforeReturn(t *testing.T) {
	scripts := map[string]adapter.Script{
		adapter.GlobalSupervisorRefPrefix + "H1": {Chunks: []adapter.Chunk{
			{Kind: adapter.ChunkFinal, TextDelta: "done"},
		}},
	}
	manager, runs, _, registry := newTestManager(t, scripts)

	run, err := manager.StartRun(context.Background(), "H1", "do it")
	require.NoError(t, err)
	require.NotNil(t, run)

	_, ok := registry.Get(run.ID)
	assert.True(t, ok, "hub must be open immediately after StartRun returns")

	require.Eventually(t, func() bool {
		got, err := runs.Get(context.Background(), run.ID)
		return err == nil && got.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	got, err := runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

// CancelRun on a pending run marks it cancelled in the store immediately,
// even before the worker pool has dispatched its executor.
func TestManager_CancelRun_Pending(t *testing.T) {
	scripts := map[string]adapter.Script{}
	manager, runs, _, _ := newTestManager(t, scripts)

	run, err := runs.Create(context.Background(), "H1", "do it")
	require.NoError(t, err)

	err = manager.CancelRun(context.Background(), run.ID)
	require.NoError(t, err)

	got, err := runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

// CancelRun on an already-terminal run returns a conflict, not a no-op
// success.
func TestManager_CancelRun_AlreadyTerminal(t *testing.T) {
	manager, runs, _, _ := newTestManager(t, map[string]adapter.Script{})

	run, err := runs.Create(context.Background(), "H1", "do it")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, runs.UpdateStatus(context.Background(), run.ID, domain.StatusCompleted, domain.StatusUpdate{CompletedAt: &now}))

	err = manager.CancelRun(context.Background(), run.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// StartRun against an unknown hierarchy fails before any run is created.
func TestManager_StartRun_UnknownHierarchy(t *testing.T) {
	manager, _, _, _ := newTestManager(t, map[string]adapter.Script{})

	_, err := manager.StartRun(context.Background(), "missing", "do it")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
