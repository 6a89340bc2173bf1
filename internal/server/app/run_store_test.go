package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catface996/aiops-executor/internal/domain"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

func TestRunStore_CreateGetUpdateStatus(t *testing.T) {
	store := NewInMemoryRunStore()
	t.Cleanup(store.Close)

	run, err := store.Create(context.Background(), "H1", "do it")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, run.Status)

	result := "done"
	require.NoError(t, store.UpdateStatus(context.Background(), run.ID, domain.StatusCompleted, domain.StatusUpdate{Result: &result}))

	got, err := store.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "done", got.Result)
	assert.NotNil(t, got.CompletedAt)
	assert.NotNil(t, got.StartedAt)
}

func TestRunStore_GetUnknownReturnsNotFound(t *testing.T) {
	store := NewInMemoryRunStore()
	t.Cleanup(store.Close)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunStore_ListFiltersByHierarchyAndStatus(t *testing.T) {
	store := NewInMemoryRunStore()
	t.Cleanup(store.Close)

	run1, err := store.Create(context.Background(), "H1", "a")
	require.NoError(t, err)
	_, err = store.Create(context.Background(), "H2", "b")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(context.Background(), run1.ID, domain.StatusCompleted, domain.StatusUpdate{}))

	matches, total, err := store.List(context.Background(), 1, 20, ports.RunFilters{HierarchyID: "H1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, matches, 1)
	assert.Equal(t, run1.ID, matches[0].ID)

	matches, total, err = store.List(context.Background(), 1, 20, ports.RunFilters{Status: domain.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, matches, 1)
	assert.Equal(t, run1.ID, matches[0].ID)
}

func TestRunStore_SetTopologyClonesHierarchy(t *testing.T) {
	store := NewInMemoryRunStore()
	t.Cleanup(store.Close)

	run, err := store.Create(context.Background(), "H1", "do it")
	require.NoError(t, err)

	h := testHierarchy()
	require.NoError(t, store.SetTopology(context.Background(), run.ID, h))

	h.Teams[0].Name = "mutated after SetTopology"

	got, err := store.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Topology)
	assert.Equal(t, "Team", got.Topology.Teams[0].Name)
}

func TestRunStore_PersistsSnapshotToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.json")

	store := NewInMemoryRunStore(WithRunPersistenceFile(path))
	run, err := store.Create(context.Background(), "H1", "do it")
	require.NoError(t, err)
	store.Close()

	reopened := NewInMemoryRunStore(WithRunPersistenceFile(path))
	t.Cleanup(reopened.Close)

	got, err := reopened.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "do it", got.Task)
}

func TestRunStore_RetentionEvictsOldTerminalRuns(t *testing.T) {
	store := NewInMemoryRunStore(WithRunRetention(0))
	t.Cleanup(store.Close)

	run, err := store.Create(context.Background(), "H1", "do it")
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.UpdateStatus(context.Background(), run.ID, domain.StatusCompleted, domain.StatusUpdate{CompletedAt: &past}))

	store.evictExpired()

	_, err = store.Get(context.Background(), run.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
