package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catface996/aiops-executor/internal/domain"
)

func TestHierarchyStore_SeedAndGet(t *testing.T) {
	store := NewInMemoryHierarchyStore(testHierarchy())

	got, err := store.Get(context.Background(), "H1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Name)
}

func TestHierarchyStore_GetUnknownReturnsNotFound(t *testing.T) {
	store := NewInMemoryHierarchyStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHierarchyStore_GetReturnsIndependentClone(t *testing.T) {
	store := NewInMemoryHierarchyStore(testHierarchy())

	got, err := store.Get(context.Background(), "H1")
	require.NoError(t, err)
	got.Teams[0].Name = "mutated"

	got2, err := store.Get(context.Background(), "H1")
	require.NoError(t, err)
	assert.Equal(t, "Team", got2.Teams[0].Name)
}

func TestHierarchyStore_PutReplaces(t *testing.T) {
	store := NewInMemoryHierarchyStore(testHierarchy())

	replacement := testHierarchy()
	replacement.Name = "replaced"
	store.Put(replacement)

	got, err := store.Get(context.Background(), "H1")
	require.NoError(t, err)
	assert.Equal(t, "replaced", got.Name)
}
