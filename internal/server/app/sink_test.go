package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
)

func draftEvent(runID string) *agentdomain.Event {
	return agentdomain.New(
		agentdomain.Source{AgentID: "a", AgentType: agentdomain.AgentWorker},
		agentdomain.Classification{Category: agentdomain.CategoryLLM, Action: agentdomain.ActionStream},
		map[string]any{"delta": "x"},
	)
}

func TestSink_AssignsMonotonicSequencePerRun(t *testing.T) {
	events := NewInMemoryEventRepository()
	registry := NewRegistry(events)
	sink := NewSink(events, registry)

	for i := 1; i <= 3; i++ {
		ev := draftEvent("run-1")
		ev.RunID = "run-1"
		seq, err := sink.Emit(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), seq)
	}

	persisted, err := events.GetEvents(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, persisted, 3)
	for i, e := range persisted {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
}

// Two runs' sequences are independent.
func TestSink_SequencesAreIndependentPerRun(t *testing.T) {
	events := NewInMemoryEventRepository()
	registry := NewRegistry(events)
	sink := NewSink(events, registry)

	ev1 := draftEvent("run-a")
	ev1.RunID = "run-a"
	seq1, err := sink.Emit(context.Background(), ev1)
	require.NoError(t, err)

	ev2 := draftEvent("run-b")
	ev2.RunID = "run-b"
	seq2, err := sink.Emit(context.Background(), ev2)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(1), seq2)
}

// After Forget, a fresh Emit for the same run recovers its counter from the
// store's max persisted sequence rather than restarting at 1.
func TestSink_ForgetThenRecoverFromMaxSequence(t *testing.T) {
	events := NewInMemoryEventRepository()
	registry := NewRegistry(events)
	sink := NewSink(events, registry)

	ev := draftEvent("run-1")
	ev.RunID = "run-1"
	_, err := sink.Emit(context.Background(), ev)
	require.NoError(t, err)

	sink.Forget("run-1")

	ev2 := draftEvent("run-1")
	ev2.RunID = "run-1"
	seq, err := sink.Emit(context.Background(), ev2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq, "recovered counter must continue past the last persisted sequence")
}

// Emit notifies every registered listener, in order, after persisting.
func TestSink_NotifiesEventListenersAfterPersist(t *testing.T) {
	events := NewInMemoryEventRepository()
	registry := NewRegistry(events)

	var observed []string
	listener := agentdomain.EventListenerFunc(func(e agentdomain.AgentEvent) {
		observed = append(observed, e.EventType())
	})
	sink := NewSink(events, registry, WithEventListeners(listener))

	ev := draftEvent("run-1")
	ev.RunID = "run-1"
	_, err := sink.Emit(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, observed, 1)
	assert.Equal(t, "llm.stream", observed[0])

	persisted, err := events.GetEvents(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, persisted, 1, "listener must run after the event is durably persisted")
}

// Emit publishes to an active hub after persisting.
func TestSink_PublishesToActiveHub(t *testing.T) {
	events := NewInMemoryEventRepository()
	registry := NewRegistry(events)
	sink := NewSink(events, registry)

	hub, err := registry.Open("run-1")
	require.NoError(t, err)
	sub, _ := hub.Subscribe()

	ev := draftEvent("run-1")
	ev.RunID = "run-1"
	_, err = sink.Emit(context.Background(), ev)
	require.NoError(t, err)

	got := <-sub.Events()
	assert.Equal(t, uint64(1), got.Sequence)
}
