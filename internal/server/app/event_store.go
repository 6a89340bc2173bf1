package app

import (
	"context"
	"sync"

	"github.com/catface996/aiops-executor/internal/domain"
	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

// InMemoryEventRepository implements ports.EventRepository. Events are
// retained indefinitely per run (spec.md §3 Lifecycles); retention policy
// beyond process lifetime is an external storage concern this core does not
// own (see spec.md §9 Open Questions).
type InMemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string][]*agentdomain.Event // runID -> events in insertion (== sequence) order
}

// NewInMemoryEventRepository creates an empty event repository.
func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{events: make(map[string][]*agentdomain.Event)}
}

// Insert implements ports.EventRepository. Persisted order equals insertion
// order, which the sink guarantees equals sequence order (§3 Event
// invariants: "Persisted order by sequence equals emission order").
func (r *InMemoryEventRepository) Insert(ctx context.Context, event *agentdomain.Event) error {
	if event.RunID == "" {
		return domain.ValidationError("event missing run id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.events[event.RunID]
	if len(existing) > 0 && existing[len(existing)-1].Sequence >= event.Sequence {
		return domain.PersistenceError("out-of-order insert for run %s: have seq %d, got %d", event.RunID, existing[len(existing)-1].Sequence, event.Sequence)
	}
	r.events[event.RunID] = append(existing, event)
	return nil
}

// MaxSequence implements ports.EventRepository.
func (r *InMemoryEventRepository) MaxSequence(ctx context.Context, runID string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.events[runID]
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Sequence, nil
}

// GetEvents implements ports.EventRepository.
func (r *InMemoryEventRepository) GetEvents(ctx context.Context, runID string) ([]*agentdomain.Event, error) {
	return r.EventsAfter(ctx, runID, 0)
}

// EventsAfter implements ports.EventRepository.
func (r *InMemoryEventRepository) EventsAfter(ctx context.Context, runID string, after uint64) ([]*agentdomain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.events[runID]
	out := make([]*agentdomain.Event, 0, len(events))
	for _, e := range events {
		if e.Sequence > after {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ ports.EventRepository = (*InMemoryEventRepository)(nil)
