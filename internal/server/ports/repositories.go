// Package ports declares the interfaces the run execution subsystem depends
// on but does not implement itself: the persistent store's repositories and
// the broadcast hub the HTTP facade attaches subscribers to. Concrete
// implementations live in internal/server/app.
package ports

import (
	"context"

	"github.com/catface996/aiops-executor/internal/domain"
	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
)

// RunFilters narrows a RunRepository.List call.
type RunFilters struct {
	HierarchyID string
	Status      domain.Status
}

// RunRepository persists run records. See spec.md §6.
type RunRepository interface {
	Create(ctx context.Context, hierarchyID, task string) (*domain.Run, error)
	Get(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, page, size int, filters RunFilters) (runs []*domain.Run, total int, err error)
	UpdateStatus(ctx context.Context, id string, status domain.Status, update domain.StatusUpdate) error
	SetTopology(ctx context.Context, id string, topology domain.Hierarchy) error
}

// EventRepository persists the durable, append-only event log. See spec.md §6.
type EventRepository interface {
	Insert(ctx context.Context, event *agentdomain.Event) error
	MaxSequence(ctx context.Context, runID string) (uint64, error)
	// GetEvents returns all persisted events for runID in sequence order.
	GetEvents(ctx context.Context, runID string) ([]*agentdomain.Event, error)
	// EventsAfter returns persisted events for runID with sequence > after, in
	// order; used by the registry's replay path (§4.3).
	EventsAfter(ctx context.Context, runID string, after uint64) ([]*agentdomain.Event, error)
}

// HierarchyRepository resolves hierarchy definitions. Read-only to this core
// (spec.md §3); the CRUD surface that creates/edits hierarchies is external.
type HierarchyRepository interface {
	Get(ctx context.Context, id string) (*domain.Hierarchy, error)
}
