package app

import (
	"context"
	"sync"
	"time"

	"github.com/catface996/aiops-executor/internal/domain"
	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
	"github.com/catface996/aiops-executor/internal/id"
	"github.com/catface996/aiops-executor/internal/logging"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

// runCounter is a per-run monotonic sequence counter guarded by its own
// mutex — never a global lock (spec.md §4.1, §5).
type runCounter struct {
	mu      sync.Mutex
	current uint64
}

func (c *runCounter) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// Sink persists events and notifies the run's hub, in that order: the
// sequence is allocated, the row written, and only then is the hub
// notified (§4.1). Publication failures are logged and ignored; persistence
// failures are fatal for the run and are returned to the caller so the
// executor can terminate it.
type Sink struct {
	events    ports.EventRepository
	hubs      *Registry
	logger    logging.Logger
	listeners []agentdomain.EventListener

	mu       sync.Mutex
	counters map[string]*runCounter
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithEventListeners registers listeners notified, in order, after every
// successfully persisted event — the same fan-out seam the teacher's
// broadcaster exposes to progress trackers, retargeted here so observability
// concerns (per-category counters) don't have to be threaded through the
// executor's own emit closure.
func WithEventListeners(listeners ...agentdomain.EventListener) SinkOption {
	return func(s *Sink) { s.listeners = append(s.listeners, listeners...) }
}

// NewSink creates a Sink backed by events for durability and hubs for
// fan-out.
func NewSink(events ports.EventRepository, hubs *Registry, opts ...SinkOption) *Sink {
	s := &Sink{
		events:   events,
		hubs:     hubs,
		logger:   logging.NewComponentLogger("EventSink"),
		counters: make(map[string]*runCounter),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Sink) counterFor(ctx context.Context, runID string) (*runCounter, error) {
	s.mu.Lock()
	c, ok := s.counters[runID]
	if !ok {
		c = &runCounter{}
		s.counters[runID] = c
	}
	s.mu.Unlock()

	if !ok {
		// Recovery: initialize from max(sequence) of persisted events so a
		// restarted process resumes numbering correctly (§4.1).
		maxSeq, err := s.events.MaxSequence(ctx, runID)
		if err != nil {
			return nil, domain.PersistenceError("load max sequence for run %s: %v", runID, err)
		}
		c.mu.Lock()
		if c.current < maxSeq {
			c.current = maxSeq
		}
		c.mu.Unlock()
	}
	return c, nil
}

// Emit assigns the next sequence for draft.RunID, stamps the timestamp,
// persists the event, then publishes it to the run's hub if one is active.
// Returns the assigned sequence.
func (s *Sink) Emit(ctx context.Context, draft *agentdomain.Event) (uint64, error) {
	counter, err := s.counterFor(ctx, draft.RunID)
	if err != nil {
		return 0, err
	}

	seq := counter.next()
	draft.Sequence = seq
	draft.Ts = time.Now().UTC()
	if draft.ID == "" {
		draft.ID = id.NewEventID()
	}

	if err := s.events.Insert(ctx, draft); err != nil {
		return 0, domain.PersistenceError("insert event for run %s seq %d: %v", draft.RunID, seq, err)
	}

	if hub, ok := s.hubs.Get(draft.RunID); ok {
		// Publish never blocks and never fails in a way that rolls back
		// persistence; the source of truth is the store (§4.1).
		hub.Publish(draft)
	}

	for _, l := range s.listeners {
		l.OnEvent(draft)
	}

	return seq, nil
}

// Forget releases the run's in-memory sequence counter once the run has
// reached a terminal state — called by the executor's guaranteed-final
// cleanup step.
func (s *Sink) Forget(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, runID)
}
