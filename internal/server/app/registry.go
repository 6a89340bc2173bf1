package app

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
	"github.com/catface996/aiops-executor/internal/logging"
	"github.com/catface996/aiops-executor/internal/observability"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

// MetricsDropObserver adapts the observability metrics collector to the
// DropObserver interface, so every backpressure drop is also recorded as a
// Prometheus counter (spec.md §4.2, §7 SubscriberBackpressure).
type MetricsDropObserver struct {
	Metrics *observability.MetricsCollector
}

// OnSubscriberDropped implements DropObserver.
func (o MetricsDropObserver) OnSubscriberDropped(runID string) {
	if o.Metrics != nil {
		o.Metrics.RecordSubscriberDropped(context.Background())
	}
}

// replayKey identifies a cached replay read; two subscribers attaching at
// the same high-water mark share one store read while the entry is still in
// the size-bounded LRU (entries do not expire by time).
type replayKey struct {
	runID     string
	highWater uint64
}

// Registry is the process-wide map from run id to active broadcast hub
// (spec.md §4.3). Its lifecycle is tied to the run: Open before the started
// event, Close on terminal transition.
type Registry struct {
	events ports.EventRepository
	logger logging.Logger

	mu   sync.RWMutex
	hubs map[string]*hub

	replayCache *lru.Cache[replayKey, []*agentdomain.Event]

	subscriberBuf int
	dropObserver  DropObserver
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSubscriberBuffer sets the per-subscriber channel capacity (default
// DefaultSubscriberBuffer).
func WithSubscriberBuffer(n int) RegistryOption {
	return func(r *Registry) { r.subscriberBuf = n }
}

// WithDropObserver wires a callback invoked whenever backpressure drops a
// subscriber (§4.2).
func WithDropObserver(obs DropObserver) RegistryOption {
	return func(r *Registry) { r.dropObserver = obs }
}

// NewRegistry creates a Registry backed by events for replay reads.
func NewRegistry(events ports.EventRepository, opts ...RegistryOption) *Registry {
	cache, _ := lru.New[replayKey, []*agentdomain.Event](256)
	r := &Registry{
		events:        events,
		logger:        logging.NewComponentLogger("Registry"),
		hubs:          make(map[string]*hub),
		replayCache:   cache,
		subscriberBuf: DefaultSubscriberBuffer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ErrHubAlreadyOpen is returned by Open when a hub already exists for runID.
var ErrHubAlreadyOpen = fmt.Errorf("hub already open")

// Open registers a new hub for runID. Fails if one already exists (§4.3).
func (r *Registry) Open(runID string) (ports.Hub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hubs[runID]; exists {
		return nil, ErrHubAlreadyOpen
	}
	h := newHub(runID, r.subscriberBuf, r.dropObserver)
	r.hubs[runID] = h
	return h, nil
}

// Get returns the hub for runID, or (nil, false) if none is active — either
// the run never started or it has already terminated (§4.3 Failure
// semantics).
func (r *Registry) Get(runID string) (ports.Hub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hubs[runID]
	return h, ok
}

// Close removes and closes the hub for runID. Idempotent.
func (r *Registry) Close(runID string) {
	r.mu.Lock()
	h, ok := r.hubs[runID]
	if ok {
		delete(r.hubs, runID)
	}
	r.mu.Unlock()
	if ok {
		h.Close()
	}
}

// SubscribeWithReplay implements the full attach sequence from §4.3: it
// captures the hub's high-water mark, registers the subscriber for live
// events, then reads persisted events with sequence <= H from the store (the
// replay), returning both so the caller can deliver replay-then-live without
// a race — the subscriber cannot observe any event with sequence <= H on its
// live channel by construction (see hub.Subscribe's docstring).
func (r *Registry) SubscribeWithReplay(ctx context.Context, h ports.Hub, runID string) (sub ports.Subscriber, replay []*agentdomain.Event, err error) {
	sub, highWater := h.Subscribe()
	replay, err = r.replay(ctx, runID, highWater)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	return sub, replay, nil
}

func (r *Registry) replay(ctx context.Context, runID string, highWater uint64) ([]*agentdomain.Event, error) {
	key := replayKey{runID: runID, highWater: highWater}
	if cached, ok := r.replayCache.Get(key); ok {
		return cached, nil
	}
	events, err := r.events.EventsAfter(ctx, runID, 0)
	if err != nil {
		return nil, err
	}
	filtered := events[:0:0]
	for _, e := range events {
		if e.Sequence <= highWater {
			filtered = append(filtered, e)
		}
	}
	r.replayCache.Add(key, filtered)
	return filtered, nil
}
