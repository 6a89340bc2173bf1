package app

import (
	"sync"

	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

// DropObserver is notified whenever a subscriber is dropped for slow
// consumption (§4.2). Wired to observability counters by the caller; nil is
// safe.
type DropObserver interface {
	OnSubscriberDropped(runID string)
}

// hub is the in-memory broadcast point for one run's live events (§4.3). Its
// high-water sequence and subscriber set are guarded by the same mutex so
// Subscribe's "capture H, then register" step is atomic — a new subscriber
// only ever observes live events with sequence strictly greater than the H
// it was handed, by construction (it was not yet registered when any event
// with sequence <= H was published). No per-event filtering is needed.
type hub struct {
	runID           string
	subscriberBuf   int
	dropObserver    DropObserver

	mu          sync.Mutex
	highWater   uint64
	subscribers map[*subscriber]struct{}
	closed      bool
}

func newHub(runID string, subscriberBuf int, dropObserver DropObserver) *hub {
	return &hub{
		runID:         runID,
		subscriberBuf: subscriberBuf,
		dropObserver:  dropObserver,
		subscribers:   make(map[*subscriber]struct{}),
	}
}

// Subscribe implements ports.Hub.
func (h *hub) Subscribe() (ports.Subscriber, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := newSubscriber(h.subscriberBuf)
	if h.closed {
		// Hub already terminal: hand back an immediately-closed subscriber so
		// callers fall back to the events endpoint, matching §4.3's
		// "If the run has already terminated and the hub is gone" semantics
		// for the narrow race where Close() runs between Registry.Get and
		// Subscribe.
		sub.Close()
		return sub, h.highWater
	}
	h.subscribers[sub] = struct{}{}
	return sub, h.highWater
}

// Publish implements ports.Hub. Never blocks: offer is itself non-blocking,
// and a full subscriber is dropped rather than stalling the publisher.
func (h *hub) Publish(event *agentdomain.Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if event.Sequence > h.highWater {
		h.highWater = event.Sequence
	}
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.offer(event)
		if sub.Dropped() {
			h.forget(sub)
			if h.dropObserver != nil {
				h.dropObserver.OnSubscriberDropped(h.runID)
			}
		}
	}
}

func (h *hub) forget(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
}

// Unsubscribe removes sub from the fan-out set without closing its channel
// twice; used by consumers that unregister on normal disconnect rather than
// backpressure drop.
func (h *hub) Unsubscribe(sub ports.Subscriber) {
	if concrete, ok := sub.(*subscriber); ok {
		h.forget(concrete)
	}
	sub.Close()
}

// Close implements ports.Hub. Idempotent.
func (h *hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// HighWater implements ports.Hub.
func (h *hub) HighWater() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.highWater
}

var _ ports.Hub = (*hub)(nil)
