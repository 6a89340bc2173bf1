package ports

import agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"

// Hub is the per-run broadcast point the SSE Registry hands out (spec.md
// §4.3). It is opened before the started event and closed on terminal
// transition; no subscriber state survives a close.
type Hub interface {
	// Subscribe adds a new subscriber, returning its channel and a high-water
	// sequence: events with sequence <= high-water must come from a replay
	// read of the store; the caller then uses the channel for live events
	// strictly greater than high-water.
	Subscribe() (sub Subscriber, highWater uint64)
	// Publish delivers event to every live subscriber whose sequence is
	// strictly greater than the subscriber's replay high-water mark. Never
	// blocks (§4.2).
	Publish(event *agentdomain.Event)
	// Close closes every subscriber and marks the hub closed. Idempotent.
	Close()
	// HighWater returns the hub's current high-water sequence under its lock.
	HighWater() uint64
	// Unsubscribe removes sub from the fan-out set and closes it. Consumers
	// that detach before the run terminates (e.g. a client disconnect) must
	// call this rather than sub.Close() directly, or the hub keeps iterating
	// a dead subscriber for the rest of the run (§4.2 "the consumer must
	// unregister").
	Unsubscribe(sub Subscriber)
}

// Subscriber is a bounded in-order queue of events plus a closed signal
// (spec.md §4.2).
type Subscriber interface {
	// Events is the channel subscribers range/select over; it is closed when
	// the subscriber is closed (by consumer unregister or slow-consumer
	// drop).
	Events() <-chan *agentdomain.Event
	// Dropped reports whether this subscriber was closed due to backpressure
	// rather than a normal unregister.
	Dropped() bool
	// Close is idempotent.
	Close()
}
