package app

import (
	"sync"

	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

// DefaultSubscriberBuffer is the recommended bound from spec.md §4.2.
const DefaultSubscriberBuffer = 256

// subscriber is a bounded in-order queue of events plus a closed signal
// (spec.md §4.2). Producers call offer (never blocking); the consumer ranges
// over Events(). All state mutation goes through mu so that a concurrent
// offer and Close can never both touch the channel — offer never blocks on
// mu because the hub only ever calls it from the single-threaded publish
// path (§4.1), and Close is rare (consumer unregister or terminal hub close).
type subscriber struct {
	mu      sync.Mutex
	ch      chan *agentdomain.Event
	closed  bool
	dropped bool
}

func newSubscriber(buffer int) *subscriber {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &subscriber{ch: make(chan *agentdomain.Event, buffer)}
}

// offer attempts a non-blocking send. If the buffer is full, the subscriber
// is dropped (closed with dropped=true) rather than blocking the producer —
// this is what keeps the sink's publish path wait-free (§4.2, §5). Before
// closing, it evicts the oldest queued event to make room for a
// system.warning "slow_consumer" sentinel, so the consumer learns why its
// stream ended rather than just observing a closed channel.
func (s *subscriber) offer(event *agentdomain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}

	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- agentdomain.WithWarningSentinel(event.RunID, "slow_consumer"):
	default:
	}
	s.dropped = true
	s.closed = true
	close(s.ch)
}

func (s *subscriber) Events() <-chan *agentdomain.Event { return s.ch }

func (s *subscriber) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close is idempotent (§4.2).
func (s *subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

var _ ports.Subscriber = (*subscriber)(nil)
