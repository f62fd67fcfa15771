package event

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is a registered handler for a topic pattern.
type Subscription struct {
	id      string
	pattern Topic
	handler Handler
	config  subscriptionConfig

	// mu guards closed against concurrent sends on queue.
	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}

	dropped atomic.Uint64
}

func newSubscription(id string, pattern Topic, h Handler, config subscriptionConfig) *Subscription {
	s := &Subscription{
		id:      id,
		pattern: pattern,
		handler: h,
		config:  config,
	}
	if config.mode == DeliveryAsync {
		s.queue = make(chan Event, config.queueSize)
		s.done = make(chan struct{})
	}
	return s
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Pattern returns the subscribed topic pattern.
func (s *Subscription) Pattern() Topic {
	return s.pattern
}

// Mode returns the delivery mode.
func (s *Subscription) Mode() DeliveryMode {
	return s.config.mode
}

// Dropped returns how many events this subscription lost to a full queue.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// IsClosed reports whether the subscription has been removed.
func (s *Subscription) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Subscription) accepts(ev Event) bool {
	if !ev.Topic.Matches(s.pattern) {
		return false
	}
	return s.config.filter == nil || s.config.filter(ev)
}

// enqueue offers ev to the async queue and reports whether it was dropped.
// Events offered after close are discarded without counting.
func (s *Subscription) enqueue(ev Event) (dropped bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.queue <- ev:
		return false
	default:
		s.dropped.Add(1)
		return true
	}
}

func (s *Subscription) depth() int {
	if s.queue == nil {
		return 0
	}
	return len(s.queue)
}

// run drains the async queue until it is closed.
func (s *Subscription) run(dispatch func(context.Context, *Subscription, Event)) {
	defer close(s.done)
	for ev := range s.queue {
		dispatch(context.Background(), s, ev)
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.queue != nil {
		close(s.queue)
	}
}

// wait blocks until queued events have been handled or ctx ends.
func (s *Subscription) wait(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
