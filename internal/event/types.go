package event

import (
	"context"
	"time"

	"github.com/dshills/delegate/internal/agent"
)

// Event is a task snapshot published on a topic.
type Event struct {
	// Topic is derived from the task status.
	Topic Topic

	// Task is the snapshot taken at the transition.
	Task agent.Task

	// Timestamp is when the bus accepted the event.
	Timestamp time.Time
}

// DeliveryMode specifies how events reach a handler.
type DeliveryMode int

const (
	// DeliverySync runs the handler in the publisher's goroutine.
	DeliverySync DeliveryMode = iota

	// DeliveryAsync queues the event for the subscription's own goroutine.
	DeliveryAsync
)

// String returns a human-readable delivery mode name.
func (m DeliveryMode) String() string {
	switch m {
	case DeliverySync:
		return "sync"
	case DeliveryAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Handler processes events.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// FilterFunc is a predicate for filtering events.
// Return true to deliver the event.
type FilterFunc func(ev Event) bool

// Stats contains bus statistics.
type Stats struct {
	// EventsPublished is the number of events accepted by Publish.
	EventsPublished uint64

	// EventsDelivered is the number of successful handler invocations.
	EventsDelivered uint64

	// EventsDropped is the number of events lost to full async queues.
	EventsDropped uint64

	// HandlerErrors is the number of handlers that returned errors.
	HandlerErrors uint64

	// HandlerPanics is the number of handlers that panicked.
	HandlerPanics uint64

	// Subscribers is the current number of subscriptions.
	Subscribers int

	// QueueDepth is the number of events waiting in async queues.
	QueueDepth int
}
