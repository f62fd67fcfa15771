package event

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dshills/delegate/internal/agent"
)

// Bus is a topic-based publish/subscribe hub for task events.
// It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool

	config busConfig
	nextID atomic.Uint64

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	errs      atomic.Uint64
	panics    atomic.Uint64
}

// Bus is usable as the orchestrator's broadcaster.
var _ agent.Broadcaster = (*Bus)(nil)

// NewBus creates an event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Bus{config: config}
}

// Subscribe registers handler for events whose topic matches pattern.
func (b *Bus) Subscribe(pattern Topic, handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if !pattern.IsValid() {
		return nil, ErrInvalidTopic
	}

	config := subscriptionConfig{mode: DeliverySync, queueSize: b.config.queueSize}
	for _, opt := range opts {
		opt(&config)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	sub := newSubscription(id, pattern, handler, config)
	if config.mode == DeliveryAsync {
		go sub.run(b.dispatch)
	}
	b.subs = append(b.subs, sub)
	return sub, nil
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(pattern Topic, fn HandlerFunc, opts ...SubscriptionOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.Subscribe(pattern, fn, opts...)
}

// Unsubscribe removes a subscription. Events already queued for an async
// subscription are still delivered. It may be called from a handler.
func (b *Bus) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return ErrSubscriptionNotFound
	}

	b.mu.Lock()
	idx := -1
	for i, s := range b.subs {
		if s == sub {
			idx = i
			break
		}
	}
	if idx >= 0 {
		b.subs = append(b.subs[:idx:idx], b.subs[idx+1:]...)
	}
	b.mu.Unlock()

	if idx < 0 {
		return ErrSubscriptionNotFound
	}
	sub.close()
	return nil
}

// Publish delivers ev to every matching subscription. Sync handlers run
// before Publish returns; async handlers receive the event on their queue.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if !ev.Topic.IsValid() || ev.Topic.IsWildcard() {
		return ErrInvalidTopic
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	matched := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.accepts(ev) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.config.now()
	}
	b.published.Add(1)

	for _, sub := range matched {
		if sub.config.mode == DeliveryAsync {
			if sub.enqueue(ev) {
				b.dropped.Add(1)
				b.config.logger.Warn().
					Str("subscription", sub.id).
					Str("topic", ev.Topic.String()).
					Msg("event dropped, queue full")
			}
			continue
		}
		if sub.IsClosed() {
			continue
		}
		b.dispatch(ctx, sub, ev)
	}

	return nil
}

// Broadcast publishes a task snapshot on its status topic.
func (b *Bus) Broadcast(task agent.Task) {
	err := b.Publish(context.Background(), Event{
		Topic: TaskTopic(task.Status),
		Task:  task,
	})
	if err != nil && !errors.Is(err, ErrBusClosed) {
		b.config.logger.Warn().Err(err).Str("task_id", task.ID).Msg("broadcast failed")
	}
}

// Close removes every subscription and waits until async queues drain or
// ctx ends. Publishing to a closed bus returns ErrBusClosed.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	for _, sub := range subs {
		if err := sub.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subscribers := len(b.subs)
	depth := 0
	for _, sub := range b.subs {
		depth += sub.depth()
	}
	b.mu.RUnlock()

	return Stats{
		EventsPublished: b.published.Load(),
		EventsDelivered: b.delivered.Load(),
		EventsDropped:   b.dropped.Load(),
		HandlerErrors:   b.errs.Load(),
		HandlerPanics:   b.panics.Load(),
		Subscribers:     subscribers,
		QueueDepth:      depth,
	}
}

// dispatch runs one handler, isolating panics from the publisher.
func (b *Bus) dispatch(ctx context.Context, sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.config.logger.Error().
				Err(&PanicError{SubscriptionID: sub.id, Topic: ev.Topic, Value: r}).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	if err := sub.handler.Handle(ctx, ev); err != nil {
		b.errs.Add(1)
		b.config.logger.Warn().
			Err(err).
			Str("subscription", sub.id).
			Str("topic", ev.Topic.String()).
			Msg("event handler failed")
		return
	}
	b.delivered.Add(1)
}
