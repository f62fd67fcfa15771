package event

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultQueueSize is the async queue capacity per subscription.
const DefaultQueueSize = 256

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	queueSize int
	logger    zerolog.Logger
	now       func() time.Time
}

func defaultBusConfig() busConfig {
	return busConfig{
		queueSize: DefaultQueueSize,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
}

// WithQueueSize sets the default async queue capacity.
func WithQueueSize(size int) BusOption {
	return func(c *busConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithLogger sets the logger for handler errors and panics.
func WithLogger(l zerolog.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = l.With().Str("component", "event").Logger()
	}
}

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	mode      DeliveryMode
	filter    FilterFunc
	queueSize int
}

// WithDeliveryMode sets the delivery mode.
func WithDeliveryMode(m DeliveryMode) SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.mode = m
	}
}

// Async is shorthand for WithDeliveryMode(DeliveryAsync).
func Async() SubscriptionOption {
	return WithDeliveryMode(DeliveryAsync)
}

// WithFilter sets a filter predicate.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.filter = f
	}
}

// WithSubscriptionQueueSize overrides the async queue capacity for one
// subscription.
func WithSubscriptionQueueSize(size int) SubscriptionOption {
	return func(c *subscriptionConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}
