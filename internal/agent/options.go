package agent

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default configuration values.
const (
	// DefaultMaxConcurrent is the default concurrency ceiling.
	DefaultMaxConcurrent = 3

	// DefaultTimeout is the default per-task timeout.
	DefaultTimeout = 5 * time.Minute
)

// Config holds the fixed orchestrator limits.
type Config struct {
	// MaxConcurrent is the maximum number of tasks admitted at once.
	MaxConcurrent int

	// DefaultTimeout applies when a spawn request has no timeout.
	DefaultTimeout time.Duration
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  DefaultMaxConcurrent,
		DefaultTimeout: DefaultTimeout,
	}
}

// Recorder observes orchestrator activity for metrics.
type Recorder interface {
	// TaskAdmitted is called when a task passes admission.
	TaskAdmitted()

	// TaskRejected is called when admission fails.
	TaskRejected(code ErrorCode)

	// TaskStarted is called when a task enters running.
	TaskStarted(running int)

	// TaskFinished is called when a task reaches a terminal state.
	TaskFinished(status Status, ran time.Duration, running int)
}

type nopRecorder struct{}

func (nopRecorder) TaskAdmitted()                           {}
func (nopRecorder) TaskRejected(ErrorCode)                  {}
func (nopRecorder) TaskStarted(int)                         {}
func (nopRecorder) TaskFinished(Status, time.Duration, int) {}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxConcurrent sets the concurrency ceiling. Values below 1 are ignored.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.config.MaxConcurrent = n
		}
	}
}

// WithDefaultTimeout sets the default per-task timeout. Non-positive values
// are ignored.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.config.DefaultTimeout = d
		}
	}
}

// WithConfig applies both limits from cfg.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		WithMaxConcurrent(cfg.MaxConcurrent)(o)
		WithDefaultTimeout(cfg.DefaultTimeout)(o)
	}
}

// WithExecutor installs the executor at construction.
func WithExecutor(e Executor) Option {
	return func(o *Orchestrator) {
		o.executor = e
	}
}

// WithBroadcaster installs the broadcaster at construction.
func WithBroadcaster(b Broadcaster) Option {
	return func(o *Orchestrator) {
		o.broadcaster = b
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l.With().Str("component", "agent").Logger()
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithIDGenerator replaces the task ID generator. The generator must never
// return the same ID twice.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func newUUID() string {
	return uuid.NewString()
}
