package agent

import (
	"context"
	"time"
)

// Task is the lifecycle record for one unit of delegated work.
//
// Tasks returned by the orchestrator are snapshots; mutating them has no
// effect on the registry.
type Task struct {
	// ID is the unique, immutable task identifier.
	ID string `json:"id"`

	// Instructions describe the work. Always non-empty and trimmed.
	Instructions string `json:"instructions"`

	// Input is optional auxiliary data for the work.
	Input string `json:"input,omitempty"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Timeout is the effective timeout applied to the execution.
	Timeout time.Duration `json:"timeout"`

	// CreatedAt is set when the task is admitted.
	CreatedAt time.Time `json:"createdAt"`

	// StartedAt is set when the task enters running.
	StartedAt time.Time `json:"startedAt,omitzero"`

	// CompletedAt is set when the task reaches a terminal state.
	CompletedAt time.Time `json:"completedAt,omitzero"`

	// Result is the executor output, present only when completed.
	Result string `json:"result,omitempty"`

	// Error is the failure reason for failed, timeout and cancelled tasks.
	Error string `json:"error,omitempty"`
}

// Duration returns how long the task has run. For tasks that have not
// started it returns zero; for running tasks it measures up to now.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if t.CompletedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// Executor performs the work of a task.
//
// Execute must eventually return. The context is cancelled when the task
// times out, is cancelled, or is orphaned by ClearAll; executors should
// observe it and stop early. The task argument is a copy.
type Executor interface {
	Execute(ctx context.Context, task Task) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task Task) (string, error)

// Execute calls f(ctx, task).
func (f ExecutorFunc) Execute(ctx context.Context, task Task) (string, error) {
	return f(ctx, task)
}

// Broadcaster receives a snapshot of a task after every state change.
//
// Broadcast is called synchronously. Calls for one task are serialized and in
// transition order; calls for different tasks may run concurrently. A slow
// Broadcast delays the later broadcasts of its task and the return of that
// task's Spawn. It may call back into the orchestrator. Panics are recovered
// and logged.
type Broadcaster interface {
	Broadcast(task Task)
}

// BroadcastFunc adapts a function to the Broadcaster interface.
type BroadcastFunc func(task Task)

// Broadcast calls f(task).
func (f BroadcastFunc) Broadcast(task Task) {
	f(task)
}

// SpawnRequest describes a task to spawn.
type SpawnRequest struct {
	// Instructions describe the work. Required.
	Instructions string

	// Input is optional auxiliary data.
	Input string

	// Timeout overrides the default timeout when positive.
	Timeout time.Duration
}

// Result is the outcome of a spawn.
type Result struct {
	// Success is true only for completed tasks.
	Success bool `json:"success"`

	// TaskID is empty when admission was rejected.
	TaskID string `json:"taskId,omitempty"`

	// Status is the final task status. Empty when admission was rejected.
	Status Status `json:"status,omitempty"`

	// Result is the executor output for completed tasks.
	Result string `json:"result,omitempty"`

	// Error is the failure reason.
	Error string `json:"error,omitempty"`

	// TimedOut distinguishes timeouts from other failures.
	TimedOut bool `json:"timedOut,omitempty"`

	// Code classifies the failure.
	Code ErrorCode `json:"code,omitempty"`
}

// Summary counts tasks per status.
type Summary struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Timeout   int `json:"timeout"`
	Total     int `json:"total"`
}

// Count returns the count for a single status.
func (s Summary) Count(status Status) int {
	switch status {
	case StatusPending:
		return s.Pending
	case StatusRunning:
		return s.Running
	case StatusCompleted:
		return s.Completed
	case StatusFailed:
		return s.Failed
	case StatusCancelled:
		return s.Cancelled
	case StatusTimeout:
		return s.Timeout
	default:
		return 0
	}
}

func (s *Summary) add(status Status) {
	switch status {
	case StatusPending:
		s.Pending++
	case StatusRunning:
		s.Running++
	case StatusCompleted:
		s.Completed++
	case StatusFailed:
		s.Failed++
	case StatusCancelled:
		s.Cancelled++
	case StatusTimeout:
		s.Timeout++
	}
	s.Total++
}
