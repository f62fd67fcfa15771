package agent

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusPending indicates the task was admitted but has not started.
	StatusPending Status = "pending"
	// StatusRunning indicates the executor is working on the task.
	StatusRunning Status = "running"
	// StatusCompleted indicates the executor returned a result.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the executor returned an error.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the task was cancelled.
	StatusCancelled Status = "cancelled"
	// StatusTimeout indicates the task exceeded its timeout.
	StatusTimeout Status = "timeout"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusTimeout,
}

// String returns the status as a string.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions can occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// IsActive returns true for pending and running tasks.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// ParseStatus parses a status name. Matching is case-insensitive and
// accepts the "canceled" spelling.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "running":
		return StatusRunning, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "timeout":
		return StatusTimeout, nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}
