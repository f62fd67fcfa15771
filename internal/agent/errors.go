package agent

import "errors"

// ErrorCode classifies spawn and execution failures.
type ErrorCode string

const (
	// CodeNoExecutor means no executor is installed.
	CodeNoExecutor ErrorCode = "NoExecutor"
	// CodeConcurrencyLimit means the concurrency ceiling was reached.
	CodeConcurrencyLimit ErrorCode = "ConcurrencyLimitExceeded"
	// CodeInvalidInstructions means the instructions were empty.
	CodeInvalidInstructions ErrorCode = "InvalidInstructions"
	// CodeExecutionFailure means the executor returned an error.
	CodeExecutionFailure ErrorCode = "ExecutionFailure"
	// CodeExecutionTimeout means the executor did not finish in time.
	CodeExecutionTimeout ErrorCode = "ExecutionTimeout"
	// CodeCancelled means cancellation was requested.
	CodeCancelled ErrorCode = "CancellationRequested"
	// CodeTaskNotFound means the task does not exist.
	CodeTaskNotFound ErrorCode = "TaskNotFound"
	// CodeRegistryCleared means the task was dropped by ClearAll while running.
	CodeRegistryCleared ErrorCode = "RegistryCleared"
)

// Retryable reports whether the same request may succeed later unchanged.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeConcurrencyLimit, CodeExecutionTimeout, CodeNoExecutor:
		return true
	default:
		return false
	}
}

// Sentinel errors for the orchestrator.
var (
	// ErrNoExecutor is returned when spawning without an executor.
	ErrNoExecutor = errors.New("no executor installed")

	// ErrConcurrencyLimit is returned when the concurrency ceiling is reached.
	ErrConcurrencyLimit = errors.New("concurrency limit exceeded")

	// ErrInvalidInstructions is returned for empty or whitespace instructions.
	ErrInvalidInstructions = errors.New("instructions must not be empty")

	// ErrExecutionFailed is returned when the executor fails.
	ErrExecutionFailed = errors.New("task execution failed")

	// ErrExecutionTimeout is returned when the executor exceeds the timeout.
	ErrExecutionTimeout = errors.New("task execution timeout")

	// ErrCancelled is returned when the task was cancelled.
	ErrCancelled = errors.New("task cancelled")

	// ErrTaskNotFound is returned when a task ID is unknown.
	ErrTaskNotFound = errors.New("task not found")

	// ErrRegistryCleared is returned to a spawn caller whose task was removed
	// by ClearAll before it finished.
	ErrRegistryCleared = errors.New("task registry cleared")
)

// Fixed messages recorded on tasks.
const (
	timeoutMessage = "task timed out"
	cancelMessage  = "task cancelled"
)

var codeSentinels = map[ErrorCode]error{
	CodeNoExecutor:          ErrNoExecutor,
	CodeConcurrencyLimit:    ErrConcurrencyLimit,
	CodeInvalidInstructions: ErrInvalidInstructions,
	CodeExecutionFailure:    ErrExecutionFailed,
	CodeExecutionTimeout:    ErrExecutionTimeout,
	CodeCancelled:           ErrCancelled,
	CodeTaskNotFound:        ErrTaskNotFound,
	CodeRegistryCleared:     ErrRegistryCleared,
}

// Error is the structured failure returned by Spawn and Start.
type Error struct {
	// Code classifies the failure.
	Code ErrorCode

	// TaskID is the affected task, empty for admission failures.
	TaskID string

	// Message is the human-readable reason.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.TaskID != "" {
		prefix += " (task " + e.TaskID + ")"
	}
	if e.Message == "" {
		return prefix
	}
	return prefix + ": " + e.Message
}

// Is matches the sentinel error for the code.
func (e *Error) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// CodeOf extracts the ErrorCode from err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code ErrorCode, taskID string) *Error {
	return &Error{
		Code:    code,
		TaskID:  taskID,
		Message: codeSentinels[code].Error(),
	}
}
