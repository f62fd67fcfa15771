package bridge

import "errors"

// Request errors reported back to the host.
var (
	// ErrMalformedRequest is returned for lines that are not JSON objects.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrMissingOp is returned when a request has no op.
	ErrMissingOp = errors.New("request has no op")

	// ErrUnknownOp is returned for unsupported operations.
	ErrUnknownOp = errors.New("unknown op")

	// ErrMissingTaskID is returned when a task operation has no taskId.
	ErrMissingTaskID = errors.New("request has no taskId")
)
