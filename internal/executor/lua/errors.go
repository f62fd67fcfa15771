package lua

import "errors"

// Errors for Lua script execution.
var (
	// ErrNoRunFunction is returned when the script does not define run.
	ErrNoRunFunction = errors.New("script does not define a run function")

	// ErrBadResult is returned when run returns something other than a string.
	ErrBadResult = errors.New("run must return a string")

	// ErrScriptFailed wraps failures reported by the script itself.
	ErrScriptFailed = errors.New("script failed")
)
