package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is matched by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// FieldError reports a problem with a single setting.
type FieldError struct {
	// Field is the dotted TOML path of the setting.
	Field string

	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Is matches ErrInvalidConfig.
func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func fieldError(field, message string) error {
	return &FieldError{Field: field, Message: message}
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
