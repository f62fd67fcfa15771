// Package llm runs delegated tasks as single-turn model completions.
//
// Each provider executor sends one request: a system prompt framing the
// model as a sub-agent, and a user message carrying the task
// instructions and input. The text of the reply becomes the result.
// Request cancellation follows the task context, so cancelled and timed
// out tasks abort the HTTP call.
package llm

import (
	"errors"
	"strings"

	"github.com/dshills/delegate/internal/agent"
)

// DefaultSystemPrompt frames the model as a sub-agent.
const DefaultSystemPrompt = "You are a sub-agent working on one delegated task for a coordinating agent. " +
	"Complete the task described by the instructions using the provided input. " +
	"Reply with the result only, without preamble."

// Errors returned by the model executors.
var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrEmptyResponse is returned when the model reply has no text.
	ErrEmptyResponse = errors.New("model returned no text")
)

// Config configures a model executor.
type Config struct {
	// Model is the provider's model name.
	Model string

	// APIKey authenticates requests.
	APIKey string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// MaxTokens bounds the length of the reply.
	MaxTokens int

	// SystemPrompt replaces DefaultSystemPrompt when set.
	SystemPrompt string
}

func (c Config) validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (c Config) system() string {
	if s := strings.TrimSpace(c.SystemPrompt); s != "" {
		return s
	}
	return DefaultSystemPrompt
}

func (c Config) maxTokens() int64 {
	if c.MaxTokens <= 0 {
		return 4096
	}
	return int64(c.MaxTokens)
}

// UserPrompt renders the user message for a task.
func UserPrompt(task agent.Task) string {
	var b strings.Builder
	b.WriteString("Instructions:\n")
	b.WriteString(task.Instructions)
	if task.Input != "" {
		b.WriteString("\n\nInput:\n")
		b.WriteString(task.Input)
	}
	return b.String()
}

// joinText concatenates text parts, failing when nothing was returned.
func joinText(parts []string) (string, error) {
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
