// Package executor builds the agent.Executor selected by configuration.
//
// Supported kinds:
//
//	echo       - returns the instructions and input unchanged
//	lua        - runs a sandboxed Lua script (see package lua)
//	shell      - runs the instructions with a shell (see package shell)
//	anthropic  - single-turn Anthropic Messages completion
//	openai     - single-turn OpenAI chat completion
//	gemini     - single-turn Google Gemini completion
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/dshills/delegate/internal/agent"
	"github.com/dshills/delegate/internal/config"
	"github.com/dshills/delegate/internal/executor/llm"
	"github.com/dshills/delegate/internal/executor/lua"
	"github.com/dshills/delegate/internal/executor/shell"
)

// ErrUnknownKind is returned for an unsupported executor kind.
var ErrUnknownKind = errors.New("unknown executor kind")

// Echo returns the task instructions, followed by the input when present.
type Echo struct{}

// Execute implements agent.Executor.
func (Echo) Execute(ctx context.Context, task agent.Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", context.Cause(ctx)
	}
	if task.Input == "" {
		return task.Instructions, nil
	}
	return task.Instructions + "\n\n" + task.Input, nil
}

// New builds the executor for cfg. ctx bounds background work such as
// watching a Lua script; it is not used for task execution.
//
// Executors holding resources implement io.Closer; release them with Close.
func New(ctx context.Context, cfg config.ExecutorConfig, logger zerolog.Logger) (agent.Executor, error) {
	return build(ctx, cfg, logger, os.Getenv)
}

func build(ctx context.Context, cfg config.ExecutorConfig, logger zerolog.Logger, getenv func(string) string) (agent.Executor, error) {
	log := logger.With().Str("executor", cfg.Kind).Logger()

	switch cfg.Kind {
	case config.ExecutorEcho, "":
		return Echo{}, nil

	case config.ExecutorLua:
		e, err := lua.New(cfg.Lua.Script, lua.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if cfg.Lua.Watch {
			go func() {
				if err := e.Watch(ctx, nil); err != nil {
					log.Error().Err(err).Msg("lua watcher stopped")
				}
			}()
		}
		return e, nil

	case config.ExecutorShell:
		sc := shell.DefaultConfig()
		if cfg.Shell.Shell != "" {
			sc.Shell = cfg.Shell.Shell
		}
		if cfg.Shell.MaxOutputBytes > 0 {
			sc.MaxOutputBytes = cfg.Shell.MaxOutputBytes
		}
		sc.WorkingDir = cfg.Shell.WorkingDir
		sc.BlockedCommands = cfg.Shell.BlockedCommands
		return shell.New(sc, log)

	case config.ExecutorAnthropic:
		return llm.NewAnthropic(llmConfig(cfg.Anthropic, getenv), log)

	case config.ExecutorOpenAI:
		return llm.NewOpenAI(llmConfig(cfg.OpenAI, getenv), log)

	case config.ExecutorGemini:
		return llm.NewGemini(ctx, llmConfig(cfg.Gemini, getenv), log)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func llmConfig(c config.LLMConfig, getenv func(string) string) llm.Config {
	return llm.Config{
		Model:        c.Model,
		APIKey:       getenv(c.APIKeyEnv),
		BaseURL:      c.BaseURL,
		MaxTokens:    c.MaxTokens,
		SystemPrompt: c.SystemPrompt,
	}
}

// Close releases e if it holds resources.
func Close(e agent.Executor) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
