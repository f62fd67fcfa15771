// Package shell runs delegated tasks as shell scripts.
//
// The task instructions are passed to the shell with -c and the task
// input is written to stdin. Standard output becomes the result; a
// non-zero exit fails the task with the tail of standard error.
//
// Scripts run in their own process group so cancellation kills the whole
// pipeline, not just the shell. Before anything runs, the script is
// checked against a command blocklist and a set of blocked patterns.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/delegate/internal/agent"
)

// Defaults for Config.
const (
	DefaultShell          = "/bin/sh"
	DefaultMaxOutputBytes = 64 * 1024
	DefaultMaxScriptBytes = 16 * 1024
	DefaultWaitDelay      = 2 * time.Second
)

// truncatedMarker is appended to output cut at MaxOutputBytes.
const truncatedMarker = "\n[output truncated]"

// Config configures the shell executor.
type Config struct {
	// Shell is the interpreter invoked as "<shell> -c <instructions>".
	Shell string

	// WorkingDir is the directory scripts run in. Empty means the
	// engine's working directory.
	WorkingDir string

	// BlockedCommands are added to DefaultBlockedCommands.
	BlockedCommands []string

	// BlockedPatterns are added to DefaultBlockedPatterns.
	BlockedPatterns []string

	// MaxOutputBytes caps the captured stdout and stderr each.
	MaxOutputBytes int

	// MaxScriptBytes caps the length of the instructions.
	MaxScriptBytes int

	// Env is added to the inherited environment.
	Env map[string]string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Shell:          DefaultShell,
		MaxOutputBytes: DefaultMaxOutputBytes,
		MaxScriptBytes: DefaultMaxScriptBytes,
	}
}

// Executor runs task instructions with a shell.
type Executor struct {
	config Config
	policy *policy
	logger zerolog.Logger
}

// New creates a shell executor.
func New(config Config, logger zerolog.Logger) (*Executor, error) {
	if config.Shell == "" {
		config.Shell = DefaultShell
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = DefaultMaxOutputBytes
	}

	blocked := append(append([]string(nil), DefaultBlockedCommands...), config.BlockedCommands...)
	patterns := append(append([]string(nil), DefaultBlockedPatterns...), config.BlockedPatterns...)
	p, err := newPolicy(blocked, patterns, config.MaxScriptBytes)
	if err != nil {
		return nil, err
	}

	return &Executor{
		config: config,
		policy: p,
		logger: logger.With().Str("component", "shell").Logger(),
	}, nil
}

// Execute implements agent.Executor.
func (e *Executor) Execute(ctx context.Context, task agent.Task) (string, error) {
	if err := e.policy.check(task.Instructions); err != nil {
		e.logger.Warn().Err(err).Str("task_id", task.ID).Msg("script rejected")
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.config.Shell, "-c", task.Instructions)
	cmd.Dir = e.config.WorkingDir
	cmd.Env = e.environment(task)
	cmd.Stdin = strings.NewReader(task.Input)

	stdout := &cappedBuffer{limit: e.config.MaxOutputBytes}
	stderr := &cappedBuffer{limit: e.config.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Kill the whole process group, not only the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = DefaultWaitDelay

	e.logger.Debug().Str("task_id", task.ID).Str("shell", e.config.Shell).Msg("running script")

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", context.Cause(ctx)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return "", fmt.Errorf("exit status %d", exitErr.ExitCode())
			}
			return "", fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), msg)
		}
		return "", fmt.Errorf("run shell: %w", err)
	}

	out := strings.TrimRight(stdout.String(), "\n")
	if stdout.truncated {
		out += truncatedMarker
	}
	return out, nil
}

func (e *Executor) environment(task agent.Task) []string {
	env := os.Environ()
	for k, v := range e.config.Env {
		env = append(env, k+"="+v)
	}
	return append(env,
		"DELEGATE_TASK_ID="+task.ID,
		fmt.Sprintf("DELEGATE_TASK_TIMEOUT_MS=%d", task.Timeout.Milliseconds()),
	)
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	buf       []byte
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return string(b.buf)
}
