package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/delegate/internal/agent"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out, "delegate dev") {
		t.Errorf("output = %q", out)
	}
}

func TestRunCmd_Echo(t *testing.T) {
	out, err := execute(t, "run", "--log-level", "disabled", "--executor", "echo", "say", "hello")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "say hello\n" {
		t.Errorf("output = %q, want %q", out, "say hello\n")
	}
}

func TestRunCmd_Config(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "delegate.toml")
	data := "[orchestrator]\nmax_concurrent = 1\n\n[executor]\nkind = \"echo\"\n\n[log]\nlevel = \"disabled\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", "--config", path, "--json", "--input", "data", "task")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{`"success": true`, `"result": "task\n\ndata"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %q, missing %q", out, want)
		}
	}
}

func TestRunCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no instructions", []string{"run"}},
		{"unknown executor", []string{"run", "--executor", "telepathy", "x"}},
		{"bad log level", []string{"run", "--log-level", "loud", "x"}},
		{"missing config", []string{"run", "--config", "/does/not/exist.toml", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("Execute() error = nil")
			}
		})
	}
}

func TestRunOnce(t *testing.T) {
	failing := agent.ExecutorFunc(func(context.Context, agent.Task) (string, error) {
		return "", errors.New("no model")
	})

	tests := []struct {
		name     string
		executor agent.Executor
		asJSON   bool
		wantOut  string
		wantCode int
	}{
		{"success", agent.ExecutorFunc(func(context.Context, agent.Task) (string, error) { return "ok", nil }), false, "ok\n", 0},
		{"failure", failing, false, "", 1},
		{"failure json", failing, true, `"code": "ExecutionFailure"`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			orch := agent.New(agent.WithExecutor(tt.executor))
			err := runOnce(context.Background(), orch, agent.SpawnRequest{Instructions: "x"}, &out, tt.asJSON)

			code := 0
			var exit *exitError
			if errors.As(err, &exit) {
				code = exit.code
			}
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (err %v)", code, tt.wantCode, err)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}
