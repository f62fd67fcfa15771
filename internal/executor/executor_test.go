package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dshills/delegate/internal/agent"
	"github.com/dshills/delegate/internal/config"
	"github.com/dshills/delegate/internal/executor/llm"
	"github.com/dshills/delegate/internal/executor/lua"
	"github.com/dshills/delegate/internal/executor/shell"
)

func TestEcho(t *testing.T) {
	tests := []struct {
		name string
		task agent.Task
		want string
	}{
		{"instructions only", agent.Task{Instructions: "hi"}, "hi"},
		{"with input", agent.Task{Instructions: "hi", Input: "there"}, "hi\n\nthere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Echo{}.Execute(context.Background(), tt.task)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Execute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEcho_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(agent.ErrCancelled)

	if _, err := (Echo{}).Execute(ctx, agent.Task{Instructions: "hi"}); !errors.Is(err, agent.ErrCancelled) {
		t.Errorf("Execute() error = %v, want cancel cause", err)
	}
}

func TestNew_Kinds(t *testing.T) {
	script := filepath.Join(t.TempDir(), "agent.lua")
	if err := os.WriteFile(script, []byte(`function run(t) return t.instructions end`), 0o600); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{"ANTHROPIC_API_KEY": "a", "OPENAI_API_KEY": "o"}
	getenv := func(k string) string { return env[k] }

	tests := []struct {
		kind  string
		check func(agent.Executor) bool
	}{
		{config.ExecutorEcho, func(e agent.Executor) bool { _, ok := e.(Echo); return ok }},
		{"", func(e agent.Executor) bool { _, ok := e.(Echo); return ok }},
		{config.ExecutorLua, func(e agent.Executor) bool { _, ok := e.(*lua.Executor); return ok }},
		{config.ExecutorShell, func(e agent.Executor) bool { _, ok := e.(*shell.Executor); return ok }},
		{config.ExecutorAnthropic, func(e agent.Executor) bool { _, ok := e.(*llm.Anthropic); return ok }},
		{config.ExecutorOpenAI, func(e agent.Executor) bool { _, ok := e.(*llm.OpenAI); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := config.DefaultConfig().Executor
			cfg.Kind = tt.kind
			cfg.Lua.Script = script

			e, err := build(context.Background(), cfg, zerolog.Nop(), getenv)
			if err != nil {
				t.Fatalf("build() error = %v", err)
			}
			if !tt.check(e) {
				t.Errorf("build() = %T", e)
			}
			if err := Close(e); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	getenv := func(string) string { return "" }

	tests := []struct {
		name    string
		mutate  func(*config.ExecutorConfig)
		wantErr error
	}{
		{"unknown", func(c *config.ExecutorConfig) { c.Kind = "oracle" }, ErrUnknownKind},
		{"missing key", func(c *config.ExecutorConfig) { c.Kind = config.ExecutorOpenAI }, llm.ErrMissingAPIKey},
		{"missing script", func(c *config.ExecutorConfig) {
			c.Kind = config.ExecutorLua
			c.Lua.Script = filepath.Join(t.TempDir(), "none.lua")
		}, os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig().Executor
			tt.mutate(&cfg)
			if _, err := build(context.Background(), cfg, zerolog.Nop(), getenv); !errors.Is(err, tt.wantErr) {
				t.Errorf("build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_DrivesOrchestrator(t *testing.T) {
	cfg := config.DefaultConfig().Executor
	cfg.Kind = config.ExecutorShell

	e, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	orch := agent.New(agent.WithExecutor(e))
	res, err := orch.Spawn(context.Background(), agent.SpawnRequest{
		Instructions: "tr a-z A-Z",
		Input:        "loud",
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if res.Result != "LOUD" {
		t.Errorf("Result = %q, want LOUD", res.Result)
	}
}
