package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "delegate.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Orchestrator.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Orchestrator.DefaultTimeout.Std() != 5*time.Minute {
		t.Errorf("DefaultTimeout = %v, want 5m", cfg.Orchestrator.DefaultTimeout.Std())
	}
	if cfg.Executor.Kind != ExecutorEcho {
		t.Errorf("Executor.Kind = %q, want %q", cfg.Executor.Kind, ExecutorEcho)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoad_NoPath(t *testing.T) {
	cfg, err := load("", env(nil))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7420" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[orchestrator]
max_concurrent = 8
default_timeout = "90s"

[log]
level = "debug"
format = "json"

[executor]
kind = "shell"

[executor.shell]
blocked_commands = ["shutdown"]

[server]
cors_origins = ["http://localhost:3000"]
`)

	cfg, err := load(path, env(nil))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Orchestrator.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d, want 8", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Orchestrator.DefaultTimeout.Std() != 90*time.Second {
		t.Errorf("DefaultTimeout = %v, want 90s", cfg.Orchestrator.DefaultTimeout.Std())
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if cfg.Executor.Kind != ExecutorShell {
		t.Errorf("Executor.Kind = %q, want shell", cfg.Executor.Kind)
	}
	// Unset keys keep their defaults.
	if cfg.Executor.Shell.Shell != "/bin/sh" {
		t.Errorf("Shell.Shell = %q, want /bin/sh", cfg.Executor.Shell.Shell)
	}
	if len(cfg.Executor.Shell.BlockedCommands) != 1 {
		t.Errorf("BlockedCommands = %v, want 1 entry", cfg.Executor.Shell.BlockedCommands)
	}
	if len(cfg.Server.CorsOrigins) != 1 || cfg.Server.CorsOrigins[0] != "http://localhost:3000" {
		t.Errorf("CorsOrigins = %v", cfg.Server.CorsOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "[orchestrator]\nmax_concurrent = 2\n")

	cfg, err := load(path, env(map[string]string{
		EnvMaxConcurrent:  "6",
		EnvDefaultTimeout: "30s",
		EnvExecutor:       "LUA",
		EnvLuaScript:      "agent.lua",
		EnvServerAddr:     ":9000",
	}))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Orchestrator.MaxConcurrent != 6 {
		t.Errorf("MaxConcurrent = %d, want 6", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Orchestrator.DefaultTimeout.Std() != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.Orchestrator.DefaultTimeout.Std())
	}
	if cfg.Executor.Kind != ExecutorLua {
		t.Errorf("Executor.Kind = %q, want lua", cfg.Executor.Kind)
	}
	if cfg.Executor.Lua.Script != "agent.lua" {
		t.Errorf("Lua.Script = %q, want agent.lua", cfg.Executor.Lua.Script)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"max concurrent", map[string]string{EnvMaxConcurrent: "many"}},
		{"timeout", map[string]string{EnvDefaultTimeout: "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load("", env(tt.vars))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "[orchestrator]\nmax_concurent = 2\n")

	_, err := load(path, env(nil))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("load() error = %v, want *ParseError", err)
	}
	if parseErr.Path != path {
		t.Errorf("ParseError.Path = %q, want %q", parseErr.Path, path)
	}
	if parseErr.Line != 2 {
		t.Errorf("ParseError.Line = %d, want 2", parseErr.Line)
	}
}

func TestLoad_Syntax(t *testing.T) {
	path := writeConfig(t, "[orchestrator\nmax_concurrent = 2\n")

	_, err := load(path, env(nil))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("load() error = %v, want *ParseError", err)
	}
	if parseErr.Line == 0 {
		t.Error("ParseError.Line = 0, want a position")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "[orchestrator]\ndefault_timeout = \"forever\"\n")

	if _, err := load(path, env(nil)); err == nil {
		t.Error("load() error = nil, want duration error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.toml"), env(nil))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("load() error = %v, want os.ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero concurrency", func(c *Config) { c.Orchestrator.MaxConcurrent = 0 }, "orchestrator.max_concurrent"},
		{"zero timeout", func(c *Config) { c.Orchestrator.DefaultTimeout = 0 }, "orchestrator.default_timeout"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"executor kind", func(c *Config) { c.Executor.Kind = "telepathy" }, "executor.kind"},
		{"lua script", func(c *Config) { c.Executor.Kind = ExecutorLua }, "executor.lua.script"},
		{"anthropic model", func(c *Config) {
			c.Executor.Kind = ExecutorAnthropic
			c.Executor.Anthropic.Model = ""
		}, "executor.anthropic.model"},
		{"openai tokens", func(c *Config) {
			c.Executor.Kind = ExecutorOpenAI
			c.Executor.OpenAI.MaxTokens = 0
		}, "executor.openai.max_tokens"},
		{"gemini key", func(c *Config) {
			c.Executor.Kind = ExecutorGemini
			c.Executor.Gemini.APIKeyEnv = " "
		}, "executor.gemini.api_key_env"},
		{"server addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("Validate() = %v, want *FieldError", err)
			}
			if fieldErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", fieldErr.Field, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Orchestrator.MaxConcurrent = 0
	cfg.Server.Addr = ""

	err := cfg.Validate()
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("Validate() = %T, want joined error", err)
	}
	if n := len(joined.Unwrap()); n != 2 {
		t.Errorf("len(errors) = %d, want 2", n)
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 1m30s ")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Std() = %v, want 1m30s", d.Std())
	}
	text, _ := d.MarshalText()
	if string(text) != "1m30s" {
		t.Errorf("MarshalText() = %q, want 1m30s", text)
	}
}
