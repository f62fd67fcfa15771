package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Executor kinds.
const (
	ExecutorEcho      = "echo"
	ExecutorLua       = "lua"
	ExecutorShell     = "shell"
	ExecutorAnthropic = "anthropic"
	ExecutorOpenAI    = "openai"
	ExecutorGemini    = "gemini"
)

// Config is the complete delegate configuration.
type Config struct {
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Log          LogConfig          `toml:"log"`
	Executor     ExecutorConfig     `toml:"executor"`
	Server       ServerConfig       `toml:"server"`
}

// OrchestratorConfig holds the task limits.
type OrchestratorConfig struct {
	// MaxConcurrent is the concurrency ceiling.
	MaxConcurrent int `toml:"max_concurrent"`

	// DefaultTimeout applies to tasks spawned without a timeout.
	DefaultTimeout Duration `toml:"default_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	NoColor bool   `toml:"no_color"`
}

// ExecutorConfig selects and configures the executor.
type ExecutorConfig struct {
	// Kind is one of the Executor* constants.
	Kind string `toml:"kind"`

	Lua       LuaConfig   `toml:"lua"`
	Shell     ShellConfig `toml:"shell"`
	Anthropic LLMConfig   `toml:"anthropic"`
	OpenAI    LLMConfig   `toml:"openai"`
	Gemini    LLMConfig   `toml:"gemini"`
}

// LuaConfig configures the Lua executor.
type LuaConfig struct {
	// Script is the path of the script defining run(task).
	Script string `toml:"script"`

	// Watch reloads the script when it changes on disk.
	Watch bool `toml:"watch"`
}

// ShellConfig configures the shell executor.
type ShellConfig struct {
	Shell           string   `toml:"shell"`
	WorkingDir      string   `toml:"working_dir"`
	BlockedCommands []string `toml:"blocked_commands"`
	MaxOutputBytes  int      `toml:"max_output_bytes"`
}

// LLMConfig configures a model-backed executor.
type LLMConfig struct {
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	BaseURL      string `toml:"base_url"`
	MaxTokens    int    `toml:"max_tokens"`
	SystemPrompt string `toml:"system_prompt"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Orchestrator: OrchestratorConfig{
			MaxConcurrent:  3,
			DefaultTimeout: Duration(5 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Executor: ExecutorConfig{
			Kind: ExecutorEcho,
			Shell: ShellConfig{
				Shell:          "/bin/sh",
				MaxOutputBytes: 64 * 1024,
			},
			Anthropic: LLMConfig{
				Model:     "claude-sonnet-4-5",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				MaxTokens: 4096,
			},
			OpenAI: LLMConfig{
				Model:     "gpt-4o",
				APIKeyEnv: "OPENAI_API_KEY",
				MaxTokens: 4096,
			},
			Gemini: LLMConfig{
				Model:     "gemini-1.5-flash",
				APIKeyEnv: "GEMINI_API_KEY",
				MaxTokens: 4096,
			},
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7420",
		},
	}
}

// Validate checks the configuration and returns all problems found.
func (c Config) Validate() error {
	var errs []error

	if c.Orchestrator.MaxConcurrent < 1 {
		errs = append(errs, fieldError("orchestrator.max_concurrent", "must be at least 1"))
	}
	if c.Orchestrator.DefaultTimeout.Std() <= 0 {
		errs = append(errs, fieldError("orchestrator.default_timeout", "must be positive"))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fieldError("log.format", fmt.Sprintf("unknown format %q", c.Log.Format)))
	}

	switch c.Executor.Kind {
	case ExecutorEcho, ExecutorShell:
	case ExecutorLua:
		if strings.TrimSpace(c.Executor.Lua.Script) == "" {
			errs = append(errs, fieldError("executor.lua.script", "required for the lua executor"))
		}
	case ExecutorAnthropic:
		errs = append(errs, c.Executor.Anthropic.validate("executor.anthropic")...)
	case ExecutorOpenAI:
		errs = append(errs, c.Executor.OpenAI.validate("executor.openai")...)
	case ExecutorGemini:
		errs = append(errs, c.Executor.Gemini.validate("executor.gemini")...)
	default:
		errs = append(errs, fieldError("executor.kind", fmt.Sprintf("unknown executor %q", c.Executor.Kind)))
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, fieldError("server.addr", "required"))
	}

	return errors.Join(errs...)
}

func (c LLMConfig) validate(section string) []error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, fieldError(section+".model", "required"))
	}
	if strings.TrimSpace(c.APIKeyEnv) == "" {
		errs = append(errs, fieldError(section+".api_key_env", "required"))
	}
	if c.MaxTokens < 1 {
		errs = append(errs, fieldError(section+".max_tokens", "must be at least 1"))
	}
	return errs
}

// Duration is a time.Duration that decodes from strings such as "90s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
