package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment overrides, applied after the file.
const (
	EnvMaxConcurrent  = "DELEGATE_MAX_CONCURRENT"
	EnvDefaultTimeout = "DELEGATE_DEFAULT_TIMEOUT"
	EnvExecutor       = "DELEGATE_EXECUTOR"
	EnvLuaScript      = "DELEGATE_LUA_SCRIPT"
	EnvServerAddr     = "DELEGATE_SERVER_ADDR"
)

// Load reads the configuration at path, applies environment overrides
// and validates the result. An empty path skips the file layer.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses TOML data into cfg. Keys absent from data keep the
// values already in cfg. Unknown keys are an error.
func Decode(path string, data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(cfg); err != nil {
		return toParseError(path, err)
	}
	return nil
}

func toParseError(path string, err error) error {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		line, column := decodeErr.Position()
		return &ParseError{
			Path:    path,
			Line:    line,
			Column:  column,
			Message: decodeErr.Error(),
			Err:     err,
		}
	}

	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		keys := make([]string, 0, len(strictErr.Errors))
		line, column := 0, 0
		for i := range strictErr.Errors {
			e := &strictErr.Errors[i]
			keys = append(keys, strings.Join(e.Key(), "."))
			if line == 0 {
				line, column = e.Position()
			}
		}
		return &ParseError{
			Path:    path,
			Line:    line,
			Column:  column,
			Message: "unknown keys: " + strings.Join(keys, ", "),
			Err:     err,
		}
	}

	return &ParseError{Path: path, Message: err.Error(), Err: err}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvMaxConcurrent); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fieldError(EnvMaxConcurrent, fmt.Sprintf("invalid integer %q", v))
		}
		cfg.Orchestrator.MaxConcurrent = n
	}
	if v, ok := lookup(EnvDefaultTimeout); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fieldError(EnvDefaultTimeout, fmt.Sprintf("invalid duration %q", v))
		}
		cfg.Orchestrator.DefaultTimeout = Duration(d)
	}
	if v, ok := lookup(EnvExecutor); ok && v != "" {
		cfg.Executor.Kind = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvLuaScript); ok && v != "" {
		cfg.Executor.Lua.Script = v
	}
	if v, ok := lookup(EnvServerAddr); ok && v != "" {
		cfg.Server.Addr = v
	}
	return nil
}
