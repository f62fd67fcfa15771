// Package logging configures structured logging for delegate.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables that override the configured logger.
const (
	EnvLogLevel   = "DELEGATE_LOG_LEVEL"
	EnvLogFormat  = "DELEGATE_LOG_FORMAT"
	EnvLogNoColor = "DELEGATE_LOG_NOCOLOR"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Profile selects a set of logger defaults.
type Profile int

const (
	// ProfileRuntime logs at info with timestamps.
	ProfileRuntime Profile = iota
	// ProfileTest logs at debug without timestamps.
	ProfileTest
)

// Config configures the logger.
type Config struct {
	// Level is the minimum level written.
	Level zerolog.Level

	// Format is FormatConsole or FormatJSON.
	Format string

	// NoColor disables ANSI colors in console output.
	NoColor bool

	// Timestamp adds a time field to every event.
	Timestamp bool

	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the defaults for a profile.
func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{
			Level:  zerolog.DebugLevel,
			Format: FormatConsole,
			Output: os.Stderr,
		}
	default:
		return Config{
			Level:     zerolog.InfoLevel,
			Format:    FormatConsole,
			Timestamp: true,
			Output:    os.Stderr,
		}
	}
}

// New builds a logger from cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// FromEnv returns the profile defaults with environment overrides applied.
func FromEnv(profile Profile) Config {
	cfg := DefaultConfig(profile)
	ApplyEnv(&cfg)
	return cfg
}

// ApplyEnv applies environment overrides to cfg.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if f := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))); f == FormatJSON || f == FormatConsole {
		cfg.Format = f
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel parses a level name. The second result is false for unknown
// or empty names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
