package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
		ok    bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{"DEBUG", zerolog.DebugLevel, true},
		{"info", zerolog.InfoLevel, true},
		{"warn", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"trace", zerolog.TraceLevel, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	rt := DefaultConfig(ProfileRuntime)
	if rt.Level != zerolog.InfoLevel || !rt.Timestamp {
		t.Errorf("runtime config = %+v", rt)
	}

	tc := DefaultConfig(ProfileTest)
	if tc.Level != zerolog.DebugLevel || tc.Timestamp {
		t.Errorf("test config = %+v", tc)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "JSON")
	t.Setenv(EnvLogNoColor, "true")

	cfg := FromEnv(ProfileRuntime)
	if cfg.Level != zerolog.ErrorLevel {
		t.Errorf("Level = %v, want error", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("Format = %q, want json", cfg.Format)
	}
	if !cfg.NoColor {
		t.Error("NoColor = false, want true")
	}
}

func TestApplyEnv_IgnoresInvalid(t *testing.T) {
	t.Setenv(EnvLogLevel, "chatty")
	t.Setenv(EnvLogFormat, "xml")
	t.Setenv(EnvLogNoColor, "maybe")

	cfg := FromEnv(ProfileRuntime)
	if cfg != DefaultConfig(ProfileRuntime) {
		t.Errorf("FromEnv() = %+v, want defaults", cfg)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, Format: FormatJSON, Output: &buf})

	l := Component(logger, "agent")
	l.Info().Str("task_id", "t1").Msg("task finished")
	logger.Debug().Msg("filtered")

	out := buf.String()
	for _, want := range []string{`"component":"agent"`, `"task_id":"t1"`, `"message":"task finished"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
	if strings.Contains(out, "filtered") {
		t.Error("debug message written at info level")
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.DebugLevel, Format: FormatConsole, NoColor: true, Output: &buf})

	logger.Debug().Msg("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output %q missing message", buf.String())
	}
}
