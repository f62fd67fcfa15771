package lua

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/delegate/internal/agent"
)

func testTask() agent.Task {
	return agent.Task{
		ID:           "task-1",
		Instructions: "summarize",
		Input:        "hello",
		Timeout:      2 * time.Second,
	}
}

func mustSource(t *testing.T, source string) *Executor {
	t.Helper()
	e, err := NewFromSource("test.lua", source)
	if err != nil {
		t.Fatalf("NewFromSource() error = %v", err)
	}
	return e
}

func TestExecute_Result(t *testing.T) {
	e := mustSource(t, `
function run(task)
  return task.instructions .. ":" .. task.input .. ":" .. task.id .. ":" .. task.timeout_ms
end`)

	got, err := e.Execute(context.Background(), testTask())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if want := "summarize:hello:task-1:2000"; got != want {
		t.Errorf("Execute() = %q, want %q", got, want)
	}
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
		wantMsg string
	}{
		{"no run", `x = 1`, ErrNoRunFunction, ""},
		{"nil and message", `function run(t) return nil, "bad input" end`, ErrScriptFailed, "bad input"},
		{"bare nil", `function run(t) return nil end`, ErrScriptFailed, ""},
		{"number", `function run(t) return 42 end`, ErrBadResult, ""},
		{"raised", `function run(t) error("exploded") end`, nil, "exploded"},
		{"top level error", `error("at load")`, nil, "at load"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustSource(t, tt.source)
			_, err := e.Execute(context.Background(), testTask())
			if err == nil {
				t.Fatal("Execute() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Execute() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestExecute_Sandbox(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"os", `function run(t) return os.getenv("HOME") end`},
		{"io", `function run(t) return io.read() end`},
		{"require", `function run(t) return require("os") end`},
		{"dofile", `function run(t) return dofile("/etc/passwd") end`},
		{"loadstring", `function run(t) return loadstring("return 1")() end`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustSource(t, tt.source)
			if _, err := e.Execute(context.Background(), testTask()); err == nil {
				t.Error("Execute() error = nil, want sandbox violation")
			}
		})
	}
}

func TestExecute_Helpers(t *testing.T) {
	e := mustSource(t, `
function run(t)
  delegate.log("starting", t.id)
  print("also fine")
  delegate.sleep(1)
  return string.upper(t.input)
end`)

	got, err := e.Execute(context.Background(), testTask())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "HELLO" {
		t.Errorf("Execute() = %q, want HELLO", got)
	}
}

func TestExecute_FreshStatePerRun(t *testing.T) {
	e := mustSource(t, `
function run(t)
  counter = (counter or 0) + 1
  return tostring(counter)
end`)

	for i := 0; i < 3; i++ {
		got, err := e.Execute(context.Background(), testTask())
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if got != "1" {
			t.Errorf("Execute() = %q, want 1", got)
		}
	}
}

func TestExecute_CancelInterruptsLoop(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"busy loop", `function run(t) while true do end end`},
		{"sleep", `function run(t) delegate.sleep(60000) return "late" end`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustSource(t, tt.source)
			ctx, cancel := context.WithCancelCause(context.Background())
			time.AfterFunc(20*time.Millisecond, func() { cancel(agent.ErrCancelled) })

			done := make(chan error, 1)
			go func() {
				_, err := e.Execute(ctx, testTask())
				done <- err
			}()

			select {
			case err := <-done:
				if !errors.Is(err, agent.ErrCancelled) {
					t.Errorf("Execute() error = %v, want cancel cause", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Execute() did not stop after cancellation")
			}
		})
	}
}

func TestExecute_Concurrent(t *testing.T) {
	e := mustSource(t, `function run(t) return t.id end`)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := testTask()
			task.ID = string(rune('a' + i))
			got, err := e.Execute(context.Background(), task)
			if err != nil || got != task.ID {
				t.Errorf("Execute() = %q, %v, want %q", got, err, task.ID)
			}
		}()
	}
	wg.Wait()
}

func TestNew_CompileError(t *testing.T) {
	if _, err := NewFromSource("bad.lua", "function run("); err == nil {
		t.Error("NewFromSource() error = nil, want parse error")
	}

	path := filepath.Join(t.TempDir(), "missing.lua")
	if _, err := New(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("New(missing) error = %v, want os.ErrNotExist", err)
	}
}

func writeScript(t *testing.T, path, result string) {
	t.Helper()
	src := `function run(t) return "` + result + `" end`
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lua")
	writeScript(t, path, "v1")

	e, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if e.Path() != path {
		t.Errorf("Path() = %q, want %q", e.Path(), path)
	}

	if err := os.WriteFile(path, []byte("function run("), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := e.Reload(); err == nil {
		t.Error("Reload() error = nil, want parse error")
	}

	got, err := e.Execute(context.Background(), testTask())
	if err != nil || got != "v1" {
		t.Errorf("Execute() = %q, %v, want v1 from previous script", got, err)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lua")
	writeScript(t, path, "v1")

	e, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan error, 16)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- e.Watch(ctx, func(err error) { reloaded <- err })
	}()

	// The watcher may not be registered yet; keep writing until a reload lands.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case err := <-reloaded:
			if err != nil {
				t.Fatalf("reload error = %v", err)
			}
			break wait
		case <-tick.C:
			writeScript(t, path, "v2")
		case <-deadline:
			t.Fatal("script was not reloaded")
		}
	}

	got, err := e.Execute(context.Background(), testTask())
	if err != nil || got != "v2" {
		t.Errorf("Execute() = %q, %v, want v2", got, err)
	}

	cancel()
	if err := <-watchErr; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestWatch_SourceExecutor(t *testing.T) {
	e := mustSource(t, `function run(t) return "" end`)
	if err := e.Watch(context.Background(), nil); !errors.Is(err, ErrNotReloadable) {
		t.Errorf("Watch() error = %v, want ErrNotReloadable", err)
	}
}
