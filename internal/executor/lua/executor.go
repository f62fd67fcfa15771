package lua

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/delegate/internal/agent"
)

// RunFunction is the global every script must define.
const RunFunction = "run"

// Executor runs tasks through a compiled Lua script.
// It is safe for concurrent use.
type Executor struct {
	name   string
	path   string
	logger zerolog.Logger

	mu    sync.RWMutex
	proto *lua.FunctionProto
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for script output and reloads.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = l.With().Str("component", "lua").Logger()
	}
}

// New compiles the script at path.
func New(path string, opts ...Option) (*Executor, error) {
	e := &Executor{
		name:   path,
		path:   path,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewFromSource compiles source directly. The executor cannot be reloaded.
func NewFromSource(name, source string, opts ...Option) (*Executor, error) {
	e := &Executor{
		name:   name,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	proto, err := compile(name, source)
	if err != nil {
		return nil, err
	}
	e.proto = proto
	return e, nil
}

// Path returns the script path, or "" for source executors.
func (e *Executor) Path() string {
	return e.path
}

// Reload recompiles the script from disk. On error the previously
// compiled script stays in use.
func (e *Executor) Reload() error {
	if e.path == "" {
		return nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("read lua script: %w", err)
	}
	proto, err := compile(e.name, string(data))
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.proto = proto
	e.mu.Unlock()

	e.logger.Debug().Str("path", e.path).Msg("lua script loaded")
	return nil
}

func compile(name, source string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parse lua script: %w", err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile lua script: %w", err)
	}
	return proto, nil
}

// Execute implements agent.Executor.
func (e *Executor) Execute(ctx context.Context, task agent.Task) (result string, err error) {
	e.mu.RLock()
	proto := e.proto
	e.mu.RUnlock()

	L := newState(e.logger, task.ID)
	defer L.Close()
	L.SetContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
		if err != nil && ctx.Err() != nil {
			err = context.Cause(ctx)
		}
	}()

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return "", err
	}

	fn, ok := L.GetGlobal(RunFunction).(*lua.LFunction)
	if !ok {
		return "", ErrNoRunFunction
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    2,
		Protect: true,
	}, taskTable(L, task)); err != nil {
		return "", err
	}

	ret, msg := L.Get(-2), L.Get(-1)
	L.Pop(2)

	switch v := ret.(type) {
	case lua.LString:
		return string(v), nil
	case *lua.LNilType:
		if msg == lua.LNil {
			return "", ErrScriptFailed
		}
		return "", fmt.Errorf("%w: %s", ErrScriptFailed, L.ToStringMeta(msg).String())
	default:
		return "", fmt.Errorf("%w, got %s", ErrBadResult, ret.Type())
	}
}

func taskTable(L *lua.LState, task agent.Task) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(task.ID))
	t.RawSetString("instructions", lua.LString(task.Instructions))
	t.RawSetString("input", lua.LString(task.Input))
	t.RawSetString("timeout_ms", lua.LNumber(task.Timeout.Milliseconds()))
	return t
}
