package lua

import (
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

// ModuleName is the global table exposing engine helpers to scripts.
const ModuleName = "delegate"

// newState creates an interpreter with only the safe libraries opened.
func newState(logger zerolog.Logger, taskID string) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	log := logger.With().Str("task_id", taskID).Logger()
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		log.Info().Msg(joinArgs(L))
		return 0
	}))

	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			log.Info().Msg(joinArgs(L))
			return 0
		},
		"sleep": luaSleep,
	})
	L.SetGlobal(ModuleName, mod)

	return L
}

// luaSleep pauses for the given milliseconds, raising an error if the
// execution context ends first.
func luaSleep(L *lua.LState) int {
	ms := L.CheckInt64(1)
	if ms <= 0 {
		return 0
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	ctx := L.Context()
	if ctx == nil {
		<-timer.C
		return 0
	}
	select {
	case <-timer.C:
	case <-ctx.Done():
		L.RaiseError("%v", ctx.Err())
	}
	return 0
}

func joinArgs(L *lua.LState) string {
	n := L.GetTop()
	var msg string
	for i := 1; i <= n; i++ {
		if i > 1 {
			msg += "\t"
		}
		msg += L.ToStringMeta(L.Get(i)).String()
	}
	return msg
}
