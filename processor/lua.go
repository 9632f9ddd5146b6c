// Package processor holds the optional per-record hooks that run between
// parsing and deduplication.
package processor

import (
	"fmt"
	"os"
	"sync"

	"github.com/thisisjab/sluice/entity"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

type LuaFilterConfig struct {
	ScriptPath string `yaml:"script-path"`
}

// LuaFilter runs each parsed record through a user-provided lua script.
// The script MUST define a function named `filter_message` taking
// (priority, hostname, message) and returning 2 values:
// 1. keep as a boolean; false drops the record before deduplication
// 2. message as a string; non-empty values replace the record's message body
// The JSON helper is available via `local json = require("json")`.
type LuaFilter struct {
	cfg    LuaFilterConfig
	script string
	pool   *sync.Pool
}

func NewLuaFilter(cfg LuaFilterConfig) (*LuaFilter, error) {
	src, err := os.ReadFile(cfg.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read filter script: %w", err)
	}
	script := string(src)

	// Vet the script once so broken scripts fail at startup, not per record.
	probe := newFilterState(script)
	defer probe.Close()
	if probe.GetGlobal("filter_message").Type() != lua.LTFunction {
		return nil, fmt.Errorf("filter script %s does not define filter_message", cfg.ScriptPath)
	}

	pool := &sync.Pool{
		New: func() any {
			return newFilterState(script)
		},
	}

	return &LuaFilter{cfg: cfg, script: script, pool: pool}, nil
}

// newFilterState builds a sandboxed lua VM with the script loaded. Script
// errors are swallowed here; NewLuaFilter vets the same source up front.
func newFilterState(script string) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load anything by default
	})

	// Manually open only the safe libraries.
	// We skip 'os' and 'io' to prevent system commands/file access.
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},  // Allows 'require'
		{lua.BaseLibName, lua.OpenBase},     // Allows 'print', 'pairs', etc.
		{lua.TabLibName, lua.OpenTable},     // Allows 'table.insert', etc.
		{lua.StringLibName, lua.OpenString}, // Allows string manipulation
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	// Pre-register the JSON module in this VM so the user can do:
	// local json = require("json")
	luajson.Preload(L)

	_ = L.DoString(script)

	return L
}

// Filter applies the script to one record. keep=false means the record is
// dropped. Script errors are returned so the caller can log and pass the
// record through unchanged.
func (lf *LuaFilter) Filter(msg entity.Message) (entity.Message, bool, error) {
	L := lf.pool.Get().(*lua.LState)
	defer lf.pool.Put(L)

	err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("filter_message"),
		NRet:    2,
		Protect: true,
	}, lua.LNumber(msg.Priority), lua.LString(msg.Hostname), lua.LString(msg.Message))
	if err != nil {
		return msg, true, fmt.Errorf("lua script error: %w", err)
	}

	rewritten := L.ToString(-1)
	keep := lua.LVAsBool(L.Get(-2))

	L.Pop(2)

	if !keep {
		return msg, false, nil
	}
	if rewritten != "" && rewritten != msg.Message {
		msg.Message = rewritten
	}
	return msg, true, nil
}
