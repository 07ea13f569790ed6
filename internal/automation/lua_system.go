//go:build !no_automation

package automation

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// SystemConfig holds configuration for the system Lua module.
type SystemConfig struct {
	ExecAllowlist []string      // allowed command paths
	ExecTimeout   time.Duration // timeout for exec commands
}

const execOutputCap = 64 << 10

// registerSystemModule registers the `system` global table.
func registerSystemModule(L *lua.LState, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("datetime", L.NewFunction(systemDatetime))

	mod.RawSetString("time_between", L.NewFunction(systemTimeBetween))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return systemLog(L, e)
	}))

	mod.RawSetString("exec", L.NewFunction(func(L *lua.LState) int {
		return systemExec(L, e)
	}))

	L.SetGlobal("system", mod)
}

// registerTelegramModule registers the `telegram` global table. Sends
// go through the engine's notifier; without one they are dropped with
// a warning.
func registerTelegramModule(L *lua.LState, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("send", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		if e.notifier == nil {
			e.logger.Warn("telegram.send: no notifier configured")
			return 0
		}
		e.notifier.Send(msg)
		return 0
	}))

	L.SetGlobal("telegram", mod)
}

var datetimeComponents = map[string]func(time.Time) lua.LValue{
	"hour":      func(t time.Time) lua.LValue { return lua.LNumber(t.Hour()) },
	"minute":    func(t time.Time) lua.LValue { return lua.LNumber(t.Minute()) },
	"second":    func(t time.Time) lua.LValue { return lua.LNumber(t.Second()) },
	"weekday":   func(t time.Time) lua.LValue { return lua.LNumber(t.Weekday()) },
	"day":       func(t time.Time) lua.LValue { return lua.LNumber(t.Day()) },
	"month":     func(t time.Time) lua.LValue { return lua.LNumber(t.Month()) },
	"year":      func(t time.Time) lua.LValue { return lua.LNumber(t.Year()) },
	"timestamp": func(t time.Time) lua.LValue { return lua.LNumber(t.Unix()) },
	"time_str":  func(t time.Time) lua.LValue { return lua.LString(t.Format("15:04:05")) },
	"date_str":  func(t time.Time) lua.LValue { return lua.LString(t.Format("2006-01-02")) },
}

// system.datetime(component)
func systemDatetime(L *lua.LState) int {
	component := L.CheckString(1)
	get, ok := datetimeComponents[component]
	if !ok {
		L.ArgError(1, "unknown component: "+component)
		return 0
	}
	L.Push(get(time.Now()))
	return 1
}

// system.time_between(from_hour, to_hour) reports whether the current
// hour is in the range; from > to wraps past midnight.
func systemTimeBetween(L *lua.LState) int {
	from := L.CheckInt(1)
	to := L.CheckInt(2)
	hour := time.Now().Hour()

	in := hour >= from && hour < to
	if from > to {
		in = hour >= from || hour < to
	}
	L.Push(lua.LBool(in))
	return 1
}

// system.log(level, msg)
func systemLog(L *lua.LState, e *Engine) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)

	log := e.logger.Info
	switch level {
	case "debug":
		log = e.logger.Debug
	case "warn":
		log = e.logger.Warn
	case "error":
		log = e.logger.Error
	}
	log("script log", "msg", msg)
	return 0
}

// system.exec(cmd) runs an allowlisted absolute-path command and
// returns stdout capped at 64KB.
func systemExec(L *lua.LState, e *Engine) int {
	parts := strings.Fields(L.CheckString(1))
	if len(parts) == 0 {
		L.ArgError(1, "empty command")
		return 0
	}

	if reason := e.execBlocked(parts[0]); reason != "" {
		e.logger.Warn("exec blocked: "+reason, "cmd", parts[0])
		L.Push(lua.LString(""))
		return 1
	}

	timeout := e.systemCfg.ExecTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stdout, err := exec.CommandContext(ctx, parts[0], parts[1:]...).Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			e.logger.Warn("exec timeout", "cmd", parts[0], "timeout", timeout)
		} else {
			e.logger.Warn("exec failed", "cmd", parts[0], "err", err)
		}
		L.Push(lua.LString(""))
		return 1
	}

	if len(stdout) > execOutputCap {
		stdout = stdout[:execOutputCap]
	}
	L.Push(lua.LString(string(stdout)))
	return 1
}

// execBlocked returns a refusal reason, or "" when the binary may run.
func (e *Engine) execBlocked(binary string) string {
	if !filepath.IsAbs(binary) {
		return "not an absolute path"
	}
	for _, allowed := range e.systemCfg.ExecAllowlist {
		if allowed == binary {
			return ""
		}
	}
	return "not in allowlist"
}
