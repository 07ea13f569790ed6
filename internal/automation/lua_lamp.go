//go:build !no_automation

package automation

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"lampd/internal/adapter"
	"lampd/internal/driver"
	"lampd/internal/node"
	"lampd/internal/zcl/clusters"
)

const maxHandlersPerScript = 100

// registerLampModule registers the `lamp` global table in a Lua state.
// Commands run against the node dispatcher as source "lua", so scripts
// and physical controls follow the same path.
func registerLampModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on_event", L.NewFunction(func(L *lua.LState) int {
		return lampOnEvent(L, vm)
	}))

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		e.invoke(clusters.IDOnOff, clusters.CmdOn, nil)
		return 0
	}))

	mod.RawSetString("off", L.NewFunction(func(L *lua.LState) int {
		e.invoke(clusters.IDOnOff, clusters.CmdOff, nil)
		return 0
	}))

	mod.RawSetString("toggle", L.NewFunction(func(L *lua.LState) int {
		e.invoke(clusters.IDOnOff, clusters.CmdToggle, nil)
		return 0
	}))

	mod.RawSetString("brightness", L.NewFunction(func(L *lua.LState) int {
		return lampBrightness(L, e)
	}))

	mod.RawSetString("color", L.NewFunction(func(L *lua.LState) int {
		return lampColor(L, e)
	}))

	mod.RawSetString("color_temp", L.NewFunction(func(L *lua.LState) int {
		return lampColorTemp(L, e)
	}))

	mod.RawSetString("identify", L.NewFunction(func(L *lua.LState) int {
		return lampIdentify(L, e)
	}))

	mod.RawSetString("state", L.NewFunction(func(L *lua.LState) int {
		L.Push(goToLua(L, e.adapter.Properties()))
		return 1
	}))

	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return lampAfter(L, vm, e)
	}))

	mod.RawSetString("emit", L.NewFunction(func(L *lua.LState) int {
		return lampEmit(L, vm, e)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		e.logger.Info("script log", "msg", L.CheckString(1))
		return 0
	}))

	L.SetGlobal("lamp", mod)
}

// lamp.on_event(type, filter, callback)
//
// filter is a table of event data fields that must match, e.g.
// {source="button"} or {name="OnOff"}.
func lampOnEvent(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)
	filterTable := L.CheckTable(2)
	fn := L.CheckFunction(3)

	h := luaEventHandler{eventType: eventType, fn: fn}
	filterTable.ForEach(func(k, v lua.LValue) {
		if h.fields == nil {
			h.fields = make(map[string]string)
		}
		h.fields[k.String()] = v.String()
	})

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()

	return 0
}

// lamp.brightness(level) takes 0..254; 0 turns the lamp off.
func lampBrightness(L *lua.LState, e *Engine) int {
	level := L.CheckInt(1)
	if level < 0 {
		level = 0
	}
	if level > int(driver.LevelMax) {
		level = int(driver.LevelMax)
	}
	e.invoke(clusters.IDLevelControl, clusters.CmdMoveToLevelWithOnOff, map[string]interface{}{
		"level": level,
	})
	return 0
}

// lamp.color(hue, saturation) takes hue in degrees 0..359 and
// saturation in percent 0..100.
func lampColor(L *lua.LState, e *Engine) int {
	hue := clampInt(L.CheckInt(1), 0, int(driver.HueMax))
	sat := clampInt(L.CheckInt(2), 0, int(driver.SaturationMax))

	e.invoke(clusters.IDColorControl, clusters.CmdMoveToHueAndSaturation, map[string]interface{}{
		"hue":        int(adapter.RemapRange(uint32(hue), uint32(driver.HueMax), 254)),
		"saturation": int(adapter.RemapRange(uint32(sat), uint32(driver.SaturationMax), 254)),
	})
	return 0
}

// lamp.color_temp(value) treats values >= 1000 as kelvin, smaller
// values as mireds.
func lampColorTemp(L *lua.LState, e *Engine) int {
	v := L.CheckInt(1)
	if v <= 0 {
		L.ArgError(1, "color temperature must be positive")
		return 0
	}

	mireds := uint16(v)
	if v >= 1000 {
		mireds = adapter.KelvinToMireds(uint32(v))
	}
	e.invoke(clusters.IDColorControl, clusters.CmdMoveToColorTemperature, map[string]interface{}{
		"mireds": mireds,
	})
	return 0
}

// lamp.identify(seconds)
func lampIdentify(L *lua.LState, e *Engine) int {
	secs := L.CheckInt(1)
	if secs < 0 {
		secs = 0
	}
	e.invoke(clusters.IDIdentify, clusters.CmdIdentify, map[string]interface{}{
		"time": secs,
	})
	return 0
}

// lamp.emit(name, data) publishes a script_event other scripts can
// subscribe to with on_event("script_event", {name=...}, fn). data is
// an optional table of extra fields merged into the event.
func lampEmit(L *lua.LState, vm *scriptVM, e *Engine) int {
	name := L.CheckString(1)

	data := map[string]interface{}{
		"name":   name,
		"script": vm.id,
	}
	if L.GetTop() >= 2 {
		if extra, ok := luaToGo(L.CheckTable(2)).(map[string]interface{}); ok {
			for k, v := range extra {
				if k == "name" || k == "script" {
					continue
				}
				data[k] = v
			}
		}
	}

	e.node.Events().Emit(node.Event{Type: node.EventScript, Data: data})
	return 0
}

// lamp.after(seconds, callback) runs callback on the VM after a delay.
func lampAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}

func (e *Engine) invoke(cluster uint16, command uint8, payload map[string]interface{}) {
	if err := e.node.Invoke(1, cluster, command, payload, "lua"); err != nil {
		e.logger.Warn("script command failed", "cluster", cluster, "command", command, "err", err)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
