package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/l1jgo/worldstore/internal/core/event"
	"github.com/l1jgo/worldstore/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Hook function names looked up in the loaded scripts. Any of them may be
// left undefined.
const (
	hookConnected       = "on_connected"
	hookCharacterLoaded = "on_character_loaded"
	hookCharacterSaved  = "on_character_saved"
	hookGuildSaved      = "on_guild_saved"
	hookGuildRemoved    = "on_guild_removed"
)

// Engine wraps a single gopher-lua VM that reacts to persistence hooks.
// Calls are serialized; hooks may fire from the game loop and from login
// goroutines.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
// A missing directory yields an engine with no hooks.
func NewEngine(hooksDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	vm.SetGlobal("log_info", vm.NewFunction(e.luaLogInfo))

	if err := e.loadDir(hooksDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load hook scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) luaLogInfo(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

// Subscribe wires the engine's hooks to bus events.
func (e *Engine) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, func(event.Connected) {
		e.call(hookConnected)
	})
	event.Subscribe(bus, func(ev event.CharacterLoaded) {
		if ev.Preview {
			return
		}
		e.mu.Lock()
		ch := e.characterTable(ev.Player)
		e.mu.Unlock()
		e.call(hookCharacterLoaded, ch)
	})
	event.Subscribe(bus, func(ev event.CharacterSaved) {
		e.mu.Lock()
		ch := e.characterTable(ev.Player)
		e.mu.Unlock()
		e.call(hookCharacterSaved, ch, lua.LBool(ev.Online))
	})
	event.Subscribe(bus, func(ev event.GuildSaved) {
		e.call(hookGuildSaved, lua.LString(ev.Guild.Name), lua.LNumber(ev.Guild.MemberCount()))
	})
	event.Subscribe(bus, func(ev event.GuildRemoved) {
		e.call(hookGuildRemoved, lua.LString(ev.Name))
	})
}

// characterTable packs the fields scripts may read. Caller holds e.mu.
func (e *Engine) characterTable(p *world.Player) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("name", lua.LString(p.Name))
	t.RawSetString("account", lua.LString(p.Account))
	t.RawSetString("class", lua.LString(p.ClassName))
	t.RawSetString("level", lua.LNumber(p.Level))
	t.RawSetString("gold", lua.LNumber(p.Gold))
	t.RawSetString("coins", lua.LNumber(p.Coins))
	if p.Guild != nil {
		t.RawSetString("guild", lua.LString(p.Guild.Name))
	}
	return t
}

// call invokes a global hook function if it exists. Script errors are
// logged and swallowed.
func (e *Engine) call(name string, args ...lua.LValue) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua hook failed", zap.String("hook", name), zap.Error(err))
	}
}

// Close releases the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
