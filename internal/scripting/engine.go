package scripting

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/kitty"
)

// Engine wraps a single gopher-lua VM. LState is not goroutine safe, so every
// call holds mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	// Load core scripts first, then optional overrides
	for _, sub := range []string{"core", "traits"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
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

// Traits are the display attributes derived from a genome.
type Traits struct {
	Color          string `json:"color"`
	Pattern        string `json:"pattern"`
	Eyes           string `json:"eyes"`
	GenerationHint int    `json:"generation_hint"`
}

var (
	colors   = []string{"cinnamon", "ginger", "cobalt", "ash", "cream", "onyx", "sage", "rose"}
	patterns = []string{"solid", "tabby", "tiger", "spotted", "calico", "tuxedo"}
	eyes     = []string{"round", "sleepy", "wide", "wink", "narrow"}
)

// BuiltinTraits is the mapping used when no script provides describe_genome.
func BuiltinTraits(g kitty.Genome) Traits {
	return Traits{
		Color:          colors[int(g[0])%len(colors)],
		Pattern:        patterns[int(g[1])%len(patterns)],
		Eyes:           eyes[int(g[2])%len(eyes)],
		GenerationHint: bits.OnesCount8(g[15]),
	}
}

// DescribeGenome calls the Lua describe_genome function. A nil engine, a
// missing function or a script error falls back to BuiltinTraits.
func (e *Engine) DescribeGenome(g kitty.Genome) Traits {
	if e == nil {
		return BuiltinTraits(g)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("describe_genome")
	if fn == lua.LNil {
		return BuiltinTraits(g)
	}

	t := e.vm.NewTable()
	for _, b := range g {
		t.Append(lua.LNumber(b))
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua describe_genome error", zap.Error(err))
		return BuiltinTraits(g)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua describe_genome returned non-table")
		return BuiltinTraits(g)
	}

	return Traits{
		Color:          lStr(rt, "color"),
		Pattern:        lStr(rt, "pattern"),
		Eyes:           lStr(rt, "eyes"),
		GenerationHint: lInt(rt, "generation_hint"),
	}
}

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
