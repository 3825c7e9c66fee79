package script

import (
	"bytes"
	"fmt"

	lua "github.com/Shopify/go-lua"
)

// parsedScript is a chunk compiled into the VM that produced it — go-lua
// function values are only valid for their owning state, so the compiled
// function is pinned in that state's registry rather than held as a bare
// Go value. installed tracks whether the chunk's top-level body (global
// and function definitions) has run in that VM yet; re-running it on every
// dispatch would redefine those globals for no reason.
type parsedScript struct {
	bytes     []byte
	ref       int
	installed bool
}

// lazyScript compiles a named script's bytes on first invocation and,
// under hot reload, recompiles when the underlying bytes change — retaining
// the previous parse in a holder so any value that still references the
// old version (an interned string, a held closure) keeps working (§4.8).
type lazyScript struct {
	name    string
	storage Storage

	hotReload bool
	current   *parsedScript
	previous  *parsedScript // retained across a hot reload, never read again but kept alive
}

func newLazyScript(name string, storage Storage, hotReload bool) *lazyScript {
	return &lazyScript{name: name, storage: storage, hotReload: hotReload}
}

// Load returns the current parsed script, compiling it into state or
// hot-reloading it as needed. ok is false if the backing storage has
// nothing for this name (get_script_pex returns empty on miss) or the
// bytes fail to compile as Lua; Host.SendPapyrusEvent routes that failure
// to HandleException.
func (l *lazyScript) Load(state *lua.State) (*parsedScript, bool) {
	raw := l.storage.GetScriptPex(l.name)
	if len(raw) == 0 {
		return nil, false
	}

	if l.current == nil {
		parsed, err := compileScript(state, l.name, raw)
		if err != nil {
			return nil, false
		}
		l.current = parsed
		return l.current, true
	}

	if l.hotReload && !bytes.Equal(l.current.bytes, raw) {
		if parsed, err := compileScript(state, l.name, raw); err == nil {
			l.previous = l.current
			l.current = parsed
		}
		// A recompile failure on hot reload keeps serving the last good
		// parse, matching the "never freeze the world" propagation policy.
	}
	return l.current, true
}

// compileScript parses raw as a Lua chunk named name and pins the
// resulting function in state's registry for later retrieval by ref.
func compileScript(state *lua.State, name string, raw []byte) (*parsedScript, error) {
	if err := lua.Load(state, bytes.NewReader(raw), name, "bt"); err != nil {
		state.Pop(1)
		return nil, fmt.Errorf("compile script %q: %w", name, err)
	}
	ref := lua.Ref(state, lua.RegistryIndex)
	return &parsedScript{bytes: raw, ref: ref}, nil
}
