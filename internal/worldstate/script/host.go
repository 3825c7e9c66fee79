package script

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	lua "github.com/Shopify/go-lua"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/riftworld/worldcore/internal/worldstate/form"
	"github.com/riftworld/worldcore/internal/worldstate/timer"
	"github.com/riftworld/worldcore/internal/worldstate/wserr"
)

// FormResolver is the slice of WorldState script natives need to turn a
// FormId into a live handle.
type FormResolver interface {
	LookupFormByID(id form.Id) (*form.Handle, bool)
}

// TimerScheduler is the slice of WorldState's C2 TimerQueue the VM's
// Utility.Wait / register_for_single_update go through.
type TimerScheduler interface {
	SetTimer(d time.Duration) *timer.Promise[timer.Void]
}

// CompatibilityPolicy is invoked before every Papyrus event dispatch,
// mirroring the source's pluggable compatibility layer (§4.8).
type CompatibilityPolicy interface {
	BeforeSendPapyrusEvent(formID form.Id, eventName string, args []any, stackID uuid.UUID)
}

// noopPolicy is used when no CompatibilityPolicy is supplied.
type noopPolicy struct{}

func (noopPolicy) BeforeSendPapyrusEvent(form.Id, string, []any, uuid.UUID) {}

var foldCase = cases.Fold()

// Host implements C8: wraps a lazily-constructed go-lua VM, script
// storage with hot reload, missing-class resolution, exception routing,
// event dispatch, and the native-class registry.
type Host struct {
	storage   Storage
	hotReload bool
	forms     FormResolver
	timers    TimerScheduler
	policy    CompatibilityPolicy
	log       *slog.Logger

	state   *lua.State // nil until first GetVM
	scripts map[string]*lazyScript
}

// NewHost returns a Host with no VM yet constructed — GetVM lazily builds
// one on first use, matching spec §4.9's get_papyrus_vm.
func NewHost(storage Storage, forms FormResolver, timers TimerScheduler, hotReload bool, log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{
		storage:   storage,
		hotReload: hotReload,
		forms:     forms,
		timers:    timers,
		policy:    noopPolicy{},
		log:       log,
		scripts:   make(map[string]*lazyScript),
	}
}

// SetCompatibilityPolicy overrides the default no-op BeforeSendPapyrusEvent hook.
func (h *Host) SetCompatibilityPolicy(p CompatibilityPolicy) {
	if p == nil {
		p = noopPolicy{}
	}
	h.policy = p
}

// GetVM returns the lazily-constructed go-lua state, installing the
// native-class registry exactly once (§4.8).
func (h *Host) GetVM() (*lua.State, error) {
	if h.storage == nil {
		return nil, wserr.New(wserr.CodeScriptStorageMissing, "script storage not attached")
	}
	if h.state == nil {
		state := lua.NewState()
		lua.OpenLibraries(state)
		installNatives(state, h)
		h.state = state
		for _, name := range h.storage.ListScripts(false) {
			h.scripts[name] = newLazyScript(name, h.storage, h.hotReload)
		}
	}
	return h.state, nil
}

// ResolveClass is the missing-class handler (§4.8): when the VM needs a
// class not in the eagerly-listed set, the host falls back to a
// case-insensitive lookup against list_scripts(include_hidden=true).
func (h *Host) ResolveClass(name string) (*lazyScript, bool) {
	if existing, ok := h.scripts[name]; ok {
		return existing, true
	}
	folded := foldCase.String(name)
	for _, candidate := range h.storage.ListScripts(true) {
		if foldCase.String(candidate) == folded {
			lazy := newLazyScript(candidate, h.storage, h.hotReload)
			h.scripts[candidate] = lazy
			return lazy, true
		}
	}
	return nil, false
}

// VMException is the {source_pex, what} pair the exception handler routes
// to the log (§4.8, §7 CodeVmException).
type VMException struct {
	SourcePex string
	What      string
}

// HandleException logs a VM exception. Messages mentioning "Method not
// found" degrade to warning severity; everything else logs as an error.
// Exceptions never propagate out of the VM boundary (§7).
func (h *Host) HandleException(e VMException) {
	if strings.Contains(e.What, "Method not found") {
		h.log.Warn("papyrus vm exception", "source", e.SourcePex, "what", e.What)
		return
	}
	h.log.Error("papyrus vm exception", "source", e.SourcePex, "what", e.What)
}

// SendPapyrusEvent dispatches name/args to formID with a fresh per-event
// stack id, running the compatibility hook first, then forwarding into
// the VM (§4.8): resolve formID's bound script class, compile it if
// needed, run its top-level body exactly once, then call the named event
// handler global, if the script defines one, with formID as the implicit
// self followed by args. VM construction failures, an unresolved script,
// and exceptions inside the handler are logged and swallowed, matching
// the per-tick propagation policy (§7): a bad script event must never
// freeze the world.
func (h *Host) SendPapyrusEvent(formID form.Id, name string, args []any) {
	stackID := uuid.New()
	h.policy.BeforeSendPapyrusEvent(formID, name, args, stackID)

	state, err := h.GetVM()
	if err != nil {
		h.log.Error("send_papyrus_event: vm unavailable", "form_id", formID, "event", name, "error", err)
		return
	}

	className, ok := h.scriptClassFor(formID)
	if !ok {
		// No script bound to this form: a silent no-op, matching how the
		// source tolerates events sent to forms with no attached script.
		return
	}

	lazy, ok := h.ResolveClass(className)
	if !ok {
		h.HandleException(VMException{SourcePex: className, What: "script class not found in storage"})
		return
	}

	parsed, ok := lazy.Load(state)
	if !ok {
		h.HandleException(VMException{SourcePex: className, What: "get_script_pex returned empty"})
		return
	}

	if err := dispatchEvent(state, parsed, className, name, formID, args); err != nil {
		h.HandleException(VMException{SourcePex: className, What: err.Error()})
	}
}

// scriptClassFor resolves the script class bound to formID, if any.
func (h *Host) scriptClassFor(formID form.Id) (string, bool) {
	handle, ok := h.forms.LookupFormByID(formID)
	if !ok {
		return "", false
	}
	ref := handle.AsObjectReference()
	if ref == nil || ref.ScriptName == "" {
		return "", false
	}
	return ref.ScriptName, true
}

// dispatchEvent runs parsed's top-level body on its first use (installing
// whatever globals/functions the script defines), then invokes the event
// handler global named name, if present, passing formID as the implicit
// self followed by args in order. A script with no handler for this event
// is not an error — most scripts only implement a handful of events.
func dispatchEvent(state *lua.State, parsed *parsedScript, className, name string, formID form.Id, args []any) error {
	if !parsed.installed {
		state.RawGet(lua.RegistryIndex, parsed.ref)
		if err := state.ProtectedCall(0, 0, 0); err != nil {
			msg, _ := state.ToString(-1)
			state.Pop(1)
			return fmt.Errorf("run %s: %s", className, msg)
		}
		parsed.installed = true
	}

	state.Global(name)
	if state.TypeOf(-1) != lua.TypeFunction {
		state.Pop(1)
		return nil
	}

	pushForm(state, formID)
	n := 1
	for _, a := range args {
		pushLuaValue(state, a)
		n++
	}
	if err := state.ProtectedCall(n, 0, 0); err != nil {
		msg, _ := state.ToString(-1)
		state.Pop(1)
		return fmt.Errorf("%s.%s: %s", className, name, msg)
	}
	return nil
}

// RegisterForSingleUpdate schedules formID to receive an "OnUpdate" event
// after seconds elapse, the mechanism both register_for_single_update and
// the script-visible Utility.Wait build on (§4.8).
func (h *Host) RegisterForSingleUpdate(formID form.Id, seconds float64) *timer.Promise[timer.Void] {
	d := time.Duration(seconds * float64(time.Second))
	p := h.timers.SetTimer(d)
	p.Then(func(timer.Void) {
		if _, ok := h.forms.LookupFormByID(formID); !ok {
			return
		}
		h.SendPapyrusEvent(formID, "OnUpdate", nil)
	})
	return p
}

// Wait is the script-visible Utility.Wait(seconds) -> Promise<Void>: the
// same timer mechanism as RegisterForSingleUpdate, but with identity
// resolution (no form to notify, just the promise itself).
func (h *Host) Wait(seconds float64) *timer.Promise[timer.Void] {
	d := time.Duration(seconds * float64(time.Second))
	return h.timers.SetTimer(d)
}
