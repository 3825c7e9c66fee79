package script

import (
	lua "github.com/Shopify/go-lua"
	"github.com/tidwall/gjson"

	"github.com/riftworld/worldcore/internal/worldstate/form"
)

const promiseTypeName = "worldcore_promise"
const formTypeName = "worldcore_form"

// installNatives registers the native-class tables (object-reference,
// game, form, message, form-list, debug, actor, skymp, utility) exactly
// once at VM-construction time (§4.8). Each closure captures host
// directly rather than threading it through Lua upvalues.
func installNatives(state *lua.State, host *Host) {
	registerPromiseType(state)
	registerFormType(state)

	registerNativeTable(state, "Utility", map[string]lua.Function{
		"Wait": func(l *lua.State) int {
			seconds := lua.CheckNumber(l, 1)
			pushPromise(l, host.Wait(seconds))
			return 1
		},
	})

	registerNativeTable(state, "Game", map[string]lua.Function{
		"GetFormEx": func(l *lua.State) int {
			id := form.Id(uint32(lua.CheckInteger(l, 1)))
			if _, ok := host.forms.LookupFormByID(id); !ok {
				l.PushNil()
				return 1
			}
			pushForm(l, id)
			return 1
		},
	})

	registerNativeTable(state, "Form", map[string]lua.Function{
		"GetFormId": func(l *lua.State) int {
			id := checkForm(l, 1)
			l.PushInteger(int(id))
			return 1
		},
	})

	registerNativeTable(state, "ObjectReference", map[string]lua.Function{
		"GetPositionX": func(l *lua.State) int { return pushRefField(l, host, 1, func(r *form.ObjectReferenceData) float32 { return r.Pos.X }) },
		"GetPositionY": func(l *lua.State) int { return pushRefField(l, host, 1, func(r *form.ObjectReferenceData) float32 { return r.Pos.Y }) },
		"GetPositionZ": func(l *lua.State) int { return pushRefField(l, host, 1, func(r *form.ObjectReferenceData) float32 { return r.Pos.Z }) },
		"RegisterForSingleUpdate": func(l *lua.State) int {
			id := checkForm(l, 1)
			seconds := lua.CheckNumber(l, 2)
			pushPromise(l, host.RegisterForSingleUpdate(id, seconds))
			return 1
		},
	})

	registerNativeTable(state, "Actor", map[string]lua.Function{
		"IsRaceMenuOpen": func(l *lua.State) int {
			id := checkForm(l, 1)
			h, ok := host.forms.LookupFormByID(id)
			if !ok || h.AsActor() == nil {
				l.PushBoolean(false)
				return 1
			}
			l.PushBoolean(h.AsActor().IsRaceMenuOpen)
			return 1
		},
		// GetLookField/SetLookField patch a single dotted Look field via
		// gjson/sjson (form.LookField/PatchLookField) rather than round-
		// tripping the whole Look struct, mirroring how the source lets a
		// script touch one character-customization value at a time.
		"GetLookField": func(l *lua.State) int {
			id := checkForm(l, 1)
			path := lua.CheckString(l, 2)
			h, ok := host.forms.LookupFormByID(id)
			actor := (*form.ActorData)(nil)
			if ok {
				actor = h.AsActor()
			}
			if actor == nil || actor.Look == nil {
				l.PushNil()
				return 1
			}
			lookJSON, err := form.LookToJSON(*actor.Look)
			if err != nil {
				l.PushNil()
				return 1
			}
			pushGjsonResult(l, form.LookField(lookJSON, path))
			return 1
		},
		"SetLookField": func(l *lua.State) int {
			id := checkForm(l, 1)
			path := lua.CheckString(l, 2)
			value := luaArgValue(l, 3)

			h, ok := host.forms.LookupFormByID(id)
			if !ok || h.AsActor() == nil {
				return 0
			}
			actor := h.AsActor()

			var lookJSON []byte
			if actor.Look != nil {
				var err error
				lookJSON, err = form.LookToJSON(*actor.Look)
				if err != nil {
					lua.Errorf(l, "encode look: %v", err)
				}
			}
			patched, err := form.PatchLookField(lookJSON, path, value)
			if err != nil {
				lua.Errorf(l, "patch look field %q: %v", path, err)
			}
			newLook, err := form.LookFromJSON(patched)
			if err != nil {
				lua.Errorf(l, "decode patched look: %v", err)
			}
			actor.Look = &newLook
			return 0
		},
	})

	registerNativeTable(state, "Debug", map[string]lua.Function{
		"Notification": func(l *lua.State) int {
			msg, _ := l.ToString(1)
			host.log.Info("papyrus debug notification", "message", msg)
			return 0
		},
	})

	registerNativeTable(state, "Message", map[string]lua.Function{})
	registerNativeTable(state, "FormList", map[string]lua.Function{})
	registerNativeTable(state, "Skymp", map[string]lua.Function{})
}

func registerNativeTable(state *lua.State, globalName string, fns map[string]lua.Function) {
	regs := make([]lua.RegistryFunction, 0, len(fns))
	for name, fn := range fns {
		regs = append(regs, lua.RegistryFunction{Name: name, Function: fn})
	}
	state.NewTable()
	lua.SetFunctions(state, regs, 0)
	state.SetGlobal(globalName)
}

func registerFormType(state *lua.State) {
	lua.NewMetaTable(state, formTypeName)
	state.Pop(1)
}

func pushForm(state *lua.State, id form.Id) {
	state.PushUserData(id)
	lua.SetMetaTableNamed(state, formTypeName)
}

func checkForm(state *lua.State, index int) form.Id {
	ud := lua.CheckUserData(state, index, formTypeName)
	id, ok := ud.(form.Id)
	if !ok {
		lua.Errorf(state, "expected a Form at argument %d", index)
	}
	return id
}

// pushLuaValue pushes a Go value produced by host-side code (event args,
// native return values) onto the Lua stack, nil for anything it doesn't
// recognize rather than erroring — an event handler that ignores an
// argument it can't use is the common case, not a bug.
func pushLuaValue(l *lua.State, v any) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case int:
		l.PushInteger(x)
	case int32:
		l.PushInteger(int(x))
	case int64:
		l.PushInteger(int(x))
	case uint32:
		l.PushInteger(int(x))
	case float32:
		l.PushNumber(float64(x))
	case float64:
		l.PushNumber(x)
	case form.Id:
		pushForm(l, x)
	default:
		l.PushNil()
	}
}

// luaArgValue reads the Lua value at index back into a Go value suitable
// for form.PatchLookField, which accepts any JSON-encodable value.
func luaArgValue(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return n
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	default:
		return nil
	}
}

// pushGjsonResult pushes a gjson.Result's underlying scalar value,
// matching the dynamic typing the script-visible Look fields carry.
func pushGjsonResult(l *lua.State, res gjson.Result) {
	switch res.Type {
	case gjson.String:
		l.PushString(res.Str)
	case gjson.Number:
		l.PushNumber(res.Num)
	case gjson.True, gjson.False:
		l.PushBoolean(res.Bool())
	default:
		l.PushNil()
	}
}

func pushRefField(l *lua.State, host *Host, argIndex int, get func(*form.ObjectReferenceData) float32) int {
	id := checkForm(l, argIndex)
	h, ok := host.forms.LookupFormByID(id)
	if !ok || h.AsObjectReference() == nil {
		l.PushNumber(0)
		return 1
	}
	l.PushNumber(float64(get(h.AsObjectReference())))
	return 1
}
