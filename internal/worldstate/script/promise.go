package script

import (
	lua "github.com/Shopify/go-lua"

	"github.com/riftworld/worldcore/internal/worldstate/timer"
)

func registerPromiseType(state *lua.State) {
	lua.NewMetaTable(state, promiseTypeName)
	state.NewTable()
	lua.SetFunctions(state, promiseMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

var promiseMethods = []lua.RegistryFunction{
	{Name: "OnResolve", Function: promiseOnResolve},
	{Name: "IsResolved", Function: promiseIsResolved},
}

func pushPromise(state *lua.State, p *timer.Promise[timer.Void]) {
	state.PushUserData(p)
	lua.SetMetaTableNamed(state, promiseTypeName)
}

func checkPromise(state *lua.State, index int) *timer.Promise[timer.Void] {
	ud := lua.CheckUserData(state, index, promiseTypeName)
	p, ok := ud.(*timer.Promise[timer.Void])
	if !ok || p == nil {
		lua.Errorf(state, "expected a Promise at argument %d", index)
	}
	return p
}

// promiseOnResolve registers a Lua function to run when the promise
// resolves, the script-visible continuation for Utility.Wait and
// RegisterForSingleUpdate (§4.8).
func promiseOnResolve(state *lua.State) int {
	p := checkPromise(state, 1)
	lua.CheckType(state, 2, lua.TypeFunction)

	// The callback lua.Value is only valid for this state's lifetime,
	// which matches the promise's lifetime (both owned by the one VM).
	ref := lua.Ref(state, lua.RegistryIndex)
	p.Then(func(timer.Void) {
		state.RawGet(lua.RegistryIndex, ref)
		if err := state.ProtectedCall(0, 0, 0); err != nil {
			state.Pop(1)
		}
	})
	return 0
}

func promiseIsResolved(state *lua.State) int {
	p := checkPromise(state, 1)
	state.PushBoolean(p.Resolved())
	return 1
}
