// Package script implements C8: hosting go-lua in place of the Papyrus
// bytecode VM, lazy script loading with hot reload, missing-class
// resolution, exception routing, and native-class registration.
package script

// Storage is the §6 ScriptStorage contract: list_scripts(include_hidden)
// and get_script_pex(name) (empty on miss).
type Storage interface {
	ListScripts(includeHidden bool) []string
	GetScriptPex(name string) []byte
}
