package espm

import "github.com/riftworld/worldcore/internal/worldstate/form"

// DeferredChangeForms holds change forms that arrived (via LoadChangeForm
// at startup) for a form id not yet live. It's keyed by FormId rather than
// FormDesc and supports stacking multiple entries per id — later overlays
// can each carry their own change — applied oldest-first once the target
// finally materializes (SPEC_FULL §3 supplement; §4.5/§4.9 describe the
// single-entry special case of this).
type DeferredChangeForms struct {
	byID map[form.Id][]form.ChangeForm
}

// NewDeferredChangeForms returns an empty deferred-form stack.
func NewDeferredChangeForms() *DeferredChangeForms {
	return &DeferredChangeForms{byID: make(map[form.Id][]form.ChangeForm)}
}

// Push parks cf for id, to be replayed once id loads.
func (d *DeferredChangeForms) Push(id form.Id, cf form.ChangeForm) {
	d.byID[id] = append(d.byID[id], cf)
}

// PopAll removes and returns every change form parked for id, oldest
// first, leaving nothing behind for id.
func (d *DeferredChangeForms) PopAll(id form.Id) []form.ChangeForm {
	entries, ok := d.byID[id]
	if !ok {
		return nil
	}
	delete(d.byID, id)
	return entries
}

// Len reports how many ids currently carry at least one deferred entry.
func (d *DeferredChangeForms) Len() int { return len(d.byID) }
