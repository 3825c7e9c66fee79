// Package journal implements C3: a coalescing change-form buffer drained to
// save storage one batch at a time.
package journal

import "github.com/riftworld/worldcore/internal/worldstate/form"

// Journal coalesces per-form mutations into a snapshot set and hands them
// off to the save pipeline in one batch per drain. It is single-writer,
// single-reader within the tick thread (spec §4.9) — no locking here.
type Journal struct {
	changes map[form.Id]form.ChangeForm
	busy    bool
}

// New returns an empty Journal.
func New() *Journal {
	return &Journal{changes: make(map[form.Id]form.ChangeForm)}
}

// Record overwrites any prior entry for formID (last-write-wins). Callers
// must not record while a load is in progress for formID — enforcing I4 is
// the caller's responsibility, not the journal's.
func (j *Journal) Record(formID form.Id, cf form.ChangeForm) {
	j.changes[formID] = cf
}

// Empty reports whether there is nothing to drain.
func (j *Journal) Empty() bool { return len(j.changes) == 0 }

// Has reports whether formID currently carries an undrained entry, used
// by WorldState.LoadChangeForm to assert a startup replay never dirties
// the journal for the form it's hydrating (I4).
func (j *Journal) Has(formID form.Id) bool {
	_, ok := j.changes[formID]
	return ok
}

// Busy reports whether an upsert batch is currently in flight.
func (j *Journal) Busy() bool { return j.busy }

// SetBusy records ownership of the single in-flight upsert.
func (j *Journal) SetBusy(busy bool) { j.busy = busy }

// Drain atomically moves all entries out of the journal, leaving it empty.
// Callers must not call Drain while Busy() — that invariant (single
// in-flight upsert, I8) is enforced by WorldState.Tick, not here.
func (j *Journal) Drain() []form.ChangeForm {
	if len(j.changes) == 0 {
		return nil
	}
	out := make([]form.ChangeForm, 0, len(j.changes))
	for _, cf := range j.changes {
		out = append(out, cf)
	}
	j.changes = make(map[form.Id]form.ChangeForm)
	return out
}
