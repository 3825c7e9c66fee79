// Package registry implements C4: the keyed store of live forms, backing
// both FormId and dense-index lookup.
package registry

import (
	"github.com/riftworld/worldcore/internal/worldstate/form"
	"github.com/riftworld/worldcore/internal/worldstate/formid"
	"github.com/riftworld/worldcore/internal/worldstate/wserr"
)

// Loader is the lazy-population seam a registry miss falls through to
// (C5 EspmLazyLoader). Kept as an interface here so that registry never
// imports espm (espm's own tests build a real Registry).
type Loader interface {
	LoadForm(id form.Id) (*form.Handle, bool)
}

// Registry owns forms keyed by FormId plus a weak by-index view.
type Registry struct {
	forms   map[form.Id]*form.Handle
	byIndex []*form.Handle
	indices *formid.Allocator
	loader  Loader
}

// New returns an empty Registry. indices backs dense-index allocation for
// the forms WantIndex selects. No loader is set: misses below the
// dynamic-id threshold return (nil, false) until AttachLoader is called.
func New(indices *formid.Allocator) *Registry {
	return &Registry{
		forms:   make(map[form.Id]*form.Handle),
		indices: indices,
	}
}

// AttachLoader wires the ESPM lazy loader in after construction, breaking
// the registry/espm initialization cycle (espm.New takes the registry as
// its FormAdder).
func (r *Registry) AttachLoader(l Loader) { r.loader = l }

// WantIndex reports whether a handle variant requires a dense index:
// object references and actors do (they're queried by the spatial grid and
// movement/equipment RPCs by array slot), generic forms do not.
func WantIndex(h *form.Handle) bool {
	return h.IsObjectReference()
}

// Add inserts form under id. If skipChecks is false and id already exists,
// returns wserr.CodeDuplicateForm. loading is passed to Init as the form's
// loading guard, for callers (WorldState.LoadChangeForm) that apply a
// ChangeForm immediately after Add returns — Add itself never applies a
// ChangeForm to h.
func (r *Registry) Add(h *form.Handle, id form.Id, skipChecks bool, loading bool) error {
	if !skipChecks {
		if _, exists := r.forms[id]; exists {
			return wserr.New(wserr.CodeDuplicateForm, "form id already registered")
		}
	}

	h.Init(id, loading)

	if WantIndex(h) {
		if r.indices == nil {
			return wserr.New(wserr.CodeCastFailed, "registry has no index allocator")
		}
		idx, ok := r.indices.Create()
		if !ok {
			return wserr.New(wserr.CodeCastFailed, "dense index pool exhausted")
		}
		h.SetIndex(idx)
		if int(idx) >= len(r.byIndex) {
			grown := make([]*form.Handle, idx+1)
			copy(grown, r.byIndex)
			r.byIndex = grown
		}
		r.byIndex[idx] = h
	}

	r.forms[id] = h
	return nil
}

// Remove drops id from the registry and returns its dense index, if any,
// to the allocator (spec §4.4: "dense indices are returned to C1").
func (r *Registry) Remove(id form.Id) {
	h, ok := r.forms[id]
	if !ok {
		return
	}
	delete(r.forms, id)
	if idx, ok := h.Index(); ok {
		if int(idx) < len(r.byIndex) {
			r.byIndex[idx] = nil
		}
		if r.indices != nil {
			r.indices.Release(idx)
		}
		h.ClearIndex()
	}
}

// LookupByID returns the live form for id. A registry hit returns
// immediately; a miss with id.IsPersistent() delegates to the attached
// loader (C5); any other miss returns (nil, false).
func (r *Registry) LookupByID(id form.Id) (*form.Handle, bool) {
	if h, ok := r.forms[id]; ok {
		return h, true
	}
	if id.IsPersistent() && r.loader != nil {
		return r.loader.LoadForm(id)
	}
	return nil, false
}

// LookupLocal returns the live form for id without ever falling through to
// the lazy loader. EspmLazyLoader uses this to detect overlay hits (a
// later file attaching a record for a form an earlier file already
// materialized) without triggering reentrant loading.
func (r *Registry) LookupLocal(id form.Id) (*form.Handle, bool) {
	h, ok := r.forms[id]
	return h, ok
}

// LookupByIndex bounds-checks idx and re-verifies the stored form still
// reports that same index, guarding against recycle races (a form removed
// and a new one allocated the same slot between calls).
func (r *Registry) LookupByIndex(idx uint32) (*form.Handle, bool) {
	if int(idx) >= len(r.byIndex) {
		return nil, false
	}
	h := r.byIndex[idx]
	if h == nil {
		return nil, false
	}
	if got, ok := h.Index(); !ok || got != idx {
		return nil, false
	}
	return h, true
}

// GetObjectReferenceAt is the typed accessor for object-reference/actor
// forms: errors if the form is missing or carries no ObjectReference data.
func (r *Registry) GetObjectReferenceAt(id form.Id) (*form.Handle, *form.ObjectReferenceData, error) {
	h, ok := r.LookupByID(id)
	if !ok {
		return nil, nil, wserr.Newf(wserr.CodeNotFound, "form %s not found", id)
	}
	ref := h.AsObjectReference()
	if ref == nil {
		return nil, nil, wserr.Newf(wserr.CodeWrongVariant, "form %s is not an ObjectReference", id)
	}
	return h, ref, nil
}

// GetActorAt is the typed accessor for actor forms: errors if the form is
// missing or carries no Actor data.
func (r *Registry) GetActorAt(id form.Id) (*form.Handle, *form.ActorData, error) {
	h, ok := r.LookupByID(id)
	if !ok {
		return nil, nil, wserr.Newf(wserr.CodeNotFound, "form %s not found", id)
	}
	actor := h.AsActor()
	if actor == nil {
		return nil, nil, wserr.Newf(wserr.CodeWrongVariant, "form %s is not an Actor", id)
	}
	return h, actor, nil
}

// Len reports the number of live forms.
func (r *Registry) Len() int { return len(r.forms) }
