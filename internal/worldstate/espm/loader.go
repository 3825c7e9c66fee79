package espm

import (
	"log/slog"

	"github.com/riftworld/worldcore/internal/worldstate/form"
)

// FormAdder is the slice of FormRegistry EspmLazyLoader needs: insert new
// forms and detect overlay hits without recursing back into the loader.
type FormAdder interface {
	Add(h *form.Handle, id form.Id, skipChecks bool, loading bool) error
	LookupLocal(id form.Id) (*form.Handle, bool)
}

// NeighborRefresher lets the loader force a subscription refresh once a
// deferred change form has been replayed onto a freshly loaded reference
// (§4.5 step 3). Satisfied by *spatial.Grid; kept as an interface here to
// avoid espm importing spatial.
type NeighborRefresher interface {
	ForceSubscriptionRefresh(id form.Id)
}

// Loader implements C5: on-demand materialization of persistent forms,
// and registry.Loader (its LoadForm method is the registry miss seam).
type Loader struct {
	browser  Browser
	registry FormAdder
	deferred *DeferredChangeForms
	grid     NeighborRefresher
	log      *slog.Logger
}

// New returns a Loader reading from browser, populating registry, and
// draining deferred change forms from deferred.
func New(browser Browser, registry FormAdder, deferred *DeferredChangeForms, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{browser: browser, registry: registry, deferred: deferred, log: log}
}

// AttachGrid wires the spatial grid in after construction, for the
// post-load subscription refresh in step 3 of LoadForm.
func (l *Loader) AttachGrid(g NeighborRefresher) { l.grid = g }

// DeferChangeForm parks cf for id until it next loads, WorldState's seam
// for load_change_form (§4.9) when id isn't live yet at startup replay.
func (l *Loader) DeferChangeForm(id form.Id, cf form.ChangeForm) {
	l.deferred.Push(id, cf)
}

// LoadForm materializes id from every ESPM file that provides a record for
// it (overlay order: later files win), replays any deferred change forms,
// and forces a neighbor-subscription refresh (§4.5).
func (l *Loader) LoadForm(id form.Id) (*form.Handle, bool) {
	results := l.browser.LookupAll(id)

	var attached *form.Handle
	for _, res := range results {
		mapping := l.browser.GetMapping(res.FileIdx)
		if h, ok := l.attachRecord(res.Record, mapping); ok {
			attached = h
		}
	}
	if attached == nil {
		return nil, false
	}

	if attached.IsObjectReference() {
		for _, cf := range l.deferred.PopAll(id) {
			if err := form.ApplyChangeForm(attached, cf); err != nil {
				l.log.Warn("replay deferred change form failed", "form_id", id, "error", err)
				continue
			}
		}
		if l.grid != nil {
			l.grid.ForceSubscriptionRefresh(id)
		}
	}

	return attached, true
}

// LoadChunkForms resolves every record any ESPM file places in chunk
// (cx, cy) of world and loads it, returning the ids of those that ended
// up tracked as ObjectReferences. This is SpatialGrid's pre-load seam
// (§4.6): "fetch records_at(world, x, y) per file, resolve each global id
// via the file's mapping, load_form(id)".
func (l *Loader) LoadChunkForms(world form.Id, cx, cy int32) []form.Id {
	perFile := l.browser.RecordsAtPos(world, cx, cy)

	seen := make(map[form.Id]struct{})
	var ids []form.Id
	for fileIdx, records := range perFile {
		mapping := l.browser.GetMapping(fileIdx)
		for _, rec := range records {
			id := mapping.ToGlobal(rec.LocalID)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if h, ok := l.LoadForm(id); ok && h.IsObjectReference() {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// attachRecord is §4.5's attach_record: filters out records this world
// model doesn't track, resolves the base id and global form id, applies
// the radians→degrees rotation conversion, and either hydrates an
// existing overlay target or constructs and registers a new form.
func (l *Loader) attachRecord(rec *Record, mapping Mapping) (*form.Handle, bool) {
	if rec.Flags&FlagInitiallyDisabled != 0 {
		return nil, false
	}
	if !isPlaceable(rec) {
		return nil, false
	}
	if rec.BaseType == "NPC_" && rec.NPC != nil {
		if rec.NPC.Essential || rec.NPC.Protected {
			return nil, false
		}
		for _, factionLocal := range rec.NPC.FactionLocalIDs {
			if mapping.ToGlobal(factionLocal) == CrimeFactionsFormID {
				return nil, false
			}
		}
	}
	if !rec.HasWorldOrCell {
		l.log.Info("espm record missing world_or_cell, skipping", "local_id", rec.LocalID)
		return nil, false
	}

	formID := mapping.ToGlobal(rec.LocalID)
	baseID := mapping.ToGlobal(rec.BaseLocalID)
	worldOrCell := mapping.ToGlobal(rec.WorldOrCellLocal)

	if existing, ok := l.registry.LookupLocal(formID); ok {
		// Overlay semantics: a later file's placement for the same form
		// silently updates locational data, no neighbor notification.
		if ref := existing.AsObjectReference(); ref != nil {
			ref.LocationalData = form.LocationalData{
				Pos:         rec.PosRad,
				Rot:         RadToDeg(rec.RotRad),
				WorldOrCell: worldOrCell,
			}
		}
		return existing, true
	}

	locational := form.LocationalData{
		Pos:         rec.PosRad,
		Rot:         RadToDeg(rec.RotRad),
		WorldOrCell: worldOrCell,
	}
	refData := form.ObjectReferenceData{
		LocationalData:      locational,
		BaseId:              baseID,
		BaseType:            rec.BaseType,
		PrimitiveBoundsDiv2: rec.PrimitiveBoundsDiv2,
		ScriptName:          rec.ScriptName,
	}

	var h *form.Handle
	if rec.BaseType == "NPC_" {
		h = form.NewActor(refData, form.ActorData{ProfileId: form.UnboundProfileId})
	} else {
		h = form.NewObjectReference(refData)
	}

	if err := l.registry.Add(h, formID, true, false); err != nil {
		l.log.Warn("espm attach_record: registry add failed", "form_id", formID, "error", err)
		return nil, false
	}
	return h, true
}
