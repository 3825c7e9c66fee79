// Package worldstate implements C9: the WorldState facade binding C1–C8
// into the single tick-driven entry point described in spec §4.9/§4.10.
package worldstate

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	lua "github.com/Shopify/go-lua"
	"golang.org/x/sync/errgroup"

	"github.com/riftworld/worldcore/internal/platform/clock"
	"github.com/riftworld/worldcore/internal/worldstate/espm"
	"github.com/riftworld/worldcore/internal/worldstate/form"
	"github.com/riftworld/worldcore/internal/worldstate/formid"
	"github.com/riftworld/worldcore/internal/worldstate/journal"
	"github.com/riftworld/worldcore/internal/worldstate/movement"
	"github.com/riftworld/worldcore/internal/worldstate/registry"
	"github.com/riftworld/worldcore/internal/worldstate/save"
	"github.com/riftworld/worldcore/internal/worldstate/script"
	"github.com/riftworld/worldcore/internal/worldstate/spatial"
	"github.com/riftworld/worldcore/internal/worldstate/timer"
	"github.com/riftworld/worldcore/internal/worldstate/wire"
	"github.com/riftworld/worldcore/internal/worldstate/wserr"
)

// DefaultChunkSize is the spatial-grid chunk edge length used to derive
// (cx, cy) from a LocationalData.Pos when none is configured.
const DefaultChunkSize float32 = 4096

// DefaultRelootDuration is the fallback reloot interval for any
// record-type tag with no entry in SetRelootTime (SPEC_FULL §3).
const DefaultRelootDuration = 3 * time.Hour

// UserMessenger is the per-user send seam WorldState broadcasts through
// (§6 MessageOutput, generalized to "which connected user" since a
// neighbor broadcast or a race-menu transition addresses a specific
// bound profile rather than a single already-known connection).
type UserMessenger interface {
	SendToUser(profileID int32, data []byte, reliable bool)
}

type relootEntry struct {
	deadline time.Time
	formID   form.Id
}

// WorldState owns C1–C8 and exposes the operations of spec §4.9.
type WorldState struct {
	log *slog.Logger
	now clock.Source

	indices  *formid.Allocator
	timers   *timer.Queue
	journal  *journal.Journal
	registry *registry.Registry
	grid     *spatial.Grid

	espm      *espm.Loader
	espmFiles []string

	scripts   *script.Host
	save      save.Storage
	messenger UserMessenger

	chunkSize float32

	relootDurations map[string]time.Duration
	relootDefault   time.Duration
	relootQueues    map[time.Duration][]relootEntry

	movementReasons map[movement.Reason]int

	nextDynamicID form.Id
}

// New returns a WorldState with no ESPM/save/script/messenger backends
// attached yet — those are wired in with the Attach* methods, matching
// the source's "construct, then attach collaborators" sequencing.
func New(now clock.Source, indexMax uint32, log *slog.Logger) *WorldState {
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = clock.Real()
	}
	indices := formid.New(indexMax)
	return &WorldState{
		log:             log,
		now:             now,
		indices:         indices,
		timers:          timer.New(now),
		journal:         journal.New(),
		registry:        registry.New(indices),
		grid:            spatial.New(),
		chunkSize:       DefaultChunkSize,
		relootDurations: make(map[string]time.Duration),
		relootDefault:   DefaultRelootDuration,
		relootQueues:    make(map[time.Duration][]relootEntry),
		movementReasons: make(map[movement.Reason]int),
		nextDynamicID:   form.DynamicIDStart,
	}
}

// WithChunkSize overrides the spatial-grid chunk edge length (default
// DefaultChunkSize).
func (w *WorldState) WithChunkSize(size float32) *WorldState {
	w.chunkSize = size
	return w
}

// WithGridRadius overrides the spatial grid's pre-load skirt radius
// (SPEC_FULL §3; default 1, the spec's 3x3 window).
func (w *WorldState) WithGridRadius(radius int32) *WorldState {
	w.grid = w.grid.WithRadius(radius)
	return w
}

// AttachEspm wires an ESPM browser in, constructing the lazy loader (C5)
// and connecting it to the registry (miss delegation) and the grid
// (chunk pre-load).
func (w *WorldState) AttachEspm(browser espm.Browser) {
	deferred := espm.NewDeferredChangeForms()
	loader := espm.New(browser, w.registry, deferred, w.log)
	loader.AttachGrid(w.grid)
	w.registry.AttachLoader(loader)
	w.grid.AttachEspm(loader)
	w.espm = loader
	w.espmFiles = browser.FileNames()
}

// AttachSaveStorage wires the async save backend (SaveStorage contract,
// §6) in for the journal drain step of Tick.
func (w *WorldState) AttachSaveStorage(s save.Storage) { w.save = s }

// AttachScriptStorage constructs the script VM host (C8) over s.
func (w *WorldState) AttachScriptStorage(s script.Storage, hotReload bool) {
	w.scripts = script.NewHost(s, w, w.timers, hotReload, w.log)
}

// AttachMessenger wires the per-user send seam in for SetRaceMenuOpen,
// UpdateLook, and UpdateMovement's neighbor broadcasts.
func (w *WorldState) AttachMessenger(m UserMessenger) { w.messenger = m }

// AddForm inserts h under id, tracking it in the spatial grid immediately
// if it carries ObjectReference data — forms added via ESPM pre-load are
// tracked by EspmLazyLoader/SpatialGrid already; this is the seam for
// forms added directly (spec §3 lifecycle, "add_form(form, id)").
func (w *WorldState) AddForm(h *form.Handle, id form.Id, skipChecks bool) error {
	if err := w.registry.Add(h, id, skipChecks, false); err != nil {
		return err
	}
	if ref := h.AsObjectReference(); ref != nil {
		w.grid.Track(ref.WorldOrCell, ref.Pos, w.chunkSize, id)
	}
	return nil
}

// RemoveForm drops id from the registry and, if tracked spatially,
// untracks it — the explicit-removal half of the lifecycle in spec §3.
func (w *WorldState) RemoveForm(id form.Id) {
	if h, ok := w.registry.LookupByID(id); ok {
		if ref := h.AsObjectReference(); ref != nil {
			w.grid.Untrack(ref.WorldOrCell, ref.Pos, w.chunkSize, id)
		}
	}
	w.registry.Remove(id)
}

// LookupFormByID satisfies script.FormResolver and is the `lookup_by_id`
// operation of §4.9.
func (w *WorldState) LookupFormByID(id form.Id) (*form.Handle, bool) {
	return w.registry.LookupByID(id)
}

// LookupFormByIdx is the `lookup_by_idx` operation of §4.9.
func (w *WorldState) LookupFormByIdx(idx uint32) (*form.Handle, bool) {
	return w.registry.LookupByIndex(idx)
}

// GenerateFormID returns the next unoccupied dynamic id, never one
// already live in the registry (P2).
func (w *WorldState) GenerateFormID() form.Id {
	for {
		id := w.nextDynamicID
		w.nextDynamicID++
		if _, exists := w.registry.LookupLocal(id); !exists {
			return id
		}
	}
}

// descFor resolves id to the FormDesc used as the save-storage primary
// key: the real (file, local-id) pair for persistent forms, or an
// empty-file placeholder for dynamic ones (which have no ESPM backing).
func (w *WorldState) descFor(id form.Id) form.Desc {
	if id.IsPersistent() {
		if d, ok := form.FromId(id, w.espmFiles); ok {
			return d
		}
	}
	return form.Desc{LocalID: uint32(id), FileName: ""}
}

// RequestSave journals a snapshot of h unless a load is currently in
// progress for it (I4) — spec §4.9 `request_save`.
func (w *WorldState) RequestSave(h *form.Handle) error {
	if h.Loading() {
		return nil
	}
	cf, err := form.Snapshot(h, h.Id(), w.descFor(h.Id()))
	if err != nil {
		return err
	}
	w.journal.Record(h.Id(), cf)
	return nil
}

// LoadChangeForm replays a persisted ChangeForm at startup (§4.9
// `load_change_form`). A persistent form id either updates an
// already-live ObjectReference or parks in the deferred map for
// EspmLazyLoader to apply once it materializes; a dynamic form id is
// constructed and added under the loading guard, then asserted not to
// have dirtied the journal (I4/P3).
func (w *WorldState) LoadChangeForm(cf form.ChangeForm) error {
	id := cf.FormID

	if id.IsPersistent() {
		if h, ok := w.registry.LookupLocal(id); ok {
			return form.ApplyChangeForm(h, cf)
		}
		if w.espm == nil {
			w.log.Warn("load_change_form: no espm attached to defer persistent change form", "form_id", id)
			return nil
		}
		w.espm.DeferChangeForm(id, cf)
		return nil
	}

	refData := form.ObjectReferenceData{BaseId: cf.BaseId, BaseType: cf.BaseType}
	var h *form.Handle
	switch cf.RecType {
	case form.RecTypeAchr:
		h = form.NewActor(refData, form.ActorData{})
	case form.RecTypeRefr:
		h = form.NewObjectReference(refData)
	default:
		return wserr.Newf(wserr.CodeUnknownChangeFormType, "unknown change form rec_type %q", cf.RecType)
	}

	if err := w.registry.Add(h, id, false, true); err != nil {
		return err
	}
	if err := form.ApplyChangeForm(h, cf); err != nil {
		w.registry.Remove(id)
		return err
	}
	h.SetLoading(false)

	if w.journal.Has(id) {
		return wserr.Newf(wserr.CodeCastFailed, "load_change_form dirtied the journal for %s (I4 violation)", id)
	}

	if ref := h.AsObjectReference(); ref != nil {
		w.grid.Track(ref.WorldOrCell, ref.Pos, w.chunkSize, id)
	}
	return nil
}

// RequestReloot schedules id for `do_reloot` after duration elapses
// (§4.9 `request_reloot`).
func (w *WorldState) RequestReloot(id form.Id, duration time.Duration) {
	deadline := w.now().Add(duration)
	w.relootQueues[duration] = append(w.relootQueues[duration], relootEntry{deadline: deadline, formID: id})
}

// SetRelootTime overrides the reloot interval for recordType (SPEC_FULL §3).
func (w *WorldState) SetRelootTime(recordType string, d time.Duration) {
	w.relootDurations[recordType] = d
}

// GetRelootTime returns recordType's configured reloot interval, or the
// default if none was set.
func (w *WorldState) GetRelootTime(recordType string) time.Duration {
	if d, ok := w.relootDurations[recordType]; ok {
		return d
	}
	return w.relootDefault
}

// RegisterForSingleUpdate is §4.9's operation of the same name: schedules
// formID to receive an OnUpdate Papyrus event after seconds elapse,
// routed through the script host when one is attached.
func (w *WorldState) RegisterForSingleUpdate(id form.Id, seconds float64) *timer.Promise[timer.Void] {
	if w.scripts != nil {
		return w.scripts.RegisterForSingleUpdate(id, seconds)
	}
	return w.timers.SetTimer(time.Duration(seconds * float64(time.Second)))
}

// SetTimer is §4.9's `set_timer`, and satisfies script.TimerScheduler.
func (w *WorldState) SetTimer(d time.Duration) *timer.Promise[timer.Void] {
	return w.timers.SetTimer(d)
}

// SendPapyrusEvent is §4.9's `send_papyrus_event`; a no-op logged at warn
// level if no script host is attached.
func (w *WorldState) SendPapyrusEvent(id form.Id, name string, args []any) {
	if w.scripts == nil {
		w.log.Warn("send_papyrus_event: script host not attached", "form_id", id, "event", name)
		return
	}
	w.scripts.SendPapyrusEvent(id, name, args)
}

// GetPapyrusVM is §4.9's `get_papyrus_vm`, lazily constructing the VM on
// first call.
func (w *WorldState) GetPapyrusVM() (*lua.State, error) {
	if w.scripts == nil {
		return nil, wserr.New(wserr.CodeScriptStorageMissing, "script storage not attached")
	}
	return w.scripts.GetVM()
}

// MovementReasonCount reports how many UpdateMovement calls were
// rejected for reason r, the telemetry counter SPEC_FULL §3 adds over
// movement.Validate's verdict (P5).
func (w *WorldState) MovementReasonCount(r movement.Reason) int {
	return w.movementReasons[r]
}

// UpdateMovement is the control flow for a client movement packet (§2):
// validate against the actor's current state, then either mutate and
// broadcast the new position to spatial neighbors, or send a
// teleport-back to out.
func (w *WorldState) UpdateMovement(id form.Id, newPos, newRot form.Vec3, newCell form.Id, out wire.MessageOutput) (movement.Verdict, error) {
	h, ref, err := w.registry.GetObjectReferenceAt(id)
	if err != nil {
		return movement.Verdict{}, err
	}

	verdict := movement.Validate(ref.LocationalData, newPos, newCell)
	w.movementReasons[verdict.Reason]++

	if !verdict.Accepted {
		if out != nil {
			data, err := json.Marshal(wire.NewTeleportMessage(ref.LocationalData))
			if err != nil {
				w.log.Error("update_movement: encode teleport message failed", "form_id", id, "error", err)
			} else {
				out.Send(data, true)
			}
		}
		return verdict, nil
	}

	ref.LocationalData.Pos = newPos
	ref.LocationalData.Rot = newRot
	ref.LocationalData.WorldOrCell = newCell

	if err := w.RequestSave(h); err != nil {
		w.log.Error("update_movement: request_save failed", "form_id", id, "error", err)
	}
	w.broadcastMovement(h, ref)
	return verdict, nil
}

// SetRaceMenuOpen toggles id's race-menu flag, emitting a single
// RaceMenuMessage to id's bound user only on an actual transition
// (SPEC_FULL §3 single-flight broadcast; scenario 2).
func (w *WorldState) SetRaceMenuOpen(id form.Id, open bool) error {
	h, ok := w.registry.LookupByID(id)
	if !ok {
		return wserr.Newf(wserr.CodeNotFound, "Form with id %s doesn't exist", id)
	}
	actor := h.AsActor()
	if actor == nil {
		return wserr.Newf(wserr.CodeWrongVariant, "Form with id %s is not Actor", id)
	}
	if actor.ProfileId == form.UnboundProfileId {
		return wserr.Newf(wserr.CodeNotAttached, "Form with id %s is not attached to any of users", id)
	}

	if actor.IsRaceMenuOpen == open {
		return nil
	}
	actor.IsRaceMenuOpen = open

	if w.messenger != nil {
		data, err := json.Marshal(wire.NewRaceMenuMessage(open))
		if err != nil {
			w.log.Error("set_race_menu_open: encode message failed", "form_id", id, "error", err)
		} else {
			w.messenger.SendToUser(actor.ProfileId, data, true)
		}
	}
	return nil
}

// UpdateLook applies a new look blob to an actor, broadcasts it to
// spatial neighbors bound to a user, and closes the actor's race menu if
// it was open (scenario 3).
func (w *WorldState) UpdateLook(id form.Id, lookJSON []byte) error {
	h, actor, err := w.registry.GetActorAt(id)
	if err != nil {
		return err
	}

	look, err := form.LookFromJSON(lookJSON)
	if err != nil {
		return err
	}
	actor.Look = &look

	if w.messenger != nil {
		idx, _ := h.Index()
		data, err := wire.EncodeMessage(wire.MsgTypeUpdateLook, idx, json.RawMessage(lookJSON))
		if err != nil {
			w.log.Error("update_look: encode message failed", "form_id", id, "error", err)
		} else {
			for neighborID := range w.neighborsOf(h) {
				if neighborID == id {
					continue
				}
				w.sendToBoundUser(neighborID, data, true)
			}
		}
	}

	if err := w.SetRaceMenuOpen(id, false); err != nil {
		w.log.Error("update_look: close race menu failed", "form_id", id, "error", err)
	}
	if err := w.RequestSave(h); err != nil {
		w.log.Error("update_look: request_save failed", "form_id", id, "error", err)
	}
	return nil
}

// broadcastMovement sends h's updated MovementPacket to every spatial
// neighbor bound to a connected user.
func (w *WorldState) broadcastMovement(h *form.Handle, ref *form.ObjectReferenceData) {
	if w.messenger == nil {
		return
	}
	idx, ok := h.Index()
	if !ok {
		return
	}
	pkt := wire.MovementPacket{
		ID:          int32(idx),
		X:           ref.Pos.X,
		Y:           ref.Pos.Y,
		Z:           ref.Pos.Z,
		AngleZDeg:   ref.Rot.Z,
		WorldOrCell: ref.WorldOrCell,
	}
	data := wire.EncodeMovement(pkt)
	for neighborID := range w.neighborsOf(h) {
		if neighborID == h.Id() {
			continue
		}
		w.sendToBoundUser(neighborID, data, false)
	}
}

// neighborsOf resolves h's spatial neighbor set via the grid, given its
// current chunk coordinates.
func (w *WorldState) neighborsOf(h *form.Handle) map[form.Id]struct{} {
	ref := h.AsObjectReference()
	if ref == nil {
		return nil
	}
	cx, cy := w.chunkOf(ref.Pos)
	return w.grid.ReferencesAt(ref.WorldOrCell, cx, cy)
}

func (w *WorldState) chunkOf(pos form.Vec3) (int32, int32) {
	return int32(pos.X / w.chunkSize), int32(pos.Y / w.chunkSize)
}

// sendToBoundUser delivers data to id's bound user, if id is a live
// Actor with a bound profile.
func (w *WorldState) sendToBoundUser(id form.Id, data []byte, reliable bool) {
	h, ok := w.registry.LookupByID(id)
	if !ok {
		return
	}
	actor := h.AsActor()
	if actor == nil || actor.ProfileId == form.UnboundProfileId {
		return
	}
	w.messenger.SendToUser(actor.ProfileId, data, reliable)
}

// drainReloot pops every reloot entry across every duration bucket whose
// deadline has elapsed and invokes do_reloot on its target, if it still
// exists and is an ObjectReference (§4.10 step 2).
func (w *WorldState) drainReloot(now time.Time) {
	for d, list := range w.relootQueues {
		i := 0
		for i < len(list) && !list[i].deadline.After(now) {
			i++
		}
		if i == 0 {
			continue
		}
		due := list[:i]
		w.relootQueues[d] = list[i:]
		for _, e := range due {
			h, ok := w.registry.LookupByID(e.formID)
			if !ok || !h.IsObjectReference() {
				continue
			}
			w.doReloot(h)
		}
	}
}

// doReloot is the respawn/restore effect of a fired reloot deadline; the
// source leaves its concrete mutation mod-dependent, so this journals a
// snapshot of the restored reference, the one effect every reloot must
// have observable in persistence.
func (w *WorldState) doReloot(h *form.Handle) {
	if err := w.RequestSave(h); err != nil {
		w.log.Error("reloot: request_save failed", "form_id", h.Id(), "error", err)
	}
}

// drainSave advances the save backend's own tick and, if idle with a
// non-empty journal, starts exactly one upsert batch (§4.3, I8).
func (w *WorldState) drainSave() {
	if w.save == nil {
		return
	}
	w.save.Tick()
	if w.journal.Busy() || w.journal.Empty() {
		return
	}
	w.journal.SetBusy(true)
	batch := w.journal.Drain()
	w.save.Upsert(batch, func() {
		w.journal.SetBusy(false)
	})
}

// Tick advances reloot, save, and timer state in the canonical order of
// §4.10: reloot drain, then save drain, then timer drain.
func (w *WorldState) Tick() {
	now := w.now()
	w.drainReloot(now)
	w.drainSave()
	w.timers.Tick(now)
}

// Close shuts down attached backends that need an explicit stop. Only
// save storage currently does; the script VM (go-lua) holds no external
// resources and needs none.
func (w *WorldState) Close(ctx context.Context) error {
	var g errgroup.Group
	if closer, ok := w.save.(interface{ Close() error }); ok {
		g.Go(closer.Close)
	}
	return g.Wait()
}
