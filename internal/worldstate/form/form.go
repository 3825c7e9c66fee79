// Package form defines the live object model: FormId identity, the
// LocationalData/ObjectReference/Actor attribute sets, and the polymorphic
// Form handle that FormRegistry stores.
//
// The source hierarchy (Form -> ObjectReference -> Actor via inheritance and
// runtime casts) is re-architected here as a tagged variant with small
// capability accessors (AsObjectReference, AsActor), matching the redesign
// in spec §9: dense-indexed forms carry an index, everything else does not.
package form

import "fmt"

// Id is a 32-bit global form identifier. Ids below DynamicIDStart denote
// persistent forms backed by ESPM; ids at or above it denote dynamic forms
// created at runtime.
type Id uint32

// DynamicIDStart is the first id handed out to runtime-created forms.
const DynamicIDStart Id = 0xFF000000

// IsPersistent reports whether id names an ESPM-backed form.
func (id Id) IsPersistent() bool { return id < DynamicIDStart }

// IsDynamic reports whether id names a runtime-created form.
func (id Id) IsDynamic() bool { return id >= DynamicIDStart }

func (id Id) String() string { return fmt.Sprintf("0x%08X", uint32(id)) }

// Desc is a (local-id-within-file, file-name) pair. It converts to an Id
// against a known ordered list of loaded file names: the file's position
// in that list supplies the high byte of the global id.
type Desc struct {
	LocalID  uint32
	FileName string
}

// ToId resolves d against files, the ordered list of loaded ESPM file
// names. ok is false if FileName is not present in files.
func (d Desc) ToId(files []string) (id Id, ok bool) {
	for i, f := range files {
		if f == d.FileName {
			return Id(uint32(i)<<24 | (d.LocalID & 0x00FFFFFF)), true
		}
	}
	return 0, false
}

// FromId builds the Desc for id against files. ok is false if id's file
// index is out of range of files.
func FromId(id Id, files []string) (Desc, bool) {
	idx := int(uint32(id) >> 24)
	if idx < 0 || idx >= len(files) {
		return Desc{}, false
	}
	return Desc{LocalID: uint32(id) & 0x00FFFFFF, FileName: files[idx]}, true
}

// Vec3 is a 3-component vector, used for both positions and Euler rotations
// (rotations are stored in degrees in memory; ESPM stores radians, see
// espm.RadToDeg).
type Vec3 struct {
	X, Y, Z float32
}

// LocationalData is the position/rotation/container attributes every
// ObjectReference carries.
type LocationalData struct {
	Pos         Vec3
	Rot         Vec3 // degrees
	WorldOrCell Id
}

// Kind discriminates the Form variants a Handle can hold.
type Kind int

const (
	// KindGeneric is a form with no object-reference or actor attributes.
	KindGeneric Kind = iota
	// KindObjectReference is a placed, located reference to a base record.
	KindObjectReference
	// KindActor is an ObjectReference that is also a controllable actor.
	KindActor
)

// RecType is the ChangeForm discriminant, one of "REFR" or "ACHR".
type RecType string

const (
	RecTypeRefr RecType = "REFR"
	RecTypeAchr RecType = "ACHR"
)

// Look is an actor's character-customization blob. It round-trips through
// JSON byte-for-byte semantically (component-wise equality), backed by
// gjson/sjson for targeted field patches in internal/worldstate/script.
type Look struct {
	RaceID      Id             `json:"raceId"`
	IsFemale    bool           `json:"isFemale"`
	WeightPct   float32        `json:"weight"`
	Morphs      map[string]float32 `json:"morphs,omitempty"`
	Tints       []Tint         `json:"tints,omitempty"`
}

// Tint is a single face/body tint layer in a Look.
type Tint struct {
	Texture string  `json:"texture"`
	Color   uint32  `json:"color"`
	Type    int32   `json:"type"`
}

// Equal reports component-wise equality, used by the Look round-trip test (P7).
func (l Look) Equal(o Look) bool {
	if l.RaceID != o.RaceID || l.IsFemale != o.IsFemale || l.WeightPct != o.WeightPct {
		return false
	}
	if len(l.Morphs) != len(o.Morphs) {
		return false
	}
	for k, v := range l.Morphs {
		if ov, ok := o.Morphs[k]; !ok || ov != v {
			return false
		}
	}
	if len(l.Tints) != len(o.Tints) {
		return false
	}
	for i := range l.Tints {
		if l.Tints[i] != o.Tints[i] {
			return false
		}
	}
	return true
}

// Equipment is an opaque, JSON-serializable equipment blob (worn/wielded
// item references). Its internal shape is mod-dependent and is therefore
// kept as raw JSON, matched byte range by byte range rather than typed.
type Equipment struct {
	Raw []byte
}

// ObjectReferenceData holds the attributes a placed, located reference
// carries beyond its FormId (spec §3).
type ObjectReferenceData struct {
	LocationalData
	BaseId             Id
	BaseType           string // 4-char tag, e.g. "STAT", "DOOR", "NPC_"
	PrimitiveBoundsDiv2 *Vec3
	Subscriptions      map[int32]struct{} // neighbors currently observing this reference
	ScriptName         string             // attached script class, empty if none (§4.8 ScriptVmHost)
}

// ActorData holds the attributes an Actor carries beyond ObjectReferenceData.
type ActorData struct {
	Look            *Look
	Equipment       *Equipment
	IsRaceMenuOpen  bool
	ProfileId       int32 // user binding; -1 means unbound
}

// UnboundProfileId marks an Actor with no user binding.
const UnboundProfileId int32 = -1

// Handle is the polymorphic form handle FormRegistry stores. Every live
// Handle has been Init-ed exactly once with its Id (invariant I2).
type Handle struct {
	id      Id
	kind    Kind
	index   *uint32 // dense index, present only for indexed forms
	initted bool

	loading bool // form_loading_in_progress — journal writes are suppressed while true

	objRef *ObjectReferenceData // present for KindObjectReference and KindActor
	actor  *ActorData           // present for KindActor
}

// NewGeneric builds an un-Init-ed generic form handle.
func NewGeneric() *Handle {
	return &Handle{kind: KindGeneric}
}

// NewObjectReference builds an un-Init-ed object-reference handle.
func NewObjectReference(data ObjectReferenceData) *Handle {
	if data.Subscriptions == nil {
		data.Subscriptions = make(map[int32]struct{})
	}
	return &Handle{kind: KindObjectReference, objRef: &data}
}

// NewActor builds an un-Init-ed actor handle. actor.ProfileId is used
// exactly as given: profile id 0 is a valid binding (spec §8 scenario 3),
// so callers that mean "unbound" must pass UnboundProfileId explicitly
// rather than relying on ActorData's zero value.
func NewActor(ref ObjectReferenceData, actor ActorData) *Handle {
	if ref.Subscriptions == nil {
		ref.Subscriptions = make(map[int32]struct{})
	}
	return &Handle{kind: KindActor, objRef: &ref, actor: &actor}
}

// Init binds id to the handle exactly once (invariant I2). isLoading seeds
// the form_loading_in_progress reentrancy guard for the duration of any
// change-form hydration the caller performs immediately afterwards.
func (h *Handle) Init(id Id, isLoading bool) {
	h.id = id
	h.initted = true
	h.loading = isLoading
}

// Id returns the form's identifier. Valid only after Init.
func (h *Handle) Id() Id { return h.id }

// Kind reports the form's variant.
func (h *Handle) Kind() Kind { return h.kind }

// Initted reports whether Init has been called.
func (h *Handle) Initted() bool { return h.initted }

// Loading reports whether the form is within its reentrancy window (I4):
// while true, request_save must not journal a change for this form.
func (h *Handle) Loading() bool { return h.loading }

// SetLoading toggles the loading guard; callers must restore it on every
// exit path (see WorldState.LoadChangeForm for the guaranteed-release
// pattern described in spec §5).
func (h *Handle) SetLoading(v bool) { h.loading = v }

// HasIndex reports whether the form carries a dense index (I3).
func (h *Handle) HasIndex() bool { return h.index != nil }

// Index returns the form's dense index and true, or (0, false) if unindexed.
func (h *Handle) Index() (uint32, bool) {
	if h.index == nil {
		return 0, false
	}
	return *h.index, true
}

// SetIndex assigns a dense index to the form (called once by FormRegistry.Add).
func (h *Handle) SetIndex(idx uint32) { h.index = &idx }

// ClearIndex releases the form's dense index (called on removal).
func (h *Handle) ClearIndex() { h.index = nil }

// AsObjectReference returns the object-reference attribute set, or nil if
// the form is a plain generic form.
func (h *Handle) AsObjectReference() *ObjectReferenceData { return h.objRef }

// AsActor returns the actor attribute set, or nil if the form is not an actor.
func (h *Handle) AsActor() *ActorData { return h.actor }

// IsObjectReference reports whether the form carries ObjectReference attributes.
func (h *Handle) IsObjectReference() bool { return h.objRef != nil }

// IsActor reports whether the form carries Actor attributes.
func (h *Handle) IsActor() bool { return h.actor != nil }
