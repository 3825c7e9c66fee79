// Package espm implements C5: on-demand materialization of persistent
// forms from the static content database, and the read-only contracts
// that database is accessed through (§6 ESPM browser contract).
package espm

import "github.com/riftworld/worldcore/internal/worldstate/form"

// Record is one REFR/ACHR placement record as the ESPM browser surfaces
// it — opaque beyond the attributes EspmLazyLoader actually consumes.
type Record struct {
	LocalID    uint32
	BaseLocalID uint32
	BaseType   string // 4-char tag: "NPC_", "DOOR", "CONT", ...
	Flags      uint32

	PosRad              form.Vec3 // ESPM stores rotation in radians
	RotRad              form.Vec3
	WorldOrCellLocal    uint32
	HasWorldOrCell      bool
	ResultItem          bool // non-null result_item, relevant for FLOR/TREE
	PrimitiveBoundsDiv2 *form.Vec3
	ScriptName          string // attached script class, empty if none

	NPC *NPCBase // set only when BaseType == "NPC_"
}

// NPCBase carries the base-record attributes needed to apply the NPC_
// attach-time filters (essential/protected/crime-faction skip).
type NPCBase struct {
	Essential     bool
	Protected     bool
	FactionLocalIDs []uint32
}

// FlagInitiallyDisabled mirrors the ESPM placement-record flag bit that
// suppresses attachment regardless of base type.
const FlagInitiallyDisabled uint32 = 0x800

// CrimeFactionsFormID is the global form id of the CrimeFactions form
// list; an NPC whose faction membership includes this list is skipped.
const CrimeFactionsFormID form.Id = 0x26953

// LookupResult pairs a record with the file it came from, so the caller
// can resolve its mapping.
type LookupResult struct {
	Record  *Record
	FileIdx int
}

// Mapping resolves local ids within one ESPM file to global FormIds.
type Mapping struct {
	FileIdx  int
	ToGlobal func(localID uint32) form.Id
}

// Browser is the read-only ESPM access surface (§6): lookup by global id
// across every contributing file (overlay order = file order, later
// files win), per-file id mapping, and spatial record enumeration for
// SpatialGrid's chunk pre-load.
type Browser interface {
	LookupAll(id form.Id) []LookupResult
	GetMapping(fileIdx int) Mapping
	// RecordsAtPos returns, for each file (outer index), every record
	// occupying chunk (cx, cy) of world.
	RecordsAtPos(world form.Id, cx, cy int32) [][]*Record
	FileNames() []string
}

// RadToDeg converts an ESPM rotation (radians) to the in-memory degree
// representation LocationalData stores.
func RadToDeg(v form.Vec3) form.Vec3 {
	const k = 180 / 3.14159265358979323846
	return form.Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

var placeableBaseTypes = map[string]bool{
	"NPC_": true,
	"FURN": true,
	"ACTI": true,
	"DOOR": true,
	"CONT": true,
	"WEAP": true,
	"ARMO": true,
	"ALCH": true,
	"INGR": true,
	"MISC": true,
	"BOOK": true,
	"SCRL": true,
	"AMMO": true,
	"KEYM": true,
	"SLGM": true,
}

var resultItemBaseTypes = map[string]bool{
	"FLOR": true,
	"TREE": true,
}

// isPlaceable reports whether rec's base type is one EspmLazyLoader will
// ever attach (spec §4.5 filter).
func isPlaceable(rec *Record) bool {
	if placeableBaseTypes[rec.BaseType] {
		return true
	}
	return resultItemBaseTypes[rec.BaseType] && rec.ResultItem
}
