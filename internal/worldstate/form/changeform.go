package form

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChangeForm is a serializable snapshot of one ObjectReference/Actor,
// tagged by RecType, keyed by its Desc — the unit of persistence (spec §3).
type ChangeForm struct {
	RecType RecType
	Desc    Desc
	FormID  Id // the form's global id at snapshot time, dynamic or persistent

	LocationalData LocationalData
	BaseId         Id
	BaseType       string

	LookJSON      []byte // raw JSON, present only for ACHR
	EquipmentJSON []byte // raw JSON, present only for ACHR
	IsRaceMenuOpen bool
	ProfileId      int32
}

// changeFormWire is the CBOR wire shape for ChangeForm. ChangeForm itself
// keeps []byte fields for Look/Equipment so callers can patch them with
// gjson/sjson without a full unmarshal; changeFormWire is what actually
// gets CBOR-encoded for save storage.
type changeFormWire struct {
	RecType        string
	FileName       string
	LocalID        uint32
	FormID         Id
	Pos            Vec3
	Rot            Vec3
	WorldOrCell    Id
	BaseId         Id
	BaseType       string
	LookJSON       []byte
	EquipmentJSON  []byte
	IsRaceMenuOpen bool
	ProfileId      int32
}

// Encode serializes cf to CBOR for handoff to save storage. CBOR is used
// instead of JSON because ChangeForm is written every tick a dirty form is
// drained; a compact binary envelope keeps upsert batches small.
func Encode(cf ChangeForm) ([]byte, error) {
	wire := changeFormWire{
		RecType:        string(cf.RecType),
		FileName:       cf.Desc.FileName,
		LocalID:        cf.Desc.LocalID,
		FormID:         cf.FormID,
		Pos:            cf.LocationalData.Pos,
		Rot:            cf.LocationalData.Rot,
		WorldOrCell:    cf.LocationalData.WorldOrCell,
		BaseId:         cf.BaseId,
		BaseType:       cf.BaseType,
		LookJSON:       cf.LookJSON,
		EquipmentJSON:  cf.EquipmentJSON,
		IsRaceMenuOpen: cf.IsRaceMenuOpen,
		ProfileId:      cf.ProfileId,
	}
	data, err := cbor.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal change form: %w", err)
	}
	return data, nil
}

// Decode deserializes a ChangeForm previously produced by Encode.
func Decode(data []byte) (ChangeForm, error) {
	var wire changeFormWire
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return ChangeForm{}, fmt.Errorf("cbor unmarshal change form: %w", err)
	}
	rt := RecType(wire.RecType)
	if rt != RecTypeRefr && rt != RecTypeAchr {
		return ChangeForm{}, fmt.Errorf("unknown change form rec_type %q", wire.RecType)
	}
	return ChangeForm{
		RecType:        rt,
		Desc:           Desc{LocalID: wire.LocalID, FileName: wire.FileName},
		FormID:         wire.FormID,
		LocationalData: LocationalData{Pos: wire.Pos, Rot: wire.Rot, WorldOrCell: wire.WorldOrCell},
		BaseId:         wire.BaseId,
		BaseType:       wire.BaseType,
		LookJSON:       wire.LookJSON,
		EquipmentJSON:  wire.EquipmentJSON,
		IsRaceMenuOpen: wire.IsRaceMenuOpen,
		ProfileId:      wire.ProfileId,
	}, nil
}

// LookToJSON marshals a Look to JSON for storage in a ChangeForm.
func LookToJSON(l Look) ([]byte, error) {
	return json.Marshal(l)
}

// LookFromJSON unmarshals a Look previously produced by LookToJSON.
func LookFromJSON(data []byte) (Look, error) {
	var l Look
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l); err != nil {
		return Look{}, fmt.Errorf("unmarshal look: %w", err)
	}
	return l, nil
}

// PatchLookField rewrites a single dotted field path inside a Look's raw
// JSON without a full unmarshal/marshal round-trip, the way script natives
// patch one look attribute at a time (internal/worldstate/script).
func PatchLookField(lookJSON []byte, path string, value any) ([]byte, error) {
	if len(lookJSON) == 0 {
		lookJSON = []byte(`{}`)
	}
	out, err := sjson.SetBytes(lookJSON, path, value)
	if err != nil {
		return nil, fmt.Errorf("patch look field %q: %w", path, err)
	}
	return out, nil
}

// LookField reads a single dotted field path out of a Look's raw JSON.
func LookField(lookJSON []byte, path string) gjson.Result {
	return gjson.GetBytes(lookJSON, path)
}
