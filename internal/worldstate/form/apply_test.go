package form

import "testing"

func TestApplyChangeForm_ActorRoundTripsThroughSnapshot(t *testing.T) {
	h := NewActor(ObjectReferenceData{BaseType: "NPC_"}, ActorData{})
	h.Init(0xFF000001, false)

	look := Look{RaceID: 5, IsFemale: true, WeightPct: 42}
	lookJSON, err := LookToJSON(look)
	if err != nil {
		t.Fatalf("LookToJSON: %v", err)
	}

	cf := ChangeForm{
		RecType:        RecTypeAchr,
		LocationalData: LocationalData{Pos: Vec3{X: 1, Y: 2, Z: 3}, WorldOrCell: 0x3c},
		BaseId:         0x7,
		BaseType:       "NPC_",
		LookJSON:       lookJSON,
		IsRaceMenuOpen: true,
		ProfileId:      2,
	}

	if err := ApplyChangeForm(h, cf); err != nil {
		t.Fatalf("ApplyChangeForm: %v", err)
	}

	snap, err := Snapshot(h, h.Id(), Desc{LocalID: 1, FileName: "Skyrim.esm"})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.LocationalData != cf.LocationalData || snap.BaseId != cf.BaseId {
		t.Fatalf("snapshot locational/base mismatch: got %+v", snap)
	}
	if !snap.IsRaceMenuOpen || snap.ProfileId != 2 {
		t.Fatalf("snapshot actor fields mismatch: got %+v", snap)
	}

	gotLook, err := LookFromJSON(snap.LookJSON)
	if err != nil {
		t.Fatalf("LookFromJSON: %v", err)
	}
	if !gotLook.Equal(look) {
		t.Fatalf("round-tripped look = %+v, want %+v", gotLook, look)
	}
}

func TestApplyChangeForm_RejectsNonObjectReference(t *testing.T) {
	h := NewGeneric()
	h.Init(1, false)
	if err := ApplyChangeForm(h, ChangeForm{}); err == nil {
		t.Fatal("expected error applying a change form to a generic form")
	}
}
