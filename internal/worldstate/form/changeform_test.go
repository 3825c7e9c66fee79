package form

import "testing"

func TestLookRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		look Look
	}{
		{
			name: "minimal",
			look: Look{RaceID: 0x13746, IsFemale: true, WeightPct: 50},
		},
		{
			name: "with morphs and tints",
			look: Look{
				RaceID:    0x13746,
				IsFemale:  false,
				WeightPct: 75.5,
				Morphs:    map[string]float32{"nose": 0.3, "jaw": -0.2},
				Tints: []Tint{
					{Texture: "face_base.dds", Color: 0xFFCCAA, Type: 0},
					{Texture: "blush.dds", Color: 0xFF8899, Type: 1},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := LookToJSON(tt.look)
			if err != nil {
				t.Fatalf("LookToJSON: %v", err)
			}
			got, err := LookFromJSON(data)
			if err != nil {
				t.Fatalf("LookFromJSON: %v", err)
			}
			if !got.Equal(tt.look) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.look)
			}
		})
	}
}

func TestChangeFormRoundTrip(t *testing.T) {
	lookJSON, err := LookToJSON(Look{RaceID: 1, IsFemale: true, WeightPct: 10})
	if err != nil {
		t.Fatalf("LookToJSON: %v", err)
	}

	cf := ChangeForm{
		RecType: RecTypeAchr,
		Desc:    Desc{LocalID: 0x123, FileName: "Skyrim.esm"},
		LocationalData: LocationalData{
			Pos:         Vec3{X: 1, Y: 2, Z: 3},
			Rot:         Vec3{X: 0, Y: 0, Z: 90},
			WorldOrCell: 0x3c,
		},
		BaseId:         0x7,
		BaseType:       "NPC_",
		LookJSON:       lookJSON,
		IsRaceMenuOpen: true,
		ProfileId:      5,
	}

	data, err := Encode(cf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.RecType != cf.RecType || got.Desc != cf.Desc || got.LocationalData != cf.LocationalData ||
		got.BaseId != cf.BaseId || got.BaseType != cf.BaseType || string(got.LookJSON) != string(cf.LookJSON) ||
		got.IsRaceMenuOpen != cf.IsRaceMenuOpen || got.ProfileId != cf.ProfileId {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, cf)
	}
}

func TestPatchLookField(t *testing.T) {
	lookJSON, err := LookToJSON(Look{RaceID: 1, WeightPct: 10})
	if err != nil {
		t.Fatalf("LookToJSON: %v", err)
	}

	patched, err := PatchLookField(lookJSON, "weight", 99.5)
	if err != nil {
		t.Fatalf("PatchLookField: %v", err)
	}

	if v := LookField(patched, "weight"); v.Float() != 99.5 {
		t.Errorf("weight = %v, want 99.5", v.Float())
	}
	if v := LookField(patched, "raceId"); v.Int() != 1 {
		t.Errorf("raceId = %v, want 1", v.Int())
	}
}
