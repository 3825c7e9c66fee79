package espm

import (
	"math"
	"testing"

	"github.com/riftworld/worldcore/internal/worldstate/form"
	"github.com/riftworld/worldcore/internal/worldstate/formid"
	"github.com/riftworld/worldcore/internal/worldstate/registry"
)

type fakeBrowser struct {
	byID     map[form.Id][]LookupResult
	mappings map[int]Mapping
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{byID: make(map[form.Id][]LookupResult), mappings: make(map[int]Mapping)}
}

func (b *fakeBrowser) add(fileIdx int, globalID form.Id, rec *Record) {
	b.byID[globalID] = append(b.byID[globalID], LookupResult{Record: rec, FileIdx: fileIdx})
	if _, ok := b.mappings[fileIdx]; !ok {
		b.mappings[fileIdx] = Mapping{FileIdx: fileIdx, ToGlobal: func(local uint32) form.Id {
			return form.Id(uint32(fileIdx)<<24 | local)
		}}
	}
}

func (b *fakeBrowser) LookupAll(id form.Id) []LookupResult { return b.byID[id] }
func (b *fakeBrowser) GetMapping(fileIdx int) Mapping       { return b.mappings[fileIdx] }
func (b *fakeBrowser) RecordsAtPos(world form.Id, cx, cy int32) [][]*Record { return nil }
func (b *fakeBrowser) FileNames() []string                 { return nil }

func newRegistry() *registry.Registry {
	return registry.New(formid.New(64))
}

func TestLoader_AttachesPlaceableDoor(t *testing.T) {
	browser := newFakeBrowser()
	rec := &Record{
		LocalID:          0x10,
		BaseLocalID:      0x20,
		BaseType:         "DOOR",
		HasWorldOrCell:   true,
		WorldOrCellLocal: 0x3c,
		PosRad:           form.Vec3{X: 1, Y: 2, Z: 3},
		RotRad:           form.Vec3{Z: math.Pi},
	}
	browser.add(0, form.Id(0x10), rec)

	reg := newRegistry()
	l := New(browser, reg, NewDeferredChangeForms(), nil)
	reg.AttachLoader(l)

	h, ok := l.LoadForm(form.Id(0x10))
	if !ok {
		t.Fatal("expected DOOR record to attach")
	}
	ref := h.AsObjectReference()
	if ref == nil {
		t.Fatal("attached form should be an ObjectReference")
	}
	if ref.WorldOrCell != form.Id(0x3c) {
		t.Fatalf("WorldOrCell = %s, want 0x3c", ref.WorldOrCell)
	}
	if math.Abs(float64(ref.Rot.Z)-180) > 0.001 {
		t.Fatalf("Rot.Z = %v, want ~180 (radians->degrees)", ref.Rot.Z)
	}
}

func TestLoader_SkipsInitiallyDisabled(t *testing.T) {
	browser := newFakeBrowser()
	browser.add(0, form.Id(0x11), &Record{
		LocalID: 0x11, BaseType: "DOOR", HasWorldOrCell: true,
		Flags: FlagInitiallyDisabled,
	})

	reg := newRegistry()
	l := New(browser, reg, NewDeferredChangeForms(), nil)

	if _, ok := l.LoadForm(form.Id(0x11)); ok {
		t.Fatal("INITIALLY_DISABLED record should not attach")
	}
}

func TestLoader_SkipsNonPlaceableBaseType(t *testing.T) {
	browser := newFakeBrowser()
	browser.add(0, form.Id(0x12), &Record{
		LocalID: 0x12, BaseType: "STAT", HasWorldOrCell: true,
	})

	reg := newRegistry()
	l := New(browser, reg, NewDeferredChangeForms(), nil)

	if _, ok := l.LoadForm(form.Id(0x12)); ok {
		t.Fatal("STAT is not in the placeable base-type set and should not attach")
	}
}

func TestLoader_SkipsEssentialProtectedAndCrimeFactionNPCs(t *testing.T) {
	browser := newFakeBrowser()
	browser.add(0, form.Id(0x13), &Record{
		LocalID: 0x13, BaseType: "NPC_", HasWorldOrCell: true,
		NPC: &NPCBase{Essential: true},
	})
	browser.add(0, form.Id(0x14), &Record{
		LocalID: 0x14, BaseType: "NPC_", HasWorldOrCell: true,
		NPC: &NPCBase{FactionLocalIDs: []uint32{0x953}}, // maps to 0x00000953 != crime factions here
	})

	reg := newRegistry()
	l := New(browser, reg, NewDeferredChangeForms(), nil)

	if _, ok := l.LoadForm(form.Id(0x13)); ok {
		t.Fatal("essential NPC should not attach")
	}
	if _, ok := l.LoadForm(form.Id(0x14)); !ok {
		t.Fatal("NPC with an unrelated faction should attach")
	}
}

func TestLoader_OverlaySemanticsUpdateLocationalDataOnSecondFile(t *testing.T) {
	browser := newFakeBrowser()
	browser.mappings[0] = Mapping{FileIdx: 0, ToGlobal: func(local uint32) form.Id { return form.Id(local) }}
	browser.mappings[1] = Mapping{FileIdx: 1, ToGlobal: func(local uint32) form.Id { return form.Id(local) }}

	id := form.Id(0x20)
	browser.byID[id] = []LookupResult{
		{FileIdx: 0, Record: &Record{LocalID: 0x20, BaseType: "DOOR", HasWorldOrCell: true, WorldOrCellLocal: 0x3c, PosRad: form.Vec3{X: 1}}},
		{FileIdx: 1, Record: &Record{LocalID: 0x20, BaseType: "DOOR", HasWorldOrCell: true, WorldOrCellLocal: 0x3c, PosRad: form.Vec3{X: 99}}},
	}

	reg := newRegistry()
	l := New(browser, reg, NewDeferredChangeForms(), nil)

	h, ok := l.LoadForm(id)
	if !ok {
		t.Fatal("expected attach")
	}
	if h.AsObjectReference().Pos.X != 99 {
		t.Fatalf("Pos.X = %v, want 99 (later file's overlay wins)", h.AsObjectReference().Pos.X)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry should hold exactly one form across both overlay hits, got %d", reg.Len())
	}
}

func TestLoader_ReplaysDeferredChangeFormOnLoad(t *testing.T) {
	browser := newFakeBrowser()
	browser.add(0, form.Id(0x30), &Record{
		LocalID: 0x30, BaseType: "DOOR", HasWorldOrCell: true, WorldOrCellLocal: 0x3c,
	})

	deferred := NewDeferredChangeForms()
	deferred.Push(form.Id(0x30), form.ChangeForm{
		RecType:        form.RecTypeRefr,
		LocationalData: form.LocationalData{Pos: form.Vec3{X: 42}, WorldOrCell: 0x3c},
	})

	reg := newRegistry()
	l := New(browser, reg, deferred, nil)

	h, ok := l.LoadForm(form.Id(0x30))
	if !ok {
		t.Fatal("expected attach")
	}
	if h.AsObjectReference().Pos.X != 42 {
		t.Fatalf("Pos.X = %v, want 42 (deferred change form replayed)", h.AsObjectReference().Pos.X)
	}
	if deferred.Len() != 0 {
		t.Fatal("deferred entry should be consumed exactly once")
	}
}
