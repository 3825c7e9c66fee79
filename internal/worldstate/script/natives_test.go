package script

import (
	"testing"
	"time"

	"github.com/riftworld/worldcore/internal/worldstate/form"
	"github.com/riftworld/worldcore/internal/worldstate/timer"
)

func TestNatives_ActorLookFieldRoundTripsThroughScript(t *testing.T) {
	storage := &fakeStorage{scripts: map[string][]byte{
		"CharGenScript": []byte(`
			function OnUpdate(self)
				Actor.SetLookField(self, "weight", 77)
			end
		`),
	}}
	id := form.Id(0xFF000005)
	look := form.Look{RaceID: 1, WeightPct: 10}
	h := form.NewActor(
		form.ObjectReferenceData{ScriptName: "CharGenScript"},
		form.ActorData{ProfileId: form.UnboundProfileId, Look: &look},
	)
	h.Init(id, false)
	forms := &fakeForms{forms: map[form.Id]*form.Handle{id: h}}
	host := NewHost(storage, forms, &fakeTimers{q: timer.New(func() time.Time { return time.Unix(0, 0) })}, false, nil)

	host.SendPapyrusEvent(id, "OnUpdate", nil)

	got := h.AsActor().Look
	if got == nil || got.WeightPct != 77 {
		t.Fatalf("Look = %+v, want WeightPct 77", got)
	}
	if got.RaceID != 1 {
		t.Fatalf("SetLookField should only touch the patched field, RaceID = %v, want 1", got.RaceID)
	}
}

func TestNatives_ActorGetLookFieldReadsPatchedValue(t *testing.T) {
	storage := &fakeStorage{scripts: map[string][]byte{
		"CharGenScript": []byte(`
			function OnUpdate(self)
				result = Actor.GetLookField(self, "isFemale")
			end
		`),
	}}
	id := form.Id(0xFF000006)
	look := form.Look{RaceID: 3, IsFemale: true}
	h := form.NewActor(
		form.ObjectReferenceData{ScriptName: "CharGenScript"},
		form.ActorData{ProfileId: form.UnboundProfileId, Look: &look},
	)
	h.Init(id, false)
	forms := &fakeForms{forms: map[form.Id]*form.Handle{id: h}}
	host := NewHost(storage, forms, &fakeTimers{q: timer.New(func() time.Time { return time.Unix(0, 0) })}, false, nil)

	host.SendPapyrusEvent(id, "OnUpdate", nil)

	state, err := host.GetVM()
	if err != nil {
		t.Fatalf("GetVM: %v", err)
	}
	state.Global("result")
	if !state.ToBoolean(-1) {
		t.Fatal("GetLookField(isFemale) = false, want true")
	}
}
