package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/riftworld/worldcore/internal/worldstate/form"
)

func TestStore_UpsertThenLoadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldcore.db")
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	cf := form.ChangeForm{
		RecType:        form.RecTypeRefr,
		Desc:           form.Desc{LocalID: 1, FileName: "Skyrim.esm"},
		LocationalData: form.LocationalData{Pos: form.Vec3{X: 1, Y: 2, Z: 3}, WorldOrCell: 0x3c},
		BaseId:         0x7,
		BaseType:       "DOOR",
	}

	done := make(chan struct{})
	store.Upsert([]form.ChangeForm{cf}, func() { close(done) })

	deadline := time.After(5 * time.Second)
	for {
		store.Tick()
		select {
		case <-done:
		case <-deadline:
			t.Fatal("upsert completion never arrived")
		default:
			time.Sleep(time.Millisecond)
			continue
		}
		break
	}

	got, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Desc != cf.Desc || got[0].BaseId != cf.BaseId {
		t.Fatalf("got = %+v, want matching %+v", got[0], cf)
	}
}

func TestStore_RefusesConcurrentUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldcore.db")
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	store.Upsert(nil, func() {})
	if !store.inFlight {
		t.Fatal("expected inFlight to be set immediately on Upsert")
	}
	// A second call while one is in flight is a caller bug (I8); the
	// store logs and refuses rather than corrupting state.
	store.Upsert(nil, func() {})
}
