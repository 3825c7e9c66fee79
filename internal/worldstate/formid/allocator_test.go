package formid

import "testing"

func TestAllocator_CreateUnique(t *testing.T) {
	a := New(4)
	seen := map[uint32]bool{}
	for i := 0; i < 4; i++ {
		idx, ok := a.Create()
		if !ok {
			t.Fatalf("Create() #%d: exhausted early", i)
		}
		if seen[idx] {
			t.Fatalf("Create() returned duplicate index %d", idx)
		}
		seen[idx] = true
	}

	if _, ok := a.Create(); ok {
		t.Fatal("Create() should fail once pool is exhausted")
	}
}

func TestAllocator_ReleaseAndReuse(t *testing.T) {
	a := New(2)

	idx0, ok := a.Create()
	if !ok {
		t.Fatal("Create() #0 failed")
	}
	idx1, ok := a.Create()
	if !ok {
		t.Fatal("Create() #1 failed")
	}
	if idx0 == idx1 {
		t.Fatal("two live indices must not collide")
	}

	a.Release(idx0)
	if got := a.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}

	reused, ok := a.Create()
	if !ok {
		t.Fatal("Create() after release should succeed")
	}
	if reused != idx0 {
		t.Fatalf("expected released index %d to be reused, got %d", idx0, reused)
	}
	if got := a.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func TestAllocator_Cap(t *testing.T) {
	a := New(10)
	if got := a.Cap(); got != 10 {
		t.Fatalf("Cap() = %d, want 10", got)
	}
}
