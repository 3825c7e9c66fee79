package timer

import (
	"testing"
	"time"

	"github.com/riftworld/worldcore/internal/platform/clock"
)

func TestQueue_ResolvesNoEarlierThanDeadline(t *testing.T) {
	base := time.Unix(1000, 0)
	cur := base
	q := New(func() time.Time { return cur })

	p := q.SetTimer(5 * time.Second)

	q.Tick(base.Add(4 * time.Second))
	if p.Resolved() {
		t.Fatal("promise resolved before its deadline")
	}

	q.Tick(base.Add(5 * time.Second))
	if !p.Resolved() {
		t.Fatal("promise should resolve once now >= enqueue + duration")
	}
}

func TestQueue_DrainsAscendingDeadlineOrder(t *testing.T) {
	base := time.Unix(1000, 0)
	q := New(clock.Fixed(base))

	var order []string
	q.SetTimer(30 * time.Second).Then(func(Void) { order = append(order, "c") })
	q.SetTimer(10 * time.Second).Then(func(Void) { order = append(order, "a") })
	q.SetTimer(20 * time.Second).Then(func(Void) { order = append(order, "b") })

	q.Tick(base.Add(time.Minute))

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestQueue_TiesBreakByEnqueueOrder(t *testing.T) {
	base := time.Unix(1000, 0)
	q := New(clock.Fixed(base))

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.SetTimer(10 * time.Second).Then(func(Void) { order = append(order, i) })
	}

	q.Tick(base.Add(10 * time.Second))

	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending enqueue order 0..4", order)
		}
	}
}

func TestQueue_PartialDrainLeavesRestPending(t *testing.T) {
	base := time.Unix(1000, 0)
	q := New(clock.Fixed(base))

	early := q.SetTimer(1 * time.Second)
	late := q.SetTimer(100 * time.Second)

	q.Tick(base.Add(2 * time.Second))

	if !early.Resolved() {
		t.Fatal("early timer should have resolved")
	}
	if late.Resolved() {
		t.Fatal("late timer should still be pending")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestQueue_ResolveIsIdempotentAcrossTicks(t *testing.T) {
	base := time.Unix(1000, 0)
	q := New(clock.Fixed(base))

	calls := 0
	q.SetTimer(time.Second).Then(func(Void) { calls++ })

	q.Tick(base.Add(5 * time.Second))
	q.Tick(base.Add(6 * time.Second))

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want 1", calls)
	}
}
