// Package timer implements C2: a monotonic-deadline, min-ordered queue of
// promises resolved at tick time.
package timer

import (
	"sort"
	"time"

	"github.com/riftworld/worldcore/internal/platform/clock"
)

// Void is the resolution value of a plain delay timer.
type Void = struct{}

type entry struct {
	deadline time.Time
	seq      uint64 // enqueue order, used to break deadline ties (I5)
	promise  *Promise[Void]
}

// Queue holds (deadline, promise) entries and resolves them in ascending
// deadline order as now advances (spec §4.2).
//
// SetTimer inserts at the front of the backing slice, matching the
// source's cheap-insert/amortized-resort strategy: a new entry is only
// guaranteed to be the earliest if it's the first in front; anything that
// makes the queue non-ascending is deferred to a single sort right before
// the next drain, rather than re-sorting on every insert.
type Queue struct {
	now     clock.Source
	entries []entry
	seqNext uint64
	dirty   bool
}

// New returns an empty Queue that reads the current time from now.
func New(now clock.Source) *Queue {
	return &Queue{now: now}
}

// SetTimer schedules a promise to resolve no earlier than d from now.
func (q *Queue) SetTimer(d time.Duration) *Promise[Void] {
	deadline := q.now().Add(d)
	p := NewPromise[Void]()

	var earliestBefore time.Time
	hadEntries := len(q.entries) > 0
	if hadEntries {
		earliestBefore = q.entries[0].deadline
	}

	e := entry{deadline: deadline, seq: q.seqNext, promise: p}
	q.seqNext++
	q.entries = append([]entry{e}, q.entries...)

	// An equal deadline also needs the resort: the front-inserted entry has
	// the newer seq, so leaving it first would break the enqueue-order tie.
	if hadEntries && !deadline.Before(earliestBefore) {
		q.dirty = true
	}
	return p
}

// Len reports the number of entries still pending resolution.
func (q *Queue) Len() int { return len(q.entries) }

// Tick drains the prefix with deadline <= now in ascending deadline order,
// ties broken by enqueue order, and resolves each promise exactly once
// (invariant I5; property P6). Resolution callbacks may enqueue further
// timers; those are never drained within this same Tick call since they
// are inserted after the already-computed due prefix is sliced off.
func (q *Queue) Tick(now time.Time) {
	if q.dirty {
		q.sort()
	}

	due := 0
	for due < len(q.entries) && !q.entries[due].deadline.After(now) {
		due++
	}
	if due == 0 {
		return
	}

	toResolve := q.entries[:due]
	q.entries = q.entries[due:]

	for i := range toResolve {
		toResolve[i].promise.resolve(Void{})
	}
}

func (q *Queue) sort() {
	sort.Slice(q.entries, func(i, j int) bool {
		if q.entries[i].deadline.Equal(q.entries[j].deadline) {
			return q.entries[i].seq < q.entries[j].seq
		}
		return q.entries[i].deadline.Before(q.entries[j].deadline)
	})
	q.dirty = false
}
