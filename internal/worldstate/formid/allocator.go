// Package formid implements C1: a dense integer index reuse pool for forms
// that need O(1) array lookup (FormRegistry.byIndex).
package formid

// Allocator issues unique small integers from [0, max) and reclaims them on
// release. It guarantees no two live holders ever see the same index.
type Allocator struct {
	max    uint32
	free   []uint32 // stack of released indices, most-recently-freed first
	next   uint32   // smallest index never yet handed out
	inUse  uint32   // count of currently-live indices, for Len/IsExhausted
}

// New returns an Allocator that can hand out indices in [0, max).
func New(max uint32) *Allocator {
	return &Allocator{max: max}
}

// Create returns the next free index, or (0, false) if the pool is exhausted.
func (a *Allocator) Create() (uint32, bool) {
	if len(a.free) > 0 {
		idx := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		a.inUse++
		return idx, true
	}
	if a.next >= a.max {
		return 0, false
	}
	idx := a.next
	a.next++
	a.inUse++
	return idx, true
}

// Release returns idx to the pool so a future Create may reuse it.
func (a *Allocator) Release(idx uint32) {
	if a.inUse == 0 {
		return
	}
	a.free = append(a.free, idx)
	a.inUse--
}

// Len reports the number of currently-live indices.
func (a *Allocator) Len() int { return int(a.inUse) }

// Cap reports the maximum number of simultaneously-live indices this
// allocator supports.
func (a *Allocator) Cap() uint32 { return a.max }
