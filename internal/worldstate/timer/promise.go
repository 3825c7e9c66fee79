package timer

import "github.com/google/uuid"

// Promise is a minimal single-producer future: a value cell with a
// continuation list, resolved exactly once on the tick thread (spec §9).
// No thread-safety primitives are needed because resolution is
// tick-serialized by TimerQueue.Tick.
//
// Promise carries a uuid identity (rather than a reused integer handle) so
// that script-visible stack ids and promise identities never collide
// across VM restarts — see ScriptVmHost.SendPapyrusEvent.
type Promise[T any] struct {
	id        uuid.UUID
	resolved  bool
	value     T
	callbacks []func(T)
}

// NewPromise returns an unresolved Promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{id: uuid.New()}
}

// ID returns the promise's stable identity.
func (p *Promise[T]) ID() uuid.UUID { return p.id }

// Then registers a continuation. If the promise is already resolved, fn
// runs immediately with the stored value.
func (p *Promise[T]) Then(fn func(T)) {
	if p.resolved {
		fn(p.value)
		return
	}
	p.callbacks = append(p.callbacks, fn)
}

// Resolved reports whether the promise has been resolved.
func (p *Promise[T]) Resolved() bool { return p.resolved }

// resolve fulfils the promise exactly once; subsequent calls are no-ops.
// Called only by TimerQueue.Tick.
func (p *Promise[T]) resolve(value T) {
	if p.resolved {
		return
	}
	p.resolved = true
	p.value = value
	callbacks := p.callbacks
	p.callbacks = nil
	for _, cb := range callbacks {
		cb(value)
	}
}
