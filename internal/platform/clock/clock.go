// Package clock provides an injectable time source for deterministic tests.
package clock

import "time"

// Source returns the current time. WorldState and its collaborators take
// a Source instead of calling time.Now directly so tick-driven tests can
// control deadlines precisely, the same seam the teacher project uses for
// domain constructors (see domain.CreateActor's now func() time.Time param).
type Source func() time.Time

// Real returns the system clock.
func Real() Source {
	return time.Now
}

// Fixed returns a Source that always reports t.
func Fixed(t time.Time) Source {
	return func() time.Time { return t }
}
