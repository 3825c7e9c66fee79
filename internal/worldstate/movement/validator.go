// Package movement implements C7: a pure predicate over (current state,
// proposed state) producing accept or teleport-back.
package movement

import (
	"math"

	"github.com/riftworld/worldcore/internal/worldstate/form"
)

// MaxDisplacement is the per-tick max straight-line displacement (units);
// distances at or above this are rejected (spec §9 open question (c):
// the source uses >=, not strict-greater — kept).
const MaxDisplacement = 4096.0

// Reason tags why a verdict rejected a move, for the telemetry counters
// described in SPEC_FULL §3.
type Reason string

const (
	ReasonAccepted    Reason = ""
	ReasonCellChanged Reason = "cellChanged"
	ReasonDistance    Reason = "distance"
)

// Verdict is Validate's result: whether the move is accepted, and if not,
// why — used both to pick the teleport message (§6) and to drive the
// per-reason telemetry counters (P5).
type Verdict struct {
	Accepted bool
	Reason   Reason
}

// Validate reports whether a client-submitted (newPos, newCell) is
// accepted against current. Rejection happens iff newCell differs from
// current.WorldOrCell or the straight-line distance from current.Pos to
// newPos is >= MaxDisplacement (P5).
func Validate(current form.LocationalData, newPos form.Vec3, newCell form.Id) Verdict {
	if newCell != current.WorldOrCell {
		return Verdict{Accepted: false, Reason: ReasonCellChanged}
	}
	if distance(current.Pos, newPos) >= MaxDisplacement {
		return Verdict{Accepted: false, Reason: ReasonDistance}
	}
	return Verdict{Accepted: true}
}

func distance(a, b form.Vec3) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
