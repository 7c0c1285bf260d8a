package units

import (
	"math"

	"fleet-sched/internal/task"
)

// UnitDefenseReduction is the defense removed by one suppress unit.
const UnitDefenseReduction = 0.05

// Models maps desired target deltas to required units. Supplied by the
// external value/extract model collaborator; may return non-finite values for
// invalid input, which the calculator clamps.
type Models interface {
	// GrowthUnits returns the units needed to multiply a target's value by
	// the given factor.
	GrowthUnits(targetID string, factor float64) float64

	// ExtractUnits returns the units needed to extract the given absolute
	// amount from a target.
	ExtractUnits(targetID string, amount float64) float64
}

// Params are the tuning parameters the calculator depends on, derived from
// base config plus the active strategy overrides.
type Params struct {
	ValueFraction   float64
	ExtractFraction float64
}

// Required computes the integer units the task needs this cycle. It never
// returns less than 1 and never fails: a model that cannot produce a finite
// answer is clamped rather than allowed to block the cycle.
func Required(t task.Task, m Models, p Params) int {
	switch t.Action {
	case task.ActionSuppress:
		excess := t.CurrentDefense - t.MinDefense
		units := int(math.Ceil(excess / UnitDefenseReduction))
		return atLeastOne(units)

	case task.ActionReplenish:
		goal := t.MaxValue * p.ValueFraction
		base := math.Max(t.CurrentValue, 1)
		raw := m.GrowthUnits(t.TargetID, goal/base)
		if !isFinite(raw) {
			return 1
		}
		return atLeastOne(int(math.Ceil(raw)))

	case task.ActionExtract:
		amount := t.CurrentValue * p.ExtractFraction
		raw := m.ExtractUnits(t.TargetID, amount)
		if !isFinite(raw) || raw < 1 {
			return 1
		}
		return int(math.Floor(raw))

	default:
		return 1
	}
}

func atLeastOne(units int) int {
	if units < 1 {
		return 1
	}
	return units
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
