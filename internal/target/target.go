package target

import "fmt"

// Target is a snapshot of a remote target's state. Refreshed from the target
// query service each cycle and read-only within a cycle.
type Target struct {
	ID                 string  `json:"id"`
	CurrentValue       float64 `json:"current_value"`
	MaxValue           float64 `json:"max_value"`
	CurrentDefense     float64 `json:"current_defense"`
	MinDefense         float64 `json:"min_defense"`
	ProfitabilityScore float64 `json:"profitability_score"`

	// Timing constants, one per action kind, in seconds.
	SuppressTime  float64 `json:"suppress_time"`
	ReplenishTime float64 `json:"replenish_time"`
	ExtractTime   float64 `json:"extract_time"`
}

// Validate checks the snapshot invariants.
func (t *Target) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("target id is required")
	}
	if t.CurrentValue < 0 || t.CurrentValue > t.MaxValue {
		return fmt.Errorf("target %s: current value %.2f outside [0, %.2f]", t.ID, t.CurrentValue, t.MaxValue)
	}
	if t.CurrentDefense < t.MinDefense {
		return fmt.Errorf("target %s: current defense %.2f below floor %.2f", t.ID, t.CurrentDefense, t.MinDefense)
	}
	return nil
}
