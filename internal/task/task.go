package task

import (
	"encoding/json"
	"fmt"
)

// ActionKind is the operation a target currently needs. The three kinds are
// mutually exclusive per target per cycle.
type ActionKind int

const (
	ActionSuppress ActionKind = iota
	ActionReplenish
	ActionExtract
)

func (k ActionKind) String() string {
	switch k {
	case ActionSuppress:
		return "suppress"
	case ActionReplenish:
		return "replenish"
	case ActionExtract:
		return "extract"
	default:
		return "unknown"
	}
}

func ParseAction(s string) (ActionKind, error) {
	switch s {
	case "suppress":
		return ActionSuppress, nil
	case "replenish":
		return ActionReplenish, nil
	case "extract":
		return ActionExtract, nil
	default:
		return 0, fmt.Errorf("unknown action kind %q", s)
	}
}

func (k ActionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ActionKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Task is one cycle's work item for a single target. Created fresh each cycle
// by the prioritizer and consumed by the allocator. The target fields used to
// derive the priority are snapshotted so the unit calculator does not have to
// re-query target state.
type Task struct {
	TargetID string
	Action   ActionKind
	Priority float64

	CurrentValue       float64
	MaxValue           float64
	CurrentDefense     float64
	MinDefense         float64
	ProfitabilityScore float64
}
