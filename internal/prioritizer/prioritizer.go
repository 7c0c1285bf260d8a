package prioritizer

import (
	"sort"

	"fleet-sched/internal/target"
	"fleet-sched/internal/task"
)

// profitabilityScale normalizes profitability scores to the scale of the
// other priority terms.
const profitabilityScale = 1000

// Thresholds are the tuning parameters the ranking depends on. They are the
// base config merged with the active strategy overrides, computed once per
// cycle.
type Thresholds struct {
	// ValueFraction is the fraction of max value a target must hold before
	// it is considered ready for extraction. In (0, 1].
	ValueFraction float64

	// DefenseMargin is how far above its floor a target's defense may drift
	// before suppression takes precedence.
	DefenseMargin float64

	// TopTargets restricts ranking to the N most profitable targets when
	// positive. Zero means no restriction.
	TopTargets int
}

// Rank decides the action each target needs and returns one task per target,
// sorted by descending priority. The sort is stable so equal priorities keep
// target order. Input snapshots are not mutated.
func Rank(targets []target.Target, th Thresholds) []task.Task {
	eligible := targets
	if th.TopTargets > 0 && len(targets) > th.TopTargets {
		eligible = topByProfitability(targets, th.TopTargets)
	}

	tasks := make([]task.Task, 0, len(eligible))
	for _, t := range eligible {
		action, priority := classify(t, th)
		tasks = append(tasks, task.Task{
			TargetID:           t.ID,
			Action:             action,
			Priority:           priority * t.ProfitabilityScore / profitabilityScale,
			CurrentValue:       t.CurrentValue,
			MaxValue:           t.MaxValue,
			CurrentDefense:     t.CurrentDefense,
			MinDefense:         t.MinDefense,
			ProfitabilityScore: t.ProfitabilityScore,
		})
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority > tasks[j].Priority
	})

	return tasks
}

// classify applies the strict precedence rule: suppress before replenish
// before extract.
func classify(t target.Target, th Thresholds) (task.ActionKind, float64) {
	if t.CurrentDefense > t.MinDefense+th.DefenseMargin {
		// Rewards targets closest to their defense floor.
		priority := 1.0
		if t.CurrentDefense > 0 {
			priority = 1 - (t.CurrentDefense-t.MinDefense)/(2*t.CurrentDefense)
		}
		return task.ActionSuppress, priority
	}

	goal := t.MaxValue * th.ValueFraction
	if t.CurrentValue < goal {
		// Rewards targets already closer to the goal.
		priority := 0.0
		if goal > 0 {
			priority = t.CurrentValue / goal
		}
		return task.ActionReplenish, priority
	}

	// Rewards high value, low latency.
	extractTime := t.ExtractTime
	if extractTime <= 0 {
		extractTime = 1
	}
	return task.ActionExtract, (t.MaxValue / extractTime) / 1e8
}

// topByProfitability returns the n most profitable targets, preserving the
// original order among the selected.
func topByProfitability(targets []target.Target, n int) []target.Target {
	type indexed struct {
		idx int
		t   target.Target
	}
	ranked := make([]indexed, len(targets))
	for i, t := range targets {
		ranked[i] = indexed{idx: i, t: t}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].t.ProfitabilityScore > ranked[j].t.ProfitabilityScore
	})
	ranked = ranked[:n]
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].idx < ranked[j].idx
	})

	out := make([]target.Target, 0, n)
	for _, r := range ranked {
		out = append(out, r.t)
	}
	return out
}
