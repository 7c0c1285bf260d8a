package tracker

import (
	"time"

	"fleet-sched/internal/task"
)

// DefaultStaleWindow is how long an assignment stays tracked without being
// refreshed before the sweep removes it.
const DefaultStaleWindow = 10 * time.Minute

// Assignment records units dispatched to a node for one target action.
// Assignments are only ever appended or removed, never mutated in place.
type Assignment struct {
	ID        string          `json:"id"`
	NodeID    string          `json:"node_id"`
	TargetID  string          `json:"target_id"`
	Action    task.ActionKind `json:"action"`
	Units     int             `json:"units"`
	Timestamp time.Time       `json:"timestamp"`
}

// Tracker stores active assignments keyed by node.
type Tracker struct {
	staleWindow time.Duration
	byNode      map[string][]Assignment
}

func New(staleWindow time.Duration) *Tracker {
	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}
	return &Tracker{
		staleWindow: staleWindow,
		byNode:      make(map[string][]Assignment),
	}
}

// Record appends an assignment to its node group.
func (t *Tracker) Record(a Assignment) {
	t.byNode[a.NodeID] = append(t.byNode[a.NodeID], a)
}

// Sweep removes assignments older than the stale window and drops node
// groups that end up empty. Returns the number of assignments removed.
func (t *Tracker) Sweep(now time.Time) int {
	removed := 0
	for nodeID, assignments := range t.byNode {
		kept := assignments[:0]
		for _, a := range assignments {
			if now.Sub(a.Timestamp) > t.staleWindow {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			delete(t.byNode, nodeID)
			continue
		}
		t.byNode[nodeID] = kept
	}
	return removed
}

// Active returns a copy of all tracked assignments keyed by node.
func (t *Tracker) Active() map[string][]Assignment {
	out := make(map[string][]Assignment, len(t.byNode))
	for nodeID, assignments := range t.byNode {
		out[nodeID] = append([]Assignment(nil), assignments...)
	}
	return out
}

// Count returns the total number of tracked assignments.
func (t *Tracker) Count() int {
	total := 0
	for _, assignments := range t.byNode {
		total += len(assignments)
	}
	return total
}

// Restore replaces the tracked state, used when resuming from a snapshot.
func (t *Tracker) Restore(byNode map[string][]Assignment) {
	t.byNode = make(map[string][]Assignment, len(byNode))
	for nodeID, assignments := range byNode {
		if len(assignments) == 0 {
			continue
		}
		t.byNode[nodeID] = append([]Assignment(nil), assignments...)
	}
}
