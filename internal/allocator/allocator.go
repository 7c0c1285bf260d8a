package allocator

import (
	"context"
	"time"

	"fleet-sched/internal/logging"
	"fleet-sched/internal/observability"
	"fleet-sched/internal/pool"
	"fleet-sched/internal/task"
	"fleet-sched/internal/tracker"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultLargeNodeThreshold is the total capacity above which a node's
	// assignment is split into bounded chunks.
	DefaultLargeNodeThreshold = 1024

	// DefaultMaxUnitsPerChunk bounds a single dispatch on a large node.
	DefaultMaxUnitsPerChunk = 128

	// DefaultChunkDelay spaces out chunk dispatches to the same node.
	DefaultChunkDelay = 50 * time.Millisecond
)

// Dispatch is one execution request sent to a node. Fire-and-forget: the
// scheduler does not await completion within the cycle.
type Dispatch struct {
	NodeID   string
	TargetID string
	Action   task.ActionKind
	Units    int
}

// Dispatcher sends work to nodes. A rejection is returned as an error and
// leaves the task under-assigned.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Dispatch) (handle string, err error)
}

// Options tune one allocation pass. UnitCapacityCost already includes the
// active profile's density multiplier.
type Options struct {
	UnitCapacityCost   float64
	ReservedCapacity   float64
	FallbackNode       string
	LargeNodeThreshold float64
	MaxUnitsPerChunk   int
	ChunkDelay         time.Duration
}

func (o *Options) applyDefaults() {
	if o.UnitCapacityCost <= 0 {
		o.UnitCapacityCost = 1.75
	}
	if o.LargeNodeThreshold <= 0 {
		o.LargeNodeThreshold = DefaultLargeNodeThreshold
	}
	if o.MaxUnitsPerChunk <= 0 {
		o.MaxUnitsPerChunk = DefaultMaxUnitsPerChunk
	}
	// A negative delay disables pacing entirely.
	if o.ChunkDelay == 0 {
		o.ChunkDelay = DefaultChunkDelay
	}
}

// RankedTask pairs a prioritized task with its required units.
type RankedTask struct {
	Task  task.Task
	Units int
}

// Result reports how a task fared in the pass. Partial assignment is
// acceptable; there is no rollback.
type Result struct {
	TargetID    string
	Action      task.ActionKind
	Required    int
	Assigned    int
	Assignments []tracker.Assignment
}

// Allocator greedily assigns node capacity to tasks in priority order:
// owned nodes first, then foreign nodes from the largest size category down,
// then the reserved fallback node.
type Allocator struct {
	dispatcher Dispatcher
	opts       Options
	logger     *logrus.Logger
	now        func() time.Time
}

func New(dispatcher Dispatcher, opts Options) *Allocator {
	opts.applyDefaults()
	return &Allocator{
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logging.GetSchedulerLogger(),
		now:        time.Now,
	}
}

// Allocate runs one bin-packing pass. The pool's capacity accounting is
// mutated optimistically as units are assigned; the next discovery refresh
// reconciles reality.
func (a *Allocator) Allocate(ctx context.Context, tasks []RankedTask, p *pool.Pool) []Result {
	results := make([]Result, 0, len(tasks))

	for _, rt := range tasks {
		if rt.Task.Priority <= 0 {
			continue
		}

		res := Result{
			TargetID: rt.Task.TargetID,
			Action:   rt.Task.Action,
			Required: rt.Units,
		}
		remaining := rt.Units

		// Owned-node pass, in discovery order.
		for _, n := range p.Nodes() {
			if remaining == 0 {
				break
			}
			if n.ID == a.opts.FallbackNode || !n.Owned {
				continue
			}
			a.assignOn(ctx, n, 0, rt.Task, &remaining, &res)
		}

		// Foreign-node pass, largest category first.
		if remaining > 0 {
			for _, cat := range pool.CategoriesLargestFirst() {
				for _, n := range p.ByCategory(cat) {
					if remaining == 0 {
						break
					}
					if n.Owned || n.ID == a.opts.FallbackNode {
						continue
					}
					a.assignOn(ctx, n, 0, rt.Task, &remaining, &res)
				}
			}
		}

		// Fallback pass: the reserved capacity is held back before any
		// units are computed, never dipped into.
		if remaining > 0 && a.opts.FallbackNode != "" {
			if n := p.Get(a.opts.FallbackNode); n != nil {
				a.assignOn(ctx, n, a.opts.ReservedCapacity, rt.Task, &remaining, &res)
			}
		}

		a.logger.WithFields(logrus.Fields{
			"target":   rt.Task.TargetID,
			"action":   rt.Task.Action.String(),
			"required": res.Required,
			"assigned": res.Assigned,
		}).Info("Task allocated")

		observability.UnitsAssigned.WithLabelValues(rt.Task.Action.String()).Add(float64(res.Assigned))
		results = append(results, res)
	}

	return results
}

// assignOn places as many of the remaining units as the node can hold after
// holding back reserve, dispatching in chunks on large nodes.
func (a *Allocator) assignOn(ctx context.Context, n *pool.Node, reserve float64, t task.Task, remaining *int, res *Result) {
	cost := a.opts.UnitCapacityCost
	usable := n.AvailableCapacity() - reserve
	if usable < cost {
		return
	}

	floorUnits := int(usable / cost)
	if floorUnits < 1 {
		return
	}
	units := floorUnits
	if *remaining < units {
		units = *remaining
	}

	chunkSize := units
	if n.TotalCapacity > a.opts.LargeNodeThreshold && a.opts.MaxUnitsPerChunk < chunkSize {
		chunkSize = a.opts.MaxUnitsPerChunk
	}

	for units > 0 {
		chunk := chunkSize
		if units < chunk {
			chunk = units
		}

		handle, err := a.dispatcher.Dispatch(ctx, Dispatch{
			NodeID:   n.ID,
			TargetID: t.TargetID,
			Action:   t.Action,
			Units:    chunk,
		})
		if err != nil {
			// The task stays under-assigned; move on to the next node.
			a.logger.WithFields(logrus.Fields{
				"node":   n.ID,
				"target": t.TargetID,
				"units":  chunk,
			}).WithError(err).Warn("Dispatch rejected")
			observability.DispatchFailures.Inc()
			return
		}

		n.Reserve(float64(chunk) * cost)
		res.Assignments = append(res.Assignments, tracker.Assignment{
			ID:        uuid.NewString(),
			NodeID:    n.ID,
			TargetID:  t.TargetID,
			Action:    t.Action,
			Units:     chunk,
			Timestamp: a.now(),
		})
		res.Assigned += chunk
		*remaining -= chunk
		units -= chunk

		a.logger.WithFields(logrus.Fields{
			"node":   n.ID,
			"target": t.TargetID,
			"units":  chunk,
			"handle": handle,
		}).Debug("Units dispatched")

		if units > 0 && a.opts.ChunkDelay > 0 {
			time.Sleep(a.opts.ChunkDelay)
		}
	}
}
