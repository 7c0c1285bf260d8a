package scheduler

import (
	"context"
	"fmt"

	"fleet-sched/internal/allocator"
	"fleet-sched/internal/pool"
	"fleet-sched/internal/target"
	"fleet-sched/internal/units"
)

// NodeDiscovery refreshes the capacity pool and carries dispatches to nodes.
// Dispatch is fire-and-forget: the scheduler never awaits completion within
// a cycle.
type NodeDiscovery interface {
	ListNodes(ctx context.Context) ([]pool.Node, error)
	Dispatch(ctx context.Context, d allocator.Dispatch) (handle string, err error)
}

// TargetQuery refreshes target snapshots each cycle.
type TargetQuery interface {
	ListTargets(ctx context.Context) ([]target.Target, error)
}

// MetricSource reads the absolute throughput metric. The value is
// monotonic-ish but may decrease; the monitor computes signed deltas.
type MetricSource interface {
	ReadAbsoluteMetric(ctx context.Context) (float64, error)
}

// Collaborators are the external services the loop consumes. All are
// required; their absence at startup is the only fatal configuration error.
type Collaborators struct {
	Discovery NodeDiscovery
	Targets   TargetQuery
	Models    units.Models
	Metrics   MetricSource
}

func (c Collaborators) validate() error {
	if c.Discovery == nil {
		return fmt.Errorf("node discovery collaborator is required")
	}
	if c.Targets == nil {
		return fmt.Errorf("target query collaborator is required")
	}
	if c.Models == nil {
		return fmt.Errorf("value/extract model collaborator is required")
	}
	if c.Metrics == nil {
		return fmt.Errorf("metric source collaborator is required")
	}
	return nil
}
