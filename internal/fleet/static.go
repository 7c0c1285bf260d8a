package fleet

import (
	"context"
	"fmt"
	"math"
	"sync"

	"fleet-sched/internal/allocator"
	"fleet-sched/internal/config"
	"fleet-sched/internal/logging"
	"fleet-sched/internal/pool"
	"fleet-sched/internal/target"
	"fleet-sched/internal/task"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Per-unit effect constants for the built-in models.
const (
	defenseReductionPerUnit = 0.05
	growthFactorPerUnit     = 1.02
	extractFractionPerUnit  = 0.002
	replenishHardening      = 0.004
	extractHardening        = 0.002
)

// Static serves the collaborator contracts from a config-declared fleet.
// Dispatches mutate the simulated targets so multi-cycle runs are
// self-consistent: suppression lowers defense, replenishment grows value and
// hardens defense slightly, extraction moves value into the earned metric.
type Static struct {
	mu      sync.Mutex
	nodes   []pool.Node
	targets map[string]*target.Target
	order   []string
	earned  float64
	logger  *logrus.Logger
}

func NewStatic(cfg config.FleetConfig) (*Static, error) {
	s := &Static{
		targets: make(map[string]*target.Target, len(cfg.Targets)),
		logger:  logging.GetLogger(),
	}

	for _, n := range cfg.Nodes {
		s.nodes = append(s.nodes, pool.Node{
			ID:            n.ID,
			TotalCapacity: n.TotalCapacity,
			UsedCapacity:  n.UsedCapacity,
			Owned:         n.Owned,
		})
	}

	for _, tc := range cfg.Targets {
		t := &target.Target{
			ID:                 tc.ID,
			CurrentValue:       tc.CurrentValue,
			MaxValue:           tc.MaxValue,
			CurrentDefense:     tc.CurrentDefense,
			MinDefense:         tc.MinDefense,
			ProfitabilityScore: tc.ProfitabilityScore,
			SuppressTime:       tc.SuppressTimeS,
			ReplenishTime:      tc.ReplenishTimeS,
			ExtractTime:        tc.ExtractTimeS,
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		s.targets[t.ID] = t
		s.order = append(s.order, t.ID)
	}

	return s, nil
}

// ListNodes returns the declared fleet in declaration order.
func (s *Static) ListNodes(ctx context.Context) ([]pool.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pool.Node(nil), s.nodes...), nil
}

// ListTargets returns snapshots of the simulated targets.
func (s *Static) ListTargets(ctx context.Context) ([]target.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]target.Target, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.targets[id])
	}
	return out, nil
}

// Dispatch applies the action's effect to the simulated target and returns
// an execution handle.
func (s *Static) Dispatch(ctx context.Context, d allocator.Dispatch) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[d.TargetID]
	if !ok {
		return "", fmt.Errorf("unknown target %s", d.TargetID)
	}
	if d.Units < 1 {
		return "", fmt.Errorf("dispatch of %d units rejected", d.Units)
	}
	units := float64(d.Units)

	switch d.Action {
	case task.ActionSuppress:
		t.CurrentDefense -= units * defenseReductionPerUnit
		if t.CurrentDefense < t.MinDefense {
			t.CurrentDefense = t.MinDefense
		}
	case task.ActionReplenish:
		t.CurrentValue *= math.Pow(growthFactorPerUnit, units)
		if t.CurrentValue > t.MaxValue {
			t.CurrentValue = t.MaxValue
		}
		t.CurrentDefense += units * replenishHardening
	case task.ActionExtract:
		extracted := t.CurrentValue * extractFractionPerUnit * units
		if extracted > t.CurrentValue {
			extracted = t.CurrentValue
		}
		t.CurrentValue -= extracted
		t.CurrentDefense += units * extractHardening
		s.earned += extracted
	}

	handle := uuid.NewString()
	s.logger.WithFields(logrus.Fields{
		"node":   d.NodeID,
		"target": d.TargetID,
		"action": d.Action.String(),
		"units":  d.Units,
		"handle": handle,
	}).Debug("Dispatch applied")

	return handle, nil
}

// GrowthUnits returns the units needed to multiply a target's value by the
// given factor, assuming compounding per-unit growth. Invalid factors yield
// a non-finite result for the caller to clamp.
func (s *Static) GrowthUnits(targetID string, factor float64) float64 {
	if factor <= 0 {
		return math.NaN()
	}
	if factor <= 1 {
		return 0
	}
	return math.Log(factor) / math.Log(growthFactorPerUnit)
}

// ExtractUnits returns the units needed to extract the given absolute
// amount. A drained target yields a non-finite result for the caller to
// clamp.
func (s *Static) ExtractUnits(targetID string, amount float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[targetID]
	if !ok || t.CurrentValue <= 0 {
		return math.NaN()
	}
	return amount / (t.CurrentValue * extractFractionPerUnit)
}

// ReadAbsoluteMetric returns the cumulative extracted value.
func (s *Static) ReadAbsoluteMetric(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.earned, nil
}
