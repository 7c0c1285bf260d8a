package fleet

import (
	"context"
	"math"
	"testing"

	"fleet-sched/internal/allocator"
	"fleet-sched/internal/config"
	"fleet-sched/internal/task"
)

func newTestFleet(t *testing.T) *Static {
	t.Helper()
	s, err := NewStatic(config.FleetConfig{
		Nodes: []config.NodeConfig{
			{ID: "n1", TotalCapacity: 100, Owned: true},
			{ID: "n2", TotalCapacity: 50},
		},
		Targets: []config.TargetConfig{{
			ID:                 "t1",
			CurrentValue:       1000,
			MaxValue:           10000,
			CurrentDefense:     5,
			MinDefense:         1,
			ProfitabilityScore: 900,
			ExtractTimeS:       20,
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestStatic_ListNodesInDeclarationOrder(t *testing.T) {
	s := newTestFleet(t)
	nodes, err := s.ListNodes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 2 || nodes[0].ID != "n1" || nodes[1].ID != "n2" {
		t.Fatalf("declaration order not preserved: %+v", nodes)
	}
}

func TestStatic_RejectsInvalidTarget(t *testing.T) {
	_, err := NewStatic(config.FleetConfig{
		Targets: []config.TargetConfig{{
			ID: "bad", CurrentValue: 200, MaxValue: 100,
		}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestStatic_SuppressLowersDefenseToFloor(t *testing.T) {
	s := newTestFleet(t)
	// 100 units * 0.05 = 5 reduction, clamped at the floor of 1.
	_, err := s.Dispatch(context.Background(), allocator.Dispatch{
		NodeID: "n1", TargetID: "t1", Action: task.ActionSuppress, Units: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	targets, _ := s.ListTargets(context.Background())
	if targets[0].CurrentDefense != 1 {
		t.Fatalf("got defense %v, want floor of 1", targets[0].CurrentDefense)
	}
}

func TestStatic_ReplenishGrowsValueAndHardens(t *testing.T) {
	s := newTestFleet(t)
	_, err := s.Dispatch(context.Background(), allocator.Dispatch{
		NodeID: "n1", TargetID: "t1", Action: task.ActionReplenish, Units: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	targets, _ := s.ListTargets(context.Background())
	want := 1000 * math.Pow(1.02, 10)
	if math.Abs(targets[0].CurrentValue-want) > 1e-6 {
		t.Fatalf("got value %v, want %v", targets[0].CurrentValue, want)
	}
	if targets[0].CurrentDefense <= 5 {
		t.Fatalf("replenish did not harden defense: %v", targets[0].CurrentDefense)
	}
}

func TestStatic_ExtractMovesValueToEarnings(t *testing.T) {
	s := newTestFleet(t)
	_, err := s.Dispatch(context.Background(), allocator.Dispatch{
		NodeID: "n1", TargetID: "t1", Action: task.ActionExtract, Units: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 1000 * 0.002 * 50 = 100
	earned, _ := s.ReadAbsoluteMetric(context.Background())
	if earned != 100 {
		t.Fatalf("got earned %v, want 100", earned)
	}
	targets, _ := s.ListTargets(context.Background())
	if targets[0].CurrentValue != 900 {
		t.Fatalf("got value %v, want 900", targets[0].CurrentValue)
	}
}

func TestStatic_DispatchRejectsUnknownTarget(t *testing.T) {
	s := newTestFleet(t)
	if _, err := s.Dispatch(context.Background(), allocator.Dispatch{
		NodeID: "n1", TargetID: "nope", Action: task.ActionSuppress, Units: 1,
	}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStatic_DispatchRejectsZeroUnits(t *testing.T) {
	s := newTestFleet(t)
	if _, err := s.Dispatch(context.Background(), allocator.Dispatch{
		NodeID: "n1", TargetID: "t1", Action: task.ActionSuppress, Units: 0,
	}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStatic_GrowthUnitsInvertsCompounding(t *testing.T) {
	s := newTestFleet(t)
	got := s.GrowthUnits("t1", 1.875)
	want := math.Log(1.875) / math.Log(1.02)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
	if s.GrowthUnits("t1", 0.5) != 0 {
		t.Fatalf("shrinking factor must need zero units")
	}
	if !math.IsNaN(s.GrowthUnits("t1", -1)) {
		t.Fatalf("negative factor must yield NaN")
	}
}

func TestStatic_ExtractUnitsOnDrainedTargetIsNaN(t *testing.T) {
	s, err := NewStatic(config.FleetConfig{
		Targets: []config.TargetConfig{{
			ID: "dry", CurrentValue: 0, MaxValue: 100,
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(s.ExtractUnits("dry", 10)) {
		t.Fatalf("drained target must yield NaN")
	}
}
