package allocator

import (
	"context"
	"errors"
	"testing"

	"fleet-sched/internal/pool"
	"fleet-sched/internal/task"
)

type stubDispatcher struct {
	calls     []Dispatch
	failNodes map[string]bool
}

func (s *stubDispatcher) Dispatch(ctx context.Context, d Dispatch) (string, error) {
	if s.failNodes[d.NodeID] {
		return "", errors.New("node rejected dispatch")
	}
	s.calls = append(s.calls, d)
	return "handle", nil
}

func suppressTask(id string, units int) RankedTask {
	return RankedTask{
		Task:  task.Task{TargetID: id, Action: task.ActionSuppress, Priority: 1},
		Units: units,
	}
}

func TestAllocate_SplitsAcrossOwnedAndForeign(t *testing.T) {
	disp := &stubDispatcher{}
	a := New(disp, Options{UnitCapacityCost: 2, ChunkDelay: -1})
	p := pool.New([]pool.Node{
		{ID: "n1", TotalCapacity: 10, Owned: true},
		{ID: "n2", TotalCapacity: 100},
	})

	results := a.Allocate(context.Background(), []RankedTask{suppressTask("t1", 8)}, p)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Assigned != 8 {
		t.Fatalf("got %d assigned, want 8", results[0].Assigned)
	}
	if len(disp.calls) != 2 {
		t.Fatalf("got %d dispatches, want 2", len(disp.calls))
	}
	// Owned node first, capped by its capacity: floor(10/2) = 5.
	if disp.calls[0].NodeID != "n1" || disp.calls[0].Units != 5 {
		t.Fatalf("first dispatch %+v, want 5 units on n1", disp.calls[0])
	}
	if disp.calls[1].NodeID != "n2" || disp.calls[1].Units != 3 {
		t.Fatalf("second dispatch %+v, want 3 units on n2", disp.calls[1])
	}
}

func TestAllocate_ReservesCapacityOptimistically(t *testing.T) {
	disp := &stubDispatcher{}
	a := New(disp, Options{UnitCapacityCost: 2, ChunkDelay: -1})
	p := pool.New([]pool.Node{{ID: "n1", TotalCapacity: 10, Owned: true}})

	a.Allocate(context.Background(), []RankedTask{suppressTask("t1", 3)}, p)
	if got := p.Get("n1").UsedCapacity; got != 6 {
		t.Fatalf("got used capacity %v, want 6", got)
	}
}

func TestAllocate_FallbackHoldsBackReserve(t *testing.T) {
	disp := &stubDispatcher{}
	a := New(disp, Options{
		UnitCapacityCost: 2,
		ReservedCapacity: 6,
		FallbackNode:     "f",
		ChunkDelay:       -1,
	})
	p := pool.New([]pool.Node{{ID: "f", TotalCapacity: 10, Owned: true}})

	results := a.Allocate(context.Background(), []RankedTask{suppressTask("t1", 5)}, p)
	// usable = 10 - 6 = 4 capacity = 2 units
	if results[0].Assigned != 2 {
		t.Fatalf("got %d assigned, want 2", results[0].Assigned)
	}
	if got := p.Get("f").AvailableCapacity(); got < 6 {
		t.Fatalf("reserve was dipped into: %v available", got)
	}
}

func TestAllocate_DispatchFailureSkipsNode(t *testing.T) {
	disp := &stubDispatcher{failNodes: map[string]bool{"n1": true}}
	a := New(disp, Options{UnitCapacityCost: 2, ChunkDelay: -1})
	p := pool.New([]pool.Node{
		{ID: "n1", TotalCapacity: 100, Owned: true},
		{ID: "n2", TotalCapacity: 100},
	})

	results := a.Allocate(context.Background(), []RankedTask{suppressTask("t1", 8)}, p)
	if results[0].Assigned != 8 {
		t.Fatalf("got %d assigned, want 8 from the healthy node", results[0].Assigned)
	}
	if got := p.Get("n1").UsedCapacity; got != 0 {
		t.Fatalf("rejected node got capacity reserved: %v", got)
	}
}

func TestAllocate_PartialWhenPoolExhausted(t *testing.T) {
	disp := &stubDispatcher{}
	a := New(disp, Options{UnitCapacityCost: 2, ChunkDelay: -1})
	p := pool.New([]pool.Node{{ID: "n1", TotalCapacity: 10, Owned: true}})

	results := a.Allocate(context.Background(), []RankedTask{suppressTask("t1", 50)}, p)
	if results[0].Assigned != 5 {
		t.Fatalf("got %d assigned, want 5", results[0].Assigned)
	}
	if results[0].Required != 50 {
		t.Fatalf("required was rewritten: %d", results[0].Required)
	}
}

func TestAllocate_SkipsNonPositivePriority(t *testing.T) {
	disp := &stubDispatcher{}
	a := New(disp, Options{UnitCapacityCost: 2, ChunkDelay: -1})
	p := pool.New([]pool.Node{{ID: "n1", TotalCapacity: 10, Owned: true}})

	rt := RankedTask{Task: task.Task{TargetID: "t1", Priority: 0}, Units: 4}
	results := a.Allocate(context.Background(), []RankedTask{rt}, p)
	if len(results) != 0 || len(disp.calls) != 0 {
		t.Fatalf("zero-priority task was allocated")
	}
}

func TestAllocate_ChunksLargeNodes(t *testing.T) {
	disp := &stubDispatcher{}
	a := New(disp, Options{UnitCapacityCost: 2, ChunkDelay: -1})
	p := pool.New([]pool.Node{{ID: "big", TotalCapacity: 2048, Owned: true}})

	results := a.Allocate(context.Background(), []RankedTask{suppressTask("t1", 300)}, p)
	if results[0].Assigned != 300 {
		t.Fatalf("got %d assigned, want 300", results[0].Assigned)
	}
	want := []int{128, 128, 44}
	if len(disp.calls) != len(want) {
		t.Fatalf("got %d dispatches, want %d", len(disp.calls), len(want))
	}
	for i, w := range want {
		if disp.calls[i].Units != w {
			t.Fatalf("chunk %d has %d units, want %d", i, disp.calls[i].Units, w)
		}
	}
}

func TestAllocate_SmallNodeNotChunked(t *testing.T) {
	disp := &stubDispatcher{}
	a := New(disp, Options{UnitCapacityCost: 1, ChunkDelay: -1})
	p := pool.New([]pool.Node{{ID: "n1", TotalCapacity: 500, Owned: true}})

	a.Allocate(context.Background(), []RankedTask{suppressTask("t1", 400)}, p)
	if len(disp.calls) != 1 {
		t.Fatalf("got %d dispatches, want a single unchunked one", len(disp.calls))
	}
	if disp.calls[0].Units != 400 {
		t.Fatalf("got %d units, want 400", disp.calls[0].Units)
	}
}

func TestAllocate_AssignmentsCarryTaskIdentity(t *testing.T) {
	disp := &stubDispatcher{}
	a := New(disp, Options{UnitCapacityCost: 2, ChunkDelay: -1})
	p := pool.New([]pool.Node{{ID: "n1", TotalCapacity: 10, Owned: true}})

	results := a.Allocate(context.Background(), []RankedTask{suppressTask("t1", 2)}, p)
	if len(results[0].Assignments) != 1 {
		t.Fatalf("got %d assignments, want 1", len(results[0].Assignments))
	}
	asg := results[0].Assignments[0]
	if asg.ID == "" || asg.NodeID != "n1" || asg.TargetID != "t1" || asg.Units != 2 {
		t.Fatalf("assignment incomplete: %+v", asg)
	}
}
