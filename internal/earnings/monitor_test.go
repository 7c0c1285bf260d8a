package earnings

import (
	"testing"
	"time"
)

var base = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestMonitor_FirstSampleHasNoRate(t *testing.T) {
	m := NewMonitor(Options{})
	m.Sample(base, 100)

	samples := m.Samples()
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].Rate != 0 {
		t.Fatalf("first sample has rate %v, want 0", samples[0].Rate)
	}
}

func TestMonitor_ComputesRateFromDelta(t *testing.T) {
	m := NewMonitor(Options{})
	m.Sample(base, 0)
	m.Sample(base.Add(10*time.Second), 100)

	samples := m.Samples()
	if samples[1].Rate != 10 {
		t.Fatalf("got rate %v, want 10", samples[1].Rate)
	}
	if samples[1].DeltaT != 10 {
		t.Fatalf("got delta_t %v, want 10", samples[1].DeltaT)
	}
}

func TestMonitor_WindowEvictsOldest(t *testing.T) {
	m := NewMonitor(Options{WindowSize: 3})
	for i := 0; i < 5; i++ {
		m.Sample(base.Add(time.Duration(i)*time.Second), float64(i))
	}
	samples := m.Samples()
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[0].Value != 2 {
		t.Fatalf("oldest surviving sample has value %v, want 2", samples[0].Value)
	}
}

func TestMonitor_NotStagnantImmediately(t *testing.T) {
	m := NewMonitor(Options{})
	m.Sample(base, 100)

	if stag := m.CheckStagnation(base); stag.Stagnant {
		t.Fatalf("fresh monitor reported stagnation: %+v", stag)
	}
}

func TestMonitor_StagnantAfterNoPositiveDelta(t *testing.T) {
	m := NewMonitor(Options{})
	m.Sample(base, 100)
	m.Sample(base.Add(2*time.Minute), 100)
	m.Sample(base.Add(4*time.Minute), 100)

	stag := m.CheckStagnation(base.Add(6 * time.Minute))
	if !stag.Stagnant {
		t.Fatalf("expected stagnation after 6 minutes without gain")
	}
	if stag.Reason != "no_positive_delta" {
		t.Fatalf("got reason %q, want no_positive_delta", stag.Reason)
	}
}

func TestMonitor_PositiveDeltaResetsClock(t *testing.T) {
	m := NewMonitor(Options{})
	m.Sample(base, 100)
	m.Sample(base.Add(4*time.Minute), 100)
	m.Sample(base.Add(5*time.Minute), 150)

	if stag := m.CheckStagnation(base.Add(6 * time.Minute)); stag.Stagnant {
		t.Fatalf("positive delta did not reset the stagnation clock: %+v", stag)
	}
}

func TestMonitor_RateBelowMinimumUsesShorterWindow(t *testing.T) {
	m := NewMonitor(Options{MinRate: 10})
	m.Sample(base, 100)
	m.Sample(base.Add(time.Minute), 100)
	m.Sample(base.Add(4*time.Minute), 99)

	// 4 minutes since the last positive delta: past the change threshold but
	// short of the outright stagnation threshold.
	stag := m.CheckStagnation(base.Add(4 * time.Minute))
	if !stag.Stagnant {
		t.Fatalf("expected stagnation on collapsed rate")
	}
	if stag.Reason != "rate_below_minimum" {
		t.Fatalf("got reason %q, want rate_below_minimum", stag.Reason)
	}
}

func TestMonitor_CurrentRateAveragesTrailingSamples(t *testing.T) {
	m := NewMonitor(Options{})
	m.Sample(base, 0)
	m.Sample(base.Add(10*time.Second), 100)
	m.Sample(base.Add(20*time.Second), 300)

	// rates: 0, 10, 20
	if got := m.CurrentRate(); got != 10 {
		t.Fatalf("got current rate %v, want 10", got)
	}
	if got := m.AverageRate(); got != 10 {
		t.Fatalf("got average rate %v, want 10", got)
	}
}

func TestMonitor_RestoreRoundTrip(t *testing.T) {
	m := NewMonitor(Options{})
	m.Sample(base, 0)
	m.Sample(base.Add(10*time.Second), 100)

	fresh := NewMonitor(Options{})
	fresh.Restore(m.Samples())

	if got := fresh.CurrentRate(); got != m.CurrentRate() {
		t.Fatalf("current rate diverged after restore: %v vs %v", got, m.CurrentRate())
	}
	// The restored window remembers the last positive delta.
	if stag := fresh.CheckStagnation(base.Add(11 * time.Second)); stag.Stagnant {
		t.Fatalf("restored monitor reported stagnation: %+v", stag)
	}
}

func TestMonitor_RestoreTruncatesToWindow(t *testing.T) {
	m := NewMonitor(Options{})
	for i := 0; i < 10; i++ {
		m.Sample(base.Add(time.Duration(i)*time.Second), float64(i))
	}

	small := NewMonitor(Options{WindowSize: 4})
	small.Restore(m.Samples())
	if got := len(small.Samples()); got != 4 {
		t.Fatalf("got %d samples after restore, want 4", got)
	}
}
