package earnings

import (
	"time"
)

const (
	// DefaultWindowSize bounds the sample FIFO.
	DefaultWindowSize = 30

	// currentRateSpan is how many trailing samples feed the current rate.
	currentRateSpan = 10

	// DefaultStagnationThreshold is how long without a positive delta
	// before throughput is considered stagnant outright.
	DefaultStagnationThreshold = 5 * time.Minute

	// DefaultChangeThreshold is the shorter window that applies when the
	// current rate has also dropped below the minimum.
	DefaultChangeThreshold = 3 * time.Minute
)

// Sample is one cycle's throughput reading.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Rate      float64   `json:"rate"`
	DeltaT    float64   `json:"delta_t"`
}

// Stagnation is the monitor's verdict for one cycle.
type Stagnation struct {
	Stagnant      bool
	Reason        string
	SincePositive time.Duration
	CurrentRate   float64
	AverageRate   float64
}

// Options tune the monitor. Zero values fall back to the defaults.
type Options struct {
	WindowSize          int
	MinRate             float64
	StagnationThreshold time.Duration
	ChangeThreshold     time.Duration
}

// Monitor keeps a bounded sliding window of throughput samples and flags
// stagnation. The metric is monotonic-ish but may decrease; deltas are
// signed and only strictly positive deltas advance the stagnation clock.
type Monitor struct {
	windowSize          int
	minRate             float64
	stagnationThreshold time.Duration
	changeThreshold     time.Duration

	samples      []Sample
	lastValue    float64
	hasLast      bool
	lastPositive time.Time
}

func NewMonitor(opts Options) *Monitor {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.StagnationThreshold <= 0 {
		opts.StagnationThreshold = DefaultStagnationThreshold
	}
	if opts.ChangeThreshold <= 0 {
		opts.ChangeThreshold = DefaultChangeThreshold
	}
	return &Monitor{
		windowSize:          opts.WindowSize,
		minRate:             opts.MinRate,
		stagnationThreshold: opts.StagnationThreshold,
		changeThreshold:     opts.ChangeThreshold,
	}
}

// Sample records the absolute metric value at now, computing the delta
// against the previous reading. The oldest sample is evicted once the window
// exceeds its capacity.
func (m *Monitor) Sample(now time.Time, value float64) {
	if m.lastPositive.IsZero() {
		m.lastPositive = now
	}

	sample := Sample{Timestamp: now, Value: value}
	if m.hasLast && len(m.samples) > 0 {
		deltaT := now.Sub(m.samples[len(m.samples)-1].Timestamp).Seconds()
		delta := value - m.lastValue
		sample.DeltaT = deltaT
		if deltaT > 0 {
			sample.Rate = delta / deltaT
		}
		if delta > 0 {
			m.lastPositive = now
		}
	}

	m.samples = append(m.samples, sample)
	if len(m.samples) > m.windowSize {
		m.samples = m.samples[len(m.samples)-m.windowSize:]
	}

	m.lastValue = value
	m.hasLast = true
}

// CurrentRate averages the instantaneous rate over the trailing samples.
func (m *Monitor) CurrentRate() float64 {
	if len(m.samples) == 0 {
		return 0
	}
	start := len(m.samples) - currentRateSpan
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, s := range m.samples[start:] {
		sum += s.Rate
	}
	return sum / float64(len(m.samples)-start)
}

// AverageRate averages the instantaneous rate over the whole window.
func (m *Monitor) AverageRate() float64 {
	if len(m.samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range m.samples {
		sum += s.Rate
	}
	return sum / float64(len(m.samples))
}

// CheckStagnation evaluates the stagnation condition at now.
func (m *Monitor) CheckStagnation(now time.Time) Stagnation {
	since := now.Sub(m.lastPositive)
	current := m.CurrentRate()
	result := Stagnation{
		SincePositive: since,
		CurrentRate:   current,
		AverageRate:   m.AverageRate(),
	}

	switch {
	case m.lastPositive.IsZero():
		// No samples yet.
	case since > m.stagnationThreshold:
		result.Stagnant = true
		result.Reason = "no_positive_delta"
	case current < m.minRate && since > m.changeThreshold:
		result.Stagnant = true
		result.Reason = "rate_below_minimum"
	}

	return result
}

// Samples returns a copy of the current window for persistence.
func (m *Monitor) Samples() []Sample {
	return append([]Sample(nil), m.samples...)
}

// Restore replaces the window, used when resuming from a snapshot.
func (m *Monitor) Restore(samples []Sample) {
	if len(samples) > m.windowSize {
		samples = samples[len(samples)-m.windowSize:]
	}
	m.samples = append([]Sample(nil), samples...)
	if len(m.samples) > 0 {
		last := m.samples[len(m.samples)-1]
		m.lastValue = last.Value
		m.hasLast = true
		for i := len(m.samples) - 1; i >= 0; i-- {
			if m.samples[i].Rate > 0 {
				m.lastPositive = m.samples[i].Timestamp
				break
			}
		}
		if m.lastPositive.IsZero() {
			m.lastPositive = m.samples[0].Timestamp
		}
	}
}
