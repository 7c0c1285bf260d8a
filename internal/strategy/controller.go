package strategy

import (
	"time"

	"fleet-sched/internal/earnings"
)

const (
	// DefaultCooldown guards against profile thrashing.
	DefaultCooldown = 10 * time.Minute

	// triedResetAfter is how much time must elapse before the
	// tried-profiles set rolls over.
	triedResetAfter = 24 * time.Hour

	// historyLimit bounds the performance history.
	historyLimit = 20

	// escalationAttempts is how many stagnation-driven changes must pile up
	// before emergency is forced regardless of the transition table.
	escalationAttempts = 3
)

// PerformanceEntry records how a profile performed while it was active.
type PerformanceEntry struct {
	Profile   Profile       `json:"profile"`
	Duration  time.Duration `json:"duration"`
	TotalGain float64       `json:"total_gain"`
}

// Broadcast is the record published on every strategy change, consumed by
// the allocator and unit calculator to apply overrides until the next one.
type Broadcast struct {
	Profile   Profile   `json:"profile"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Overrides Overrides `json:"overrides"`
}

// State is the controller's persistent state. Mutated only by the
// controller; persisted as a snapshot for cross-process visibility.
type State struct {
	Current          Profile            `json:"current_profile"`
	LastChange       time.Time          `json:"last_change"`
	ChangeReason     string             `json:"change_reason"`
	TriedToday       []Profile          `json:"tried_today"`
	TriedReset       time.Time          `json:"tried_reset"`
	RecoveryAttempts int                `json:"recovery_attempts"`
	MetricAtChange   float64            `json:"metric_at_change"`
	History          []PerformanceEntry `json:"history"`
}

// Controller is the finite-state profile switcher. It moves only when the
// earnings monitor reports stagnation and the cooldown has elapsed.
type Controller struct {
	cooldown time.Duration
	minRate  float64
	state    State
}

// Options tune the controller. Zero values fall back to the defaults.
type Options struct {
	Cooldown time.Duration
	MinRate  float64
}

func NewController(opts Options) *Controller {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	return &Controller{
		cooldown: opts.Cooldown,
		minRate:  opts.MinRate,
		state: State{
			Current: ProfileBalanced,
		},
	}
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	s := c.state
	s.TriedToday = append([]Profile(nil), c.state.TriedToday...)
	s.History = append([]PerformanceEntry(nil), c.state.History...)
	return s
}

// Restore replaces the controller state, used when resuming from a snapshot.
func (c *Controller) Restore(s State) {
	c.state = s
}

// Current returns the active profile.
func (c *Controller) Current() Profile {
	return c.state.Current
}

// ActiveOverrides returns the active profile's parameter bundle.
func (c *Controller) ActiveOverrides() Overrides {
	return c.state.Current.Overrides()
}

// Evaluate runs the transition check for one cycle. It returns a broadcast
// when the profile changed and nil otherwise. metricValue is the current
// absolute throughput metric, used to account the outgoing profile's gain.
func (c *Controller) Evaluate(now time.Time, stag earnings.Stagnation, metricValue float64) *Broadcast {
	if !stag.Stagnant {
		c.state.RecoveryAttempts = 0
		return nil
	}
	if now.Sub(c.state.LastChange) < c.cooldown {
		return nil
	}

	c.rollTriedSet(now)

	next, reason := c.nextProfile(stag)
	if c.state.RecoveryAttempts >= escalationAttempts && !c.tried(ProfileEmergency) {
		next, reason = ProfileEmergency, "recovery_escalation"
	}

	return c.transition(now, next, reason, metricValue)
}

// Force switches to the given profile unconditionally, bypassing the
// stagnation trigger and cooldown. Used by the operator surface.
func (c *Controller) Force(now time.Time, next Profile, reason string, metricValue float64) *Broadcast {
	c.rollTriedSet(now)
	return c.transition(now, next, reason, metricValue)
}

// nextProfile applies the transition table. Aggressive always steps down to
// conservative regardless of the rate; the table is deliberately asymmetric.
func (c *Controller) nextProfile(stag earnings.Stagnation) (Profile, string) {
	switch c.state.Current {
	case ProfileBalanced:
		if stag.CurrentRate < c.minRate/2 {
			return ProfileConservative, "rate_collapsed"
		}
		return ProfileAggressive, "stagnation"
	case ProfileAggressive:
		return ProfileConservative, "step_down"
	case ProfileConservative:
		if !c.tried(ProfileEmergency) {
			return ProfileEmergency, "escalation"
		}
		return ProfileBalanced, "emergency_exhausted"
	case ProfileEmergency:
		return ProfileBalanced, "emergency_complete"
	default:
		return ProfileBalanced, "reset"
	}
}

func (c *Controller) transition(now time.Time, next Profile, reason string, metricValue float64) *Broadcast {
	outgoing := PerformanceEntry{
		Profile:   c.state.Current,
		Duration:  now.Sub(c.state.LastChange),
		TotalGain: metricValue - c.state.MetricAtChange,
	}
	c.state.History = append(c.state.History, outgoing)
	if len(c.state.History) > historyLimit {
		c.state.History = c.state.History[len(c.state.History)-historyLimit:]
	}

	if !c.tried(next) {
		c.state.TriedToday = append(c.state.TriedToday, next)
	}

	c.state.Current = next
	c.state.LastChange = now
	c.state.ChangeReason = reason
	c.state.MetricAtChange = metricValue
	c.state.RecoveryAttempts++

	return &Broadcast{
		Profile:   next,
		Reason:    reason,
		Timestamp: now,
		Overrides: next.Overrides(),
	}
}

func (c *Controller) rollTriedSet(now time.Time) {
	if c.state.TriedReset.IsZero() {
		c.state.TriedReset = now
		return
	}
	if now.Sub(c.state.TriedReset) > triedResetAfter {
		c.state.TriedToday = nil
		c.state.TriedReset = now
	}
}

func (c *Controller) tried(p Profile) bool {
	for _, t := range c.state.TriedToday {
		if t == p {
			return true
		}
	}
	return false
}
