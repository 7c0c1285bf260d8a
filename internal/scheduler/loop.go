package scheduler

import (
	"context"
	"fmt"
	"time"

	"fleet-sched/internal/allocator"
	"fleet-sched/internal/config"
	"fleet-sched/internal/database"
	"fleet-sched/internal/earnings"
	"fleet-sched/internal/logging"
	"fleet-sched/internal/observability"
	"fleet-sched/internal/pool"
	"fleet-sched/internal/prioritizer"
	"fleet-sched/internal/snapshot"
	"fleet-sched/internal/strategy"
	"fleet-sched/internal/target"
	"fleet-sched/internal/tracker"
	"fleet-sched/internal/units"

	"github.com/sirupsen/logrus"
)

// cycleBackoff is how long the loop pauses after a failed or panicked cycle.
const cycleBackoff = 5 * time.Second

// CycleStats summarizes one cycle for logging and export.
type CycleStats struct {
	Targets           int
	TasksRanked       int
	UnitsRequired     int
	UnitsAssigned     int
	Nodes             int
	CapacityAvailable float64
	Swept             int
	Stagnant          bool
	Profile           strategy.Profile
}

// Loop is the single cooperative scheduler loop. All shared state (pool,
// assignment map, sample window, strategy state) is owned exclusively by
// this loop within a cycle.
type Loop struct {
	cfg        *config.Config
	collab     Collaborators
	tracker    *tracker.Tracker
	monitor    *earnings.Monitor
	controller *strategy.Controller
	store      *snapshot.Store
	db         *database.Client
	runID      int
	logger     *logrus.Logger

	lastBroadcast strategy.Broadcast
	lastMetric    float64
	now           func() time.Time
}

// NewLoop wires the core components. store and db are optional; a nil store
// disables persistence, a nil db disables the time-series sink.
func NewLoop(cfg *config.Config, collab Collaborators, store *snapshot.Store, db *database.Client) (*Loop, error) {
	if err := collab.validate(); err != nil {
		return nil, err
	}

	l := &Loop{
		cfg:    cfg,
		collab: collab,
		tracker: tracker.New(tracker.DefaultStaleWindow),
		monitor: earnings.NewMonitor(earnings.Options{
			WindowSize:          cfg.Scheduler.Monitor.WindowSize,
			MinRate:             cfg.Scheduler.Monitor.MinRate,
			StagnationThreshold: cfg.GetStagnationThreshold(),
			ChangeThreshold:     cfg.GetChangeThreshold(),
		}),
		controller: strategy.NewController(strategy.Options{
			Cooldown: cfg.GetStrategyCooldown(),
			MinRate:  cfg.Scheduler.Monitor.MinRate,
		}),
		store:  store,
		db:     db,
		logger: logging.GetSchedulerLogger(),
		now:    time.Now,
	}

	l.restore()

	if db != nil {
		lastID, err := db.GetLastRunID()
		if err != nil {
			return nil, fmt.Errorf("failed to get last run ID: %w", err)
		}
		l.runID = lastID + 1
	}

	return l, nil
}

// restore resumes tracker, monitor and strategy state from snapshots.
// Missing or corrupt snapshots yield the empty defaults.
func (l *Loop) restore() {
	if l.store == nil {
		return
	}
	l.tracker.Restore(snapshot.Load(l.store, snapshot.NameAssignments, map[string][]tracker.Assignment{}))
	l.monitor.Restore(snapshot.Load(l.store, snapshot.NameTracking, []earnings.Sample{}))

	state := snapshot.Load(l.store, snapshot.NameStrategy, strategy.State{})
	if !state.LastChange.IsZero() || len(state.TriedToday) > 0 {
		l.controller.Restore(state)
	}

	// A persisted record matching the current profile is our own last
	// broadcast. One that differs was forced while we were down; leaving
	// lastBroadcast zero makes the first cycle adopt it.
	bc := snapshot.Load(l.store, snapshot.NameBroadcast, strategy.Broadcast{})
	if bc.Profile == l.controller.Current() {
		l.lastBroadcast = bc
	}
}

// Run executes cycles until the context is cancelled. A single cycle's
// failure never terminates the loop: it is logged and followed by a fixed
// backoff before the next attempt.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.cfg.GetCycleInterval()
	floor := l.cfg.GetCycleFloor()

	l.logger.WithFields(logrus.Fields{
		"name":     l.cfg.Scheduler.Name,
		"interval": interval,
		"profile":  l.controller.Current().String(),
	}).Info("Scheduler loop started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := l.now()
		err := l.safeCycle(ctx)
		elapsed := l.now().Sub(start)

		if err != nil {
			l.logger.WithError(err).Error("Cycle failed")
			if !sleepCtx(ctx, cycleBackoff) {
				return ctx.Err()
			}
			continue
		}

		// Cycle length is clamped to a floor even when the cycle ran long.
		pause := interval - elapsed
		if pause < floor {
			pause = floor
		}
		if !sleepCtx(ctx, pause) {
			return ctx.Err()
		}
	}
}

// safeCycle converts a cycle panic into an error so the loop survives it.
func (l *Loop) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return l.runCycle(ctx)
}

// runCycle executes one full scheduling cycle:
// refresh -> prioritize -> calculate -> allocate -> sweep -> sample ->
// strategy check -> persist.
func (l *Loop) runCycle(ctx context.Context) error {
	now := l.now()
	cycleStart := now

	l.adoptForcedBroadcast(now)

	nodes, err := l.collab.Discovery.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("node discovery failed: %w", err)
	}
	targets, err := l.collab.Targets.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("target query failed: %w", err)
	}

	th, up, density := l.derivedParams()
	p := pool.New(nodes)

	fallback := l.cfg.Scheduler.FallbackNode
	if fallback == "" && p.Len() > 0 {
		fallback = p.Nodes()[0].ID
	}

	stats := CycleStats{
		Targets:           len(targets),
		Nodes:             p.Len(),
		CapacityAvailable: p.TotalAvailable(),
		Profile:           l.controller.Current(),
	}

	tasks := prioritizer.Rank(targets, th)
	stats.TasksRanked = len(tasks)

	ranked := make([]allocator.RankedTask, 0, len(tasks))
	for _, t := range tasks {
		required := units.Required(t, l.collab.Models, up)
		stats.UnitsRequired += required
		ranked = append(ranked, allocator.RankedTask{Task: t, Units: required})
	}

	alloc := allocator.New(l.collab.Discovery, allocator.Options{
		UnitCapacityCost: l.cfg.Scheduler.UnitCapacityCost * density,
		ReservedCapacity: l.cfg.Scheduler.ReservedCapacity,
		FallbackNode:     fallback,
	})
	results := alloc.Allocate(ctx, ranked, p)
	for _, res := range results {
		stats.UnitsAssigned += res.Assigned
		for _, a := range res.Assignments {
			l.tracker.Record(a)
		}
	}

	stats.Swept = l.tracker.Sweep(now)

	metric, err := l.collab.Metrics.ReadAbsoluteMetric(ctx)
	if err != nil {
		// Transient: skip sampling this cycle rather than failing it.
		l.logger.WithError(err).Warn("Metric read failed, skipping sample")
	} else {
		l.lastMetric = metric
		l.monitor.Sample(now, metric)
		stag := l.monitor.CheckStagnation(now)
		stats.Stagnant = stag.Stagnant

		if bc := l.controller.Evaluate(now, stag, metric); bc != nil {
			l.applyBroadcast(*bc)
		}
	}

	l.persist(p, targets)
	l.export(cycleStart, stats, l.now().Sub(cycleStart))

	l.logger.WithFields(logrus.Fields{
		"targets":        stats.Targets,
		"tasks":          stats.TasksRanked,
		"units_required": stats.UnitsRequired,
		"units_assigned": stats.UnitsAssigned,
		"swept":          stats.Swept,
		"profile":        stats.Profile.String(),
		"stagnant":       stats.Stagnant,
	}).Info("Cycle complete")

	return nil
}

// derivedParams layers the active profile's overrides over the base config,
// computed once per cycle.
func (l *Loop) derivedParams() (prioritizer.Thresholds, units.Params, float64) {
	base := l.cfg.Scheduler.Thresholds
	ov := l.controller.ActiveOverrides()

	vf := base.ValueFraction
	if ov.ValueFraction > 0 {
		vf = ov.ValueFraction
	}
	dm := base.DefenseMargin
	if ov.DefenseMargin > 0 {
		dm = ov.DefenseMargin
	}
	ef := base.ExtractFraction
	if ov.ExtractFraction > 0 {
		ef = ov.ExtractFraction
	}
	density := 1.0
	if ov.DensityMultiplier > 0 {
		density = ov.DensityMultiplier
	}

	topTargets := 0
	if l.controller.Current() == strategy.ProfileEmergency {
		topTargets = ov.TopTargets
		if topTargets <= 0 {
			topTargets = l.cfg.Scheduler.Strategy.EmergencyTopTargets
		}
	}

	th := prioritizer.Thresholds{
		ValueFraction: vf,
		DefenseMargin: dm,
		TopTargets:    topTargets,
	}
	up := units.Params{
		ValueFraction:   vf,
		ExtractFraction: ef,
	}
	return th, up, density
}

// adoptForcedBroadcast picks up an operator-forced strategy record written
// by the CLI since the last cycle.
func (l *Loop) adoptForcedBroadcast(now time.Time) {
	if l.store == nil {
		return
	}
	bc := snapshot.Load(l.store, snapshot.NameBroadcast, strategy.Broadcast{})
	if bc.Timestamp.IsZero() || !bc.Timestamp.After(l.lastBroadcast.Timestamp) {
		return
	}
	if bc.Profile == l.controller.Current() {
		l.lastBroadcast = bc
		return
	}
	forced := l.controller.Force(now, bc.Profile, bc.Reason, l.lastMetric)
	l.applyBroadcast(*forced)
}

func (l *Loop) applyBroadcast(bc strategy.Broadcast) {
	l.logger.WithFields(logrus.Fields{
		"profile": bc.Profile.String(),
		"reason":  bc.Reason,
	}).Warn("Strategy changed")

	l.lastBroadcast = bc

	for _, p := range []strategy.Profile{
		strategy.ProfileBalanced, strategy.ProfileAggressive,
		strategy.ProfileConservative, strategy.ProfileEmergency,
	} {
		active := 0.0
		if p == bc.Profile {
			active = 1.0
		}
		observability.ActiveProfile.WithLabelValues(p.String()).Set(active)
	}
	observability.StrategyChanges.WithLabelValues(bc.Profile.String(), bc.Reason).Inc()

	if l.store != nil {
		if err := l.store.Save(snapshot.NameBroadcast, bc); err != nil {
			l.logger.WithError(err).Warn("Failed to persist strategy broadcast")
		}
	}
	if l.db != nil {
		if err := l.db.WriteStrategyChange(l.runID, bc); err != nil {
			l.logger.WithError(err).Warn("Failed to export strategy change")
		}
	}
}

// persist writes the end-of-cycle snapshots. Failures are logged, never
// escalated: persistence is best effort by design.
func (l *Loop) persist(p *pool.Pool, targets []target.Target) {
	if l.store == nil {
		return
	}
	saves := map[string]any{
		snapshot.NamePool:        p.Snapshot(),
		snapshot.NameTargets:     targets,
		snapshot.NameAssignments: l.tracker.Active(),
		snapshot.NameTracking:    l.monitor.Samples(),
		snapshot.NameStrategy:    l.controller.State(),
	}
	for name, v := range saves {
		if err := l.store.Save(name, v); err != nil {
			l.logger.WithField("snapshot", name).WithError(err).Warn("Failed to persist snapshot")
		}
	}
}

func (l *Loop) export(cycleStart time.Time, stats CycleStats, elapsed time.Duration) {
	observability.CycleDuration.Observe(elapsed.Seconds())
	observability.TargetsTracked.Set(float64(stats.Targets))
	observability.NodesAvailable.Set(float64(stats.Nodes))
	observability.CapacityAvailable.Set(stats.CapacityAvailable)
	observability.CurrentRate.Set(l.monitor.CurrentRate())
	if stats.Stagnant {
		observability.Stagnant.Set(1)
	} else {
		observability.Stagnant.Set(0)
	}

	if l.db == nil {
		return
	}
	point := database.CyclePoint{
		RunID:             l.runID,
		Timestamp:         cycleStart,
		Targets:           stats.Targets,
		TasksRanked:       stats.TasksRanked,
		UnitsRequired:     stats.UnitsRequired,
		UnitsAssigned:     stats.UnitsAssigned,
		Nodes:             stats.Nodes,
		CapacityAvailable: stats.CapacityAvailable,
		Profile:           stats.Profile,
		Stagnant:          stats.Stagnant,
		DurationSeconds:   elapsed.Seconds(),
	}
	if err := l.db.WriteCycle(point); err != nil {
		l.logger.WithError(err).Warn("Failed to export cycle point")
	}
	samples := l.monitor.Samples()
	if len(samples) > 0 {
		if err := l.db.WriteEarningsSample(l.runID, samples[len(samples)-1]); err != nil {
			l.logger.WithError(err).Warn("Failed to export earnings sample")
		}
	}
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
