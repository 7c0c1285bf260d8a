package config

import (
	"time"
)

type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Fleet     FleetConfig     `yaml:"fleet"`
}

type SchedulerConfig struct {
	Name            string `yaml:"name"`
	LogLevel        string `yaml:"log_level"`
	CycleIntervalMS int    `yaml:"cycle_interval_ms"`
	MinCycleFloorMS int    `yaml:"min_cycle_floor_ms"`

	UnitCapacityCost float64 `yaml:"unit_capacity_cost"`
	ReservedCapacity float64 `yaml:"reserved_capacity"`
	FallbackNode     string  `yaml:"fallback_node"`

	Thresholds ThresholdConfig `yaml:"thresholds"`
	Monitor    MonitorConfig   `yaml:"monitor"`
	Strategy   StrategyConfig  `yaml:"strategy"`
	Snapshots  SnapshotConfig  `yaml:"snapshots"`
	Data       DataConfig      `yaml:"data"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// ThresholdConfig holds the base tuning parameters. Strategy profiles layer
// overrides on top of these once per cycle.
type ThresholdConfig struct {
	ValueFraction   float64 `yaml:"value_fraction"`
	DefenseMargin   float64 `yaml:"defense_margin"`
	ExtractFraction float64 `yaml:"extract_fraction"`
}

type MonitorConfig struct {
	WindowSize  int     `yaml:"window_size"`
	MinRate     float64 `yaml:"min_rate"`
	StagnationS int     `yaml:"stagnation_s"`
	ChangeS     int     `yaml:"change_s"`
}

type StrategyConfig struct {
	CooldownS           int `yaml:"cooldown_s"`
	EmergencyTopTargets int `yaml:"emergency_top_targets"`
}

type SnapshotConfig struct {
	Dir string `yaml:"dir"`
}

type DataConfig struct {
	DB DatabaseConfig `yaml:"db"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Org      string `yaml:"org"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// FleetConfig declares the static fleet used by the built-in collaborators
// for local runs. Production deployments point the loop at real discovery
// and query services instead.
type FleetConfig struct {
	Nodes   []NodeConfig   `yaml:"nodes"`
	Targets []TargetConfig `yaml:"targets"`
}

type NodeConfig struct {
	ID            string  `yaml:"id"`
	TotalCapacity float64 `yaml:"total_capacity"`
	UsedCapacity  float64 `yaml:"used_capacity"`
	Owned         bool    `yaml:"owned"`
}

type TargetConfig struct {
	ID                 string  `yaml:"id"`
	CurrentValue       float64 `yaml:"current_value"`
	MaxValue           float64 `yaml:"max_value"`
	CurrentDefense     float64 `yaml:"current_defense"`
	MinDefense         float64 `yaml:"min_defense"`
	ProfitabilityScore float64 `yaml:"profitability_score"`
	SuppressTimeS      float64 `yaml:"suppress_time_s"`
	ReplenishTimeS     float64 `yaml:"replenish_time_s"`
	ExtractTimeS       float64 `yaml:"extract_time_s"`
}

func (c *Config) GetCycleInterval() time.Duration {
	return time.Duration(c.Scheduler.CycleIntervalMS) * time.Millisecond
}

func (c *Config) GetCycleFloor() time.Duration {
	return time.Duration(c.Scheduler.MinCycleFloorMS) * time.Millisecond
}

func (c *Config) GetStagnationThreshold() time.Duration {
	return time.Duration(c.Scheduler.Monitor.StagnationS) * time.Second
}

func (c *Config) GetChangeThreshold() time.Duration {
	return time.Duration(c.Scheduler.Monitor.ChangeS) * time.Second
}

func (c *Config) GetStrategyCooldown() time.Duration {
	return time.Duration(c.Scheduler.Strategy.CooldownS) * time.Second
}

// applyDefaults fills unset fields with the documented defaults.
func (c *Config) applyDefaults() {
	s := &c.Scheduler
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.CycleIntervalMS <= 0 {
		s.CycleIntervalMS = 4000
	}
	if s.MinCycleFloorMS <= 0 {
		s.MinCycleFloorMS = 1000
	}
	if s.UnitCapacityCost <= 0 {
		s.UnitCapacityCost = 1.75
	}
	if s.Thresholds.ValueFraction <= 0 {
		s.Thresholds.ValueFraction = 0.75
	}
	if s.Thresholds.DefenseMargin < 0 {
		s.Thresholds.DefenseMargin = 0
	}
	if s.Thresholds.ExtractFraction <= 0 {
		s.Thresholds.ExtractFraction = 0.25
	}
	if s.Monitor.WindowSize <= 0 {
		s.Monitor.WindowSize = 30
	}
	if s.Monitor.StagnationS <= 0 {
		s.Monitor.StagnationS = 300
	}
	if s.Monitor.ChangeS <= 0 {
		s.Monitor.ChangeS = 180
	}
	if s.Strategy.CooldownS <= 0 {
		s.Strategy.CooldownS = 600
	}
	if s.Strategy.EmergencyTopTargets <= 0 {
		s.Strategy.EmergencyTopTargets = 5
	}
	if s.Snapshots.Dir == "" {
		s.Snapshots.Dir = "snapshots"
	}
}
