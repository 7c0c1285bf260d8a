package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"fleet-sched/internal/logging"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*Config, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, err
	}

	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func validateConfig(config *Config) error {
	s := &config.Scheduler

	if s.Name == "" {
		return fmt.Errorf("scheduler name is required")
	}

	if s.Thresholds.ValueFraction <= 0 || s.Thresholds.ValueFraction > 1 {
		return fmt.Errorf("value_fraction must be in (0, 1]")
	}
	if s.Thresholds.DefenseMargin < 0 {
		return fmt.Errorf("defense_margin must be >= 0")
	}
	if s.Thresholds.ExtractFraction <= 0 || s.Thresholds.ExtractFraction > 1 {
		return fmt.Errorf("extract_fraction must be in (0, 1]")
	}
	if s.ReservedCapacity < 0 {
		return fmt.Errorf("reserved_capacity must be >= 0")
	}

	if s.Data.DB.Enabled {
		db := s.Data.DB
		if db.Host == "" || db.Name == "" || db.User == "" || db.Password == "" || db.Org == "" {
			return fmt.Errorf("incomplete database configuration")
		}
	}

	if len(config.Fleet.Nodes) > 0 {
		ids := make(map[string]bool)
		for _, node := range config.Fleet.Nodes {
			if node.ID == "" {
				return fmt.Errorf("node id is required")
			}
			if node.TotalCapacity <= 0 {
				return fmt.Errorf("node %s: total_capacity must be greater than 0", node.ID)
			}
			if node.UsedCapacity < 0 || node.UsedCapacity > node.TotalCapacity {
				return fmt.Errorf("node %s: used_capacity outside [0, total_capacity]", node.ID)
			}
			if ids[node.ID] {
				return fmt.Errorf("node %s: id is already used", node.ID)
			}
			ids[node.ID] = true
		}
		if s.FallbackNode != "" && !ids[s.FallbackNode] {
			return fmt.Errorf("fallback node %s is not declared in the fleet", s.FallbackNode)
		}
	}

	targetIDs := make(map[string]bool)
	for _, t := range config.Fleet.Targets {
		if t.ID == "" {
			return fmt.Errorf("target id is required")
		}
		if t.MaxValue <= 0 {
			return fmt.Errorf("target %s: max_value must be greater than 0", t.ID)
		}
		if t.CurrentValue < 0 || t.CurrentValue > t.MaxValue {
			return fmt.Errorf("target %s: current_value outside [0, max_value]", t.ID)
		}
		if t.CurrentDefense < t.MinDefense {
			return fmt.Errorf("target %s: current_defense below min_defense", t.ID)
		}
		if targetIDs[t.ID] {
			return fmt.Errorf("target %s: id is already used", t.ID)
		}
		targetIDs[t.ID] = true
	}

	return nil
}
