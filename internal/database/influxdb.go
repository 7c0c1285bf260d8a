package database

import (
	"context"
	"fmt"
	"time"

	"fleet-sched/internal/config"
	"fleet-sched/internal/earnings"
	"fleet-sched/internal/logging"
	"fleet-sched/internal/strategy"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
)

// CyclePoint summarizes one scheduler cycle for the time-series sink.
type CyclePoint struct {
	RunID             int
	Timestamp         time.Time
	Targets           int
	TasksRanked       int
	UnitsRequired     int
	UnitsAssigned     int
	Nodes             int
	CapacityAvailable float64
	Profile           strategy.Profile
	Stagnant          bool
	DurationSeconds   float64
}

type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

func NewClient(cfg config.DatabaseConfig) (*Client, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Password)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}

	if health.Status != "pass" {
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": health.Message,
		}).Error("InfluxDB health check failed")
		return nil, fmt.Errorf("influxdb health check failed: %s", health.Status)
	}

	writeAPI := client.WriteAPIBlocking(cfg.Org, cfg.Name)
	queryAPI := client.QueryAPI(cfg.Org)

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Name,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   cfg.Name,
		org:      cfg.Org,
	}, nil
}

// GetLastRunID returns the highest run id seen in the last 30 days, so a new
// process can continue the sequence.
func (c *Client) GetLastRunID() (int, error) {
	ctx := context.Background()

	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -30d)
		|> filter(fn: (r) => r._measurement == "cycle_metrics")
		|> distinct(column: "run_id")
		|> map(fn: (r) => ({_value: int(v: r.run_id)}))
		|> max()
		|> yield(name: "max_run_id")
	`, c.bucket)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query last run ID: %w", err)
	}
	defer result.Close()

	maxID := 0
	for result.Next() {
		if result.Record().Value() != nil {
			if id, ok := result.Record().Value().(int64); ok {
				maxID = int(id)
			}
		}
	}

	if result.Err() != nil {
		return 0, fmt.Errorf("error reading query results: %w", result.Err())
	}

	return maxID, nil
}

// WriteCycle writes one cycle summary point.
func (c *Client) WriteCycle(p CyclePoint) error {
	point := influxdb2.NewPoint("cycle_metrics",
		map[string]string{
			"run_id":  fmt.Sprintf("%d", p.RunID),
			"profile": p.Profile.String(),
		},
		map[string]interface{}{
			"targets":            p.Targets,
			"tasks_ranked":       p.TasksRanked,
			"units_required":     p.UnitsRequired,
			"units_assigned":     p.UnitsAssigned,
			"nodes":              p.Nodes,
			"capacity_available": p.CapacityAvailable,
			"stagnant":           p.Stagnant,
			"duration_seconds":   p.DurationSeconds,
		},
		p.Timestamp)

	if err := c.writeAPI.WritePoint(context.Background(), point); err != nil {
		return fmt.Errorf("failed to write cycle point: %w", err)
	}
	return nil
}

// WriteEarningsSample writes one throughput sample.
func (c *Client) WriteEarningsSample(runID int, s earnings.Sample) error {
	point := influxdb2.NewPoint("earnings_sample",
		map[string]string{
			"run_id": fmt.Sprintf("%d", runID),
		},
		map[string]interface{}{
			"value":   s.Value,
			"rate":    s.Rate,
			"delta_t": s.DeltaT,
		},
		s.Timestamp)

	if err := c.writeAPI.WritePoint(context.Background(), point); err != nil {
		return fmt.Errorf("failed to write earnings sample: %w", err)
	}
	return nil
}

// WriteStrategyChange writes one profile transition event.
func (c *Client) WriteStrategyChange(runID int, b strategy.Broadcast) error {
	point := influxdb2.NewPoint("strategy_change",
		map[string]string{
			"run_id":  fmt.Sprintf("%d", runID),
			"profile": b.Profile.String(),
		},
		map[string]interface{}{
			"reason":             b.Reason,
			"value_fraction":     b.Overrides.ValueFraction,
			"defense_margin":     b.Overrides.DefenseMargin,
			"extract_fraction":   b.Overrides.ExtractFraction,
			"density_multiplier": b.Overrides.DensityMultiplier,
			"top_targets":        b.Overrides.TopTargets,
		},
		b.Timestamp)

	if err := c.writeAPI.WritePoint(context.Background(), point); err != nil {
		return fmt.Errorf("failed to write strategy change: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
