package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fleet-sched/internal/config"
	"fleet-sched/internal/database"
	"fleet-sched/internal/fleet"
	"fleet-sched/internal/logging"
	"fleet-sched/internal/observability"
	"fleet-sched/internal/scheduler"
	"fleet-sched/internal/snapshot"
	"fleet-sched/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const Version = "0.3.0"

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
	} else {
		// Try to load from the application directory
		if execPath, err := os.Executable(); err == nil {
			appDir := filepath.Dir(execPath)
			envFile = filepath.Join(appDir, ".env")
			if _, err := os.Stat(envFile); err == nil {
				if err := godotenv.Load(envFile); err != nil {
					logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
				} else {
					logger.WithField("file", envFile).Debug("Loaded environment variables")
				}
			}
		}
	}
}

// validateEnvironment checks the variables the database sink expands from the
// config file. Only required when the sink is enabled.
func validateEnvironment() error {
	logger := logging.GetLogger()

	requiredVars := []string{
		"INFLUXDB_HOST",
		"INFLUXDB_TOKEN",
		"INFLUXDB_ORG",
		"INFLUXDB_BUCKET",
	}

	var missing []string
	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missing = append(missing, varName)
		}
	}

	if len(missing) > 0 {
		logger.WithField("missing_vars", missing).Error("Missing required environment variables")
		return fmt.Errorf("missing required environment variables: %v. Please ensure your .env file contains these variables", missing)
	}

	logger.Debug("All required environment variables are present")
	return nil
}

func main() {
	logger := logging.GetLogger()

	loadEnvironment()

	var configFile string
	var logLevel string
	var forceReason string

	rootCmd := &cobra.Command{
		Use:   "fleet-sched",
		Short: "Cooperative fleet scheduler",
		Long:  "A single-loop scheduler that allocates fragmented node capacity across a fleet toward prioritized targets",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(configFile)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a scheduler configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Dump the persisted scheduler state",
		Long:  "Print the snapshots written by a running (or last) scheduler process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(configFile)
		},
	}

	strategyCmd := &cobra.Command{
		Use:   "strategy",
		Short: "Inspect or force the strategy profile",
	}

	forceCmd := &cobra.Command{
		Use:   "force [profile]",
		Short: "Force a strategy profile",
		Long:  "Write a forced strategy record that a running scheduler adopts on its next cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forceStrategy(configFile, args[0], forceReason)
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to scheduler configuration file")
	runCmd.MarkFlagRequired("config")

	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to scheduler configuration file")
	validateCmd.MarkFlagRequired("config")

	statusCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to scheduler configuration file")
	statusCmd.MarkFlagRequired("config")

	forceCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to scheduler configuration file")
	forceCmd.Flags().StringVar(&forceReason, "reason", "operator_forced", "Reason recorded with the change")
	forceCmd.MarkFlagRequired("config")

	strategyCmd.AddCommand(forceCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(strategyCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("Command execution failed")
	}
}

func validateConfig(configFile string) error {
	logger := logging.GetLogger()

	_, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	logger.WithField("config_file", configFile).Info("Configuration is valid")
	return nil
}

func runScheduler(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Failed to load configuration")
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set log level from configuration
	if err := logging.SetLogLevel(cfg.Scheduler.LogLevel); err != nil {
		logger.WithField("log_level", cfg.Scheduler.LogLevel).WithError(err).Warn("Invalid log level in config, using INFO")
		logging.SetLogLevel("info")
	}
	logging.SetSchedulerLogLevel(cfg.Scheduler.LogLevel)

	// Built-in static fleet serves all collaborator roles
	static, err := fleet.NewStatic(cfg.Fleet)
	if err != nil {
		logger.WithError(err).Error("Failed to build fleet")
		return fmt.Errorf("failed to build fleet: %w", err)
	}

	store, err := snapshot.NewStore(cfg.Scheduler.Snapshots.Dir)
	if err != nil {
		logger.WithField("dir", cfg.Scheduler.Snapshots.Dir).WithError(err).Error("Failed to open snapshot store")
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}

	var db *database.Client
	if cfg.Scheduler.Data.DB.Enabled {
		if err := validateEnvironment(); err != nil {
			return err
		}
		db, err = database.NewClient(cfg.Scheduler.Data.DB)
		if err != nil {
			logger.WithError(err).Error("Failed to create database client")
			return fmt.Errorf("failed to create database client: %w", err)
		}
		defer db.Close()
	}

	if cfg.Scheduler.Metrics.Listen != "" {
		observability.Serve(cfg.Scheduler.Metrics.Listen)
	}

	loop, err := scheduler.NewLoop(cfg, scheduler.Collaborators{
		Discovery: static,
		Targets:   static,
		Models:    static,
		Metrics:   static,
	}, store, db)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize scheduler")
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, shutting down")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"name":    cfg.Scheduler.Name,
		"version": Version,
		"nodes":   len(cfg.Fleet.Nodes),
		"targets": len(cfg.Fleet.Targets),
	}).Info("Starting scheduler")

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		logger.WithError(err).Error("Scheduler stopped")
		return err
	}

	logger.Info("Scheduler stopped cleanly")
	return nil
}

func showStatus(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := snapshot.NewStore(cfg.Scheduler.Snapshots.Dir)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}

	names := []string{
		snapshot.NameStrategy,
		snapshot.NamePool,
		snapshot.NameAssignments,
		snapshot.NameTracking,
		snapshot.NameBroadcast,
	}

	for _, name := range names {
		data, err := store.Raw(name)
		if err != nil {
			logger.WithField("snapshot", name).Debug("No snapshot found")
			continue
		}
		fmt.Printf("=== %s ===\n", name)
		fmt.Println(string(data))
	}

	return nil
}

// forceStrategy writes a forced strategy record to the snapshot store. A
// running scheduler adopts it at the start of its next cycle.
func forceStrategy(configFile, profileName, reason string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	profile, err := strategy.ParseProfile(profileName)
	if err != nil {
		return err
	}

	store, err := snapshot.NewStore(cfg.Scheduler.Snapshots.Dir)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}

	bc := strategy.Broadcast{
		Profile:   profile,
		Reason:    reason,
		Timestamp: time.Now(),
		Overrides: profile.Overrides(),
	}
	if err := store.Save(snapshot.NameBroadcast, bc); err != nil {
		return fmt.Errorf("failed to write strategy record: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"profile": profile.String(),
		"reason":  reason,
	}).Info("Strategy profile forced")
	return nil
}
