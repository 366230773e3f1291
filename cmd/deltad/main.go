// Package main provides the entry point for the prop-edge delta pipeline
// service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/prop-edge/internal/bus"
	"github.com/yourusername/prop-edge/internal/config"
	"github.com/yourusername/prop-edge/internal/database"
	"github.com/yourusername/prop-edge/internal/delta"
	"github.com/yourusername/prop-edge/internal/health"
	"github.com/yourusername/prop-edge/internal/ingest"
	applog "github.com/yourusername/prop-edge/internal/logger"
	"github.com/yourusername/prop-edge/internal/metrics"
	"github.com/yourusername/prop-edge/internal/scheduler"
	"github.com/yourusername/prop-edge/internal/store"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	logger     *logrus.Logger
	cfg        *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "deltad",
	Short: "Run the prop market delta pipeline",
	Long:  `Subscribes to prop market events and runs them through valuation, edge derivation and rate-limited portfolio optimization.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger = applog.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Database.Enabled {
			return fmt.Errorf("database is not enabled in configuration")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := database.NewDB(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("Database schema applied")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("deltad %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}

	// Load AWS secrets if enabled
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return fmt.Errorf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	return config.Validate(cfg)
}

func runPipeline() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics.InitRegistry()

	logger.WithFields(logrus.Fields{
		"version":     Version,
		"environment": cfg.App.Environment,
	}).Info("Starting prop-edge delta pipeline")

	healthChecks := make(map[string]health.Pinger)

	// Stores: PostgreSQL when enabled, in-memory otherwise
	var stores *store.Stores
	var db *database.DB
	if cfg.Database.Enabled {
		var err error
		db, err = database.NewDB(ctx, &cfg.Database)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}

		stores = store.NewPostgresStores(db)
		healthChecks["database"] = db
	} else {
		stores = store.NewMemoryStores(cfg.Pipeline.ValuationTTL())
		logger.Info("Database disabled, using in-memory stores")
	}

	// Event bus: Redis when enabled, in-process otherwise
	var eventBus bus.Bus
	var redisBus *bus.RedisBus
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisBus = bus.NewRedisBus(client, logger)
		if err := redisBus.Ping(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisBus.Close()

		eventBus = redisBus
		healthChecks["redis"] = redisBus
	} else {
		eventBus = bus.NewMemoryBus(logger)
		logger.Info("Redis disabled, using in-process event bus")
	}

	// Pipeline manager
	manager := delta.NewManager(eventBus, stores, &cfg.Pipeline, logger)
	if err := manager.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start delta handler manager")
	}
	defer manager.Stop()

	// Ingestion: polling, optional stream, scheduled sweep
	var sched *scheduler.Scheduler
	if cfg.Ingestion.Enabled {
		client := ingest.NewProviderClient(&cfg.Provider, logger)
		defer client.Close()

		poller := ingest.NewPoller(client, eventBus, cfg.Pipeline.SupportedSports, logger)

		sched = scheduler.NewScheduler(logger)
		if err := sched.SchedulePolling(cfg.Ingestion.PollIntervalSeconds, "provider_poll", poller.PollOnce); err != nil {
			logger.WithError(err).Fatal("Failed to schedule provider polling")
		}
		if cfg.Ingestion.SweepSchedule != "" {
			sweep := func(ctx context.Context) error {
				_, err := manager.Portfolio().Sweep(ctx)
				return err
			}
			if err := sched.ScheduleSweep(cfg.Ingestion.SweepSchedule, "portfolio_sweep", sweep); err != nil {
				logger.WithError(err).Fatal("Failed to schedule portfolio sweep")
			}
		}
		if err := sched.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start scheduler")
		}
		defer sched.Stop()

		if cfg.Ingestion.StreamEnabled && cfg.Provider.StreamURL != "" {
			stream := ingest.NewStreamClient(cfg.Provider.StreamURL, cfg.Provider.APIKey, eventBus, logger)
			go func() {
				if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
					logger.WithError(err).Error("Provider stream terminated")
				}
			}()
		}
	}

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux := http.NewServeMux()
		mux.Handle(path, metrics.Handler())

		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.WithField("port", cfg.Metrics.Port).Info("Metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics server error")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// Health server
	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Commit:      GitCommit,
		Port:        cfg.Health.Port,
		Logger:      logger,
		Checks:      healthChecks,
		Status:      func() any { return manager.GetStatus() },
	})
	if err := healthServer.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start health server")
	}
	healthServer.SetReady(true)

	logger.Info("Delta pipeline running")
	<-ctx.Done()
	logger.Info("Shutdown signal received")
}
