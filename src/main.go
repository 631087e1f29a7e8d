package main

import (
	"context"
	"errors"
	"fmt"
	"myndis-engine/src/api"
	"myndis-engine/src/config"
	"myndis-engine/src/db"
	"myndis-engine/src/engine"
	"myndis-engine/src/events"
	"myndis-engine/src/logger"
	"myndis-engine/src/metrics"
	"myndis-engine/src/models"
	"myndis-engine/src/store"
	"myndis-engine/src/thresholds"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "myndis-engine",
	Short: "Budget validation and anomaly detection engine",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the plan tables and the audit journal, then exit",
	RunE:  runMigrate,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Plan store
	var planStore store.PlanStore
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("DB connection failed: %w", err)
		}
		defer pool.Close()
		if err := db.InitCache(); err != nil {
			return fmt.Errorf("history cache: %w", err)
		}
		planStore = store.NewPostgresStore(pool, cfg.Engine.HistoryCacheTTL)
	} else {
		log.Warn("DATABASE_URL not set, plans are kept in memory")
		planStore = store.NewMemoryStore()
	}

	// Audit journal
	var versions thresholds.VersionRepository
	var journal metrics.Journal
	if cfg.AuditDBPath != "" {
		j, err := db.OpenJournal(cfg.AuditDBPath)
		if err != nil {
			return err
		}
		defer j.Close()
		versions, journal = j, j
	} else {
		log.Warn("AUDIT_DB_PATH not set, thresholds and feedback are kept in memory")
		versions, journal = thresholds.NewMemoryRepository(), metrics.NewMemoryJournal()
	}

	var seed []models.ThresholdPair
	if cfg.ThresholdsFile != "" {
		seed, err = config.LoadThresholdFile(cfg.ThresholdsFile)
		if err != nil {
			return err
		}
	}
	th, err := thresholds.NewStore(ctx, versions, log, seed)
	if err != nil {
		return err
	}

	agg := metrics.NewAggregator(journal, cfg.Engine.MetricsWindow, cfg.Engine.PendingDecisions)
	if err := agg.Restore(ctx); err != nil {
		return err
	}

	var pub events.Publisher = events.NopPublisher{}
	if cfg.RedisAddr != "" {
		rp, err := events.NewRedisPublisher(log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return err
		}
		pub = events.NewAsyncPublisher(rp, log, cfg.EventQueueSize, cfg.EventPublishTimeout)
	}
	defer pub.Close()

	eng := engine.New(planStore, th, agg, pub, cfg.Engine, log)
	router := api.NewRouter(eng, log, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("API server running", "port", cfg.Port, "threshold_version", th.Current().Version())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("DB connection failed: %w", err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		log.Info("Plan schema applied")
	}
	if cfg.AuditDBPath != "" {
		j, err := db.OpenJournal(cfg.AuditDBPath)
		if err != nil {
			return err
		}
		_ = j.Close()
		log.Info("Audit journal ready", "path", cfg.AuditDBPath)
	}
	return nil
}
