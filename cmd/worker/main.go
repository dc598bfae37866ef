package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/config"
	"github.com/aimerfeng/minerewards/internal/database"
	"github.com/aimerfeng/minerewards/internal/jobs"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/aimerfeng/minerewards/internal/logging"
	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("stats_schedule", cfg.Worker.StatsSchedule).
		Str("pool_schedule", cfg.Worker.PoolStatsSchedule).
		Msg("Starting rewards worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitoring.Init()

	var (
		store ledger.Store
		pool  jobs.PoolStatter
	)
	switch cfg.Store.Driver {
	case "memory":
		log.Warn().Msg("Worker running against an empty in-memory store")
		store = ledger.NewMemoryStore()
	default:
		db, err := database.New(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		store = ledger.NewPostgresStore(db.Pool, ledger.RetryConfig{
			MaxRetries: uint64(cfg.Database.TxMaxRetries),
			BaseDelay:  cfg.Database.TxRetryBaseWait,
		})
		pool = db
	}

	scheduler, err := jobs.NewScheduler(store, pool, clock.System{}, &cfg.Worker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure job scheduler")
	}

	// Populate the gauges before the first scheduled tick
	if err := scheduler.RunNow(ctx, jobs.JobLedgerStats); err != nil {
		log.Error().Err(err).Msg("Initial ledger stats collection failed")
	}

	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job scheduler")
	}

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:      workerMux(scheduler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Int("port", cfg.Monitoring.PrometheusPort).Msg("Worker metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, stopping worker...")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Metrics server forced to shutdown")
	}

	log.Info().Msg("Worker exited gracefully")
}
