package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimerfeng/minerewards/internal/adsignal"
	"github.com/aimerfeng/minerewards/internal/cache"
	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/config"
	"github.com/aimerfeng/minerewards/internal/database"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/aimerfeng/minerewards/internal/logging"
	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/aimerfeng/minerewards/internal/server"
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
		Str("name", cfg.Server.Name).
		Str("store", cfg.Store.Driver).
		Msg("Starting rewards API server")

	ctx := context.Background()

	monitoring.Init()
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort)
	}

	deps := server.Deps{
		Verifier: adsignal.New(&cfg.AdSignal),
		Clock:    clock.System{},
	}

	switch cfg.Store.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory ledger store, balances are lost on restart")
		deps.Store = ledger.NewMemoryStore()
	default:
		db, err := database.New(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		deps.DB = db
		deps.Store = ledger.NewPostgresStore(db.Pool, ledger.RetryConfig{
			MaxRetries: uint64(cfg.Database.TxMaxRetries),
			BaseDelay:  cfg.Database.TxRetryBaseWait,
		})
	}

	if cfg.Redis.Enabled {
		rdb, err := cache.New(ctx, cfg.Redis.URL)
		if err != nil {
			// The limiter and idempotency guard are optional; claims stay
			// correct through ledger transactions alone.
			log.Error().Err(err).Msg("Redis unavailable, rate limiting and idempotency keys disabled")
		} else {
			defer rdb.Close()
			deps.Redis = rdb
		}
	}

	srv := server.NewAPIServer(cfg, deps)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("url", cfg.Server.URL).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
