package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wnt/copytrail/internal/config"
	"github.com/wnt/copytrail/internal/database"
	"github.com/wnt/copytrail/internal/helius"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/queue"
	"github.com/wnt/copytrail/internal/services"
	"github.com/wnt/copytrail/internal/store"
	"github.com/wnt/copytrail/internal/syncer"
	"github.com/wnt/copytrail/internal/worker"
)

func main() {
	// Parse command-line arguments
	envFile := flag.String("envFile", ".env", "Path to .env file")
	flag.Parse()

	// Load environment variables from the specified file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	mainLogger := logger.New(cfg.LogLevel)
	mainLogger.Info().Msg("Starting copytrail")

	db, err := database.Connect(cfg)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	st := store.New(db)

	queueClient, err := queue.NewClient(cfg.RedisURL, mainLogger)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer queueClient.Close()

	provider, err := helius.NewClient(cfg, mainLogger)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to initialize provider client")
	}

	broadcaster := syncer.NewBroadcaster()
	defer broadcaster.Close()

	coordinator := syncer.NewCoordinator(cfg, st, provider, broadcaster, mainLogger)
	coordinator.SetEnricher(services.NewTokenEnricher(st, cfg.HeliusBaseURL, cfg.HeliusAPIKey, mainLogger))

	manager := worker.NewManager(cfg, queueClient, coordinator, mainLogger)
	if err := manager.Start(); err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to start worker manager")
	}

	// Expose Prometheus metrics
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		mainLogger.Info().Str("port", cfg.MetricsPort).Msg("Metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mainLogger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	// Mirror sync status events into the log so operators can follow runs
	// without a connected client.
	events, unsubscribe := broadcaster.Subscribe(64)
	defer unsubscribe()
	go func() {
		for event := range events {
			mainLogger.Debug().
				Str("level", string(event.Level)).
				Str("wallet", event.Wallet).
				Msg(event.Message)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	mainLogger.Info().Str("signal", sig.String()).Msg("Shutting down")

	if err := manager.Stop(); err != nil {
		mainLogger.Error().Err(err).Msg("Worker manager shutdown failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		mainLogger.Error().Err(err).Msg("Metrics server shutdown failed")
	}

	mainLogger.Info().Msg("Shutdown complete")
}
