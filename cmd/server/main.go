// Package main is the entry point for the aqicast AQI forecasting service.
// It ingests air quality readings, trains GA-KELM models on them and serves
// multi-hour forecasts over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/aqicast/internal/config"
	"github.com/aristath/aqicast/internal/di"
	"github.com/aristath/aqicast/internal/server"
	"github.com/aristath/aqicast/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires dependencies (database, repositories, services, jobs)
// 4. Restores the latest published model, if any
// 5. Starts the scheduler and HTTP server
// 6. Waits for a shutdown signal and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting aqicast")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Forecasts are served from the last published model until the next retrain
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	loaded, err := container.PredictionService.LoadLatest(loadCtx)
	loadCancel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load latest model")
	} else if !loaded {
		log.Warn().Msg("No published model yet, forecasts unavailable until first training")
	}

	srv := server.New(server.Config{
		Log:    log,
		DB:     container.DB,
		Bus:    container.EventBus,
		Models: container.PredictionService,
		Handlers: []server.RouteRegistrar{
			container.ReadingsHandler,
			container.PredictionHandler,
		},
		CORSOrigins: cfg.CORSOrigins,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()
	log.Info().Msg("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Waits for running jobs, including an in-flight retrain
	container.Scheduler.Stop()
	log.Info().Msg("Scheduler stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := container.DB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final WAL checkpoint failed")
	}

	log.Info().Msg("Server stopped")
}
