package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hisab/internal/amqp"
	"hisab/internal/backend"
	"hisab/internal/config"
	"hisab/internal/currency"
	"hisab/internal/export"
	"hisab/internal/log"
	"hisab/internal/worker"
)

const (
	retryInterval = 2 * time.Minute
	retryParallel = 4
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting hisab-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	rates := currency.Default()
	if cfg.RatesFile != "" {
		var err error
		if rates, err = currency.LoadFile(cfg.RatesFile); err != nil {
			logger.Error("Failed to load exchange rates", "error", err, "path", cfg.RatesFile)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router, err := backend.Open(ctx, backend.Config{
		SQLiteDBPath: cfg.SQLiteDBPath,
		DatabaseURL:  cfg.DatabaseURL,
	}, logger)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer router.Close()

	var exporter export.Exporter
	switch cfg.ExportBackend {
	case "sheets":
		exporter, err = export.NewSheets(ctx, export.SheetsConfig{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsFile: cfg.GoogleCredentialsFile,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
		}, rates, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	default:
		exporter = export.NewMemory(rates)
		logger.Info("Using in-memory export")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(router, exporter, rates, cfg.DefaultCurrency, logger)

	go func() {
		if err := amqpClient.ConsumeChanges(ctx, cfg.WorkerPrefetch, syncWorker.HandleChange); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Exports that failed are retried until they succeed
	go func() {
		ticker := time.NewTicker(retryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := syncWorker.RetryFailed(ctx, retryParallel); err != nil {
					logger.Warn("Export retry failed", "error", err, "pending", len(syncWorker.Pending()))
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...", "pending", len(syncWorker.Pending()))
	cancel()
}
