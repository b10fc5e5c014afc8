package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hisab/internal/amqp"
	"hisab/internal/backend"
	"hisab/internal/cache"
	"hisab/internal/config"
	"hisab/internal/currency"
	apphttp "hisab/internal/http"
	"hisab/internal/ledger"
	"hisab/internal/log"
	"hisab/internal/middleware/gate"
	"hisab/internal/middleware/ratelimit"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentApp})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.NewFields().WithError(err).ToSlice()...)
		os.Exit(1)
	}

	rates := currency.Default()
	if cfg.RatesFile != "" {
		var err error
		if rates, err = currency.LoadFile(cfg.RatesFile); err != nil {
			logger.Error("Failed to load exchange rates", "error", err, "path", cfg.RatesFile)
			os.Exit(1)
		}
		logger.Info("Loaded exchange rates", "path", cfg.RatesFile)
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

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithSessionCache(cfg.SessionCacheSize, cfg.SessionTTL),
		ledger.WithDefaultCurrency(cfg.DefaultCurrency),
	}
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		opts = append(opts, ledger.WithPublisher(publisher))
		logger.Info("Publishing change events", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}
	svc := ledger.NewService(router, rates, opts...)

	sessions := cache.NewManager(logger)
	sessions.Register(svc.Sessions())
	sessions.StartCleanup(time.Minute)
	defer sessions.Stop()

	g, err := gate.New(cfg.AppPasswordHash, logger, "/api/unlock")
	if err != nil {
		logger.Error("Invalid app password hash", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(net.JoinHostPort("", cfg.Port), apphttp.Deps{
		Ledger:    svc,
		Rates:     rates,
		Ready:     router,
		Gate:      g,
		RateLimit: ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute},
		Logger:    logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			return
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting hisab server",
		"port", cfg.Port,
		"remote", cfg.DatabaseURL != "",
		"gated", g.Enabled(),
		"currency", cfg.DefaultCurrency)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		cancel()
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
