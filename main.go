package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"market-data-cache/internal/cache"
	"market-data-cache/internal/config"
	"market-data-cache/internal/memstore"
	"market-data-cache/internal/provider"
	"market-data-cache/internal/scheduler"
	"market-data-cache/internal/server"
	"market-data-cache/internal/tiers"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	tierManager := tiers.NewManager(cfg, logger)
	tierManager.Init()
	defer tierManager.Close()

	mem := memstore.New()
	facade := cache.NewFacade(tierManager, mem, cfg.TTL(), logger)
	fetcher := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	manager := cache.NewManager(facade, fetcher, logger)

	if cfg.RefreshSchedule != "" {
		sched := scheduler.New(manager, cfg.Tickers(), cfg.RefreshSchedule, logger)
		if err := sched.Start(); err != nil {
			logger.Fatal("failed to start refresh scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	handlers := server.New(facade, manager, tierManager, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
