// cmd/historian/main.go is an asynchronous historian service that pops game
// actions from a Redis queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/ichi/internal/cache"
	"github.com/jason-s-yu/ichi/internal/config"
	"github.com/jason-s-yu/ichi/internal/database"
	"github.com/jason-s-yu/ichi/internal/historian"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := cfg.NewLogger()
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatalf("schema: %v", err)
	}

	svc := historian.NewService(cache.NewQueue(rdb, cfg.QueueName), database.Store{DB: pool}, logger)
	svc.BatchSize = cfg.BatchSize
	svc.FlushDelay = cfg.FlushDelay
	svc.MaxFailures = cfg.MaxFailures
	svc.Inactivity = cfg.Inactivity

	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian exited")
	}
	logger.Info("Historian shutdown complete.")
}
