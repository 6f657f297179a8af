package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/kevinb28-21/CropView-sub001/internal/config"
	"github.com/kevinb28-21/CropView-sub001/internal/container"
	"github.com/kevinb28-21/CropView-sub001/internal/logger"
	"github.com/kevinb28-21/CropView-sub001/internal/worker"

	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required: the worker claims images from the database")
	}

	// Cancelling the context is the shutdown signal; the worker finishes
	// its in-flight batch before returning
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer c.Close()

	w := worker.New(worker.Config{
		PollInterval:         cfg.PollInterval,
		BatchSize:            cfg.BatchSize,
		Concurrency:          cfg.WorkerConcurrency,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		StaleAfter:           cfg.ReclaimStaleAfter,
		MaxImageRetries:      cfg.MaxImageRetries,
	}, c.Service(), c.Repository(), logger.Logger)

	logger.WithFields(logrus.Fields{
		"poll_interval": cfg.PollInterval,
		"batch_size":    cfg.BatchSize,
		"concurrency":   cfg.WorkerConcurrency,
	}).Info("Starting background worker")

	if err := w.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Worker exited with error")
	}
	logger.Logger.Info("Worker exited")
}
