package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/internal/metrics"
	"github.com/kevinb28-21/CropView-sub001/internal/repository"
	"github.com/kevinb28-21/CropView-sub001/internal/service"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

const maxBackoff = 60 * time.Second

// Config tunes the polling worker
type Config struct {
	// PollInterval is the pause between claim attempts
	PollInterval time.Duration

	// BatchSize caps how many images one claim pulls
	BatchSize int

	// Concurrency bounds simultaneous analyses
	Concurrency int

	// MaxConsecutiveErrors aborts the worker when claims keep failing
	MaxConsecutiveErrors int

	// StaleAfter reclaims images another worker claimed but never finished
	StaleAfter time.Duration

	// MaxImageRetries fails an image for good once it has stalled in
	// processing that many times
	MaxImageRetries int
}

// DefaultConfig returns the standard worker tuning
func DefaultConfig() Config {
	return Config{
		PollInterval:         10 * time.Second,
		BatchSize:            5,
		Concurrency:          4,
		MaxConsecutiveErrors: 10,
		StaleAfter:           10 * time.Minute,
		MaxImageRetries:      3,
	}
}

// Worker polls for uploaded field images and pushes them through the
// analysis service
type Worker struct {
	cfg    Config
	svc    service.FieldAnalysisService
	repo   repository.Store
	pool   *Pool
	logger *logrus.Logger

	consecutiveErrors int
}

// New creates a worker. Zero config fields fall back to defaults.
func New(cfg Config, svc service.FieldAnalysisService, repo repository.Store, logger *logrus.Logger) *Worker {
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = defaults.MaxConsecutiveErrors
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	if cfg.MaxImageRetries <= 0 {
		cfg.MaxImageRetries = defaults.MaxImageRetries
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Worker{
		cfg:    cfg,
		svc:    svc,
		repo:   repo,
		pool:   NewPool(cfg.Concurrency),
		logger: logger,
	}
}

// Run polls until the context is cancelled or claims keep failing.
// Claimed images are always marked completed or failed before the next
// claim, so a clean shutdown leaves nothing stuck in processing.
func (w *Worker) Run(ctx context.Context) error {
	w.pool.Start()
	defer w.pool.Close()

	w.logger.WithFields(logrus.Fields{
		"poll_interval": w.cfg.PollInterval,
		"batch_size":    w.cfg.BatchSize,
		"concurrency":   w.cfg.Concurrency,
	}).Info("Worker started")

	for {
		if err := w.tick(ctx); err != nil {
			w.consecutiveErrors++
			if w.consecutiveErrors >= w.cfg.MaxConsecutiveErrors {
				w.logger.WithError(err).Error("Worker aborting after repeated claim failures")
				return apperrors.NewInternalError("worker exceeded consecutive error limit", err)
			}
			backoff := w.backoff()
			w.logger.WithError(err).WithFields(logrus.Fields{
				"consecutive_errors": w.consecutiveErrors,
				"backoff":            backoff,
			}).Warn("Worker tick failed")
			if !w.sleep(ctx, backoff) {
				return nil
			}
			continue
		}
		w.consecutiveErrors = 0

		if !w.sleep(ctx, w.cfg.PollInterval) {
			w.logger.Info("Worker stopped")
			return nil
		}
	}
}

// tick reclaims stale work, claims a batch and processes it to completion
func (w *Worker) tick(ctx context.Context) error {
	if reclaimed, err := w.repo.ReclaimStale(ctx, w.cfg.StaleAfter, w.cfg.MaxImageRetries); err != nil {
		return err
	} else if reclaimed > 0 {
		w.logger.WithField("count", reclaimed).Warn("Reclaimed stale images")
	}

	claimed, err := w.repo.ClaimBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	w.logger.WithField("count", len(claimed)).Info("Claimed image batch")

	for i := range claimed {
		img := claimed[i]
		metrics.RecordWorkerJobQueued()
		w.pool.Submit(func() {
			w.processOne(ctx, &img)
		})
	}
	w.pool.Wait()
	return nil
}

// processOne runs a single claimed image through the service and records
// its final status
func (w *Worker) processOne(ctx context.Context, img *models.FieldImage) {
	log := w.logger.WithFields(logrus.Fields{
		"image_id": img.ID,
		"filename": img.Filename,
		"channels": img.Channels,
	})

	result, err := w.svc.ProcessImage(ctx, img)
	if err != nil {
		log.WithError(err).Warn("Image processing failed")
		if markErr := w.repo.MarkFailed(ctx, img.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("Failed to record image failure")
		}
		metrics.RecordWorkerJobProcessed("failed")
		return
	}

	if err := w.repo.MarkCompleted(ctx, img.ID); err != nil {
		log.WithError(err).Error("Failed to record image completion")
		metrics.RecordWorkerJobProcessed("failed")
		return
	}

	log.WithFields(logrus.Fields{
		"category":     result.Classification.Category,
		"health_score": result.HealthScore,
	}).Info("Image processed")
	metrics.RecordWorkerJobProcessed("completed")
}

// backoff grows exponentially with consecutive errors, capped at a minute
func (w *Worker) backoff() time.Duration {
	d := w.cfg.PollInterval
	for i := 1; i < w.consecutiveErrors; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleep waits for the duration, returning false when the context ends first
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
