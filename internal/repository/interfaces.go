package repository

import (
	"context"
	"time"

	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// ImageStore defines data access for field images moving through the
// processing flow
type ImageStore interface {
	// InsertImage stores a newly uploaded field image in status "uploaded"
	InsertImage(ctx context.Context, img *models.FieldImage) error

	// GetImage retrieves a field image by id
	GetImage(ctx context.Context, id string) (*models.FieldImage, error)

	// ClaimBatch atomically moves up to limit uploaded images into status
	// "processing" and returns them. Concurrent workers never claim the
	// same image twice.
	ClaimBatch(ctx context.Context, limit int) ([]models.FieldImage, error)

	// MarkCompleted finishes an image's processing flow
	MarkCompleted(ctx context.Context, id string) error

	// MarkFailed records a processing failure and bumps the retry count
	MarkFailed(ctx context.Context, id string, reason string) error

	// ReclaimStale returns images stuck in "processing" longer than
	// olderThan back to "uploaded" so another worker can pick them up,
	// bumping their retry count. Images that already stalled maxRetries
	// times are marked failed instead. Returns the number of requeued
	// images.
	ReclaimStale(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error)
}

// AnalysisStore defines data access for analysis results
type AnalysisStore interface {
	// SaveAnalysis stores an analysis record and its stress zones in one
	// transaction. Re-analyzing an image replaces the previous record and
	// zones for that image.
	SaveAnalysis(ctx context.Context, rec models.AnalysisRecord, zones []models.StressZone) error

	// GetAnalysisByImageID retrieves the stored analysis and stress zones
	// for a field image
	GetAnalysisByImageID(ctx context.Context, imageID string) (*models.AnalysisRecord, []models.StressZoneRecord, error)
}

// Store combines the data access interfaces over one backing database
type Store interface {
	ImageStore
	AnalysisStore

	// Ping verifies the database connection is alive
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool
	Close() error
}
