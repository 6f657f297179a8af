package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// imageColumns lists the field_images columns scanned into models.FieldImage.
// updated_at is bookkeeping for stale-claim detection and stays out of the
// model.
const imageColumns = `id, filename, storage_key, source_url, channels, status,
	gps_latitude, gps_longitude, retry_count, last_error, uploaded_at, processed_at`

const analysisColumns = `id, image_id,
	ndvi_mean, ndvi_std, ndvi_min, ndvi_max,
	savi_mean, savi_std, savi_min, savi_max,
	gndvi_mean, gndvi_std, gndvi_min, gndvi_max,
	health_score, health_status, summary, analysis_type,
	model_version, confidence, overlay_key, created_at`

const schemaDDL = `
CREATE TABLE IF NOT EXISTS field_images (
	id            UUID PRIMARY KEY,
	filename      TEXT NOT NULL,
	storage_key   TEXT NOT NULL,
	source_url    TEXT,
	channels      INT  NOT NULL,
	status        TEXT NOT NULL DEFAULT 'uploaded',
	gps_latitude  DOUBLE PRECISION,
	gps_longitude DOUBLE PRECISION,
	retry_count   INT  NOT NULL DEFAULT 0,
	last_error    TEXT,
	uploaded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at  TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_field_images_status
	ON field_images (status, uploaded_at);

CREATE TABLE IF NOT EXISTS crop_analyses (
	id            UUID PRIMARY KEY,
	image_id      UUID NOT NULL UNIQUE REFERENCES field_images (id) ON DELETE CASCADE,
	ndvi_mean     DOUBLE PRECISION,
	ndvi_std      DOUBLE PRECISION,
	ndvi_min      DOUBLE PRECISION,
	ndvi_max      DOUBLE PRECISION,
	savi_mean     DOUBLE PRECISION,
	savi_std      DOUBLE PRECISION,
	savi_min      DOUBLE PRECISION,
	savi_max      DOUBLE PRECISION,
	gndvi_mean    DOUBLE PRECISION,
	gndvi_std     DOUBLE PRECISION,
	gndvi_min     DOUBLE PRECISION,
	gndvi_max     DOUBLE PRECISION,
	health_score  DOUBLE PRECISION NOT NULL,
	health_status TEXT NOT NULL,
	summary       TEXT NOT NULL,
	analysis_type TEXT NOT NULL,
	model_version TEXT,
	confidence    DOUBLE PRECISION NOT NULL,
	overlay_key   TEXT,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stress_zones (
	analysis_id UUID NOT NULL REFERENCES crop_analyses (id) ON DELETE CASCADE,
	grid_x      INT NOT NULL,
	grid_y      INT NOT NULL,
	severity    DOUBLE PRECISION NOT NULL,
	index_value DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (analysis_id, grid_x, grid_y)
);
`

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to PostgreSQL and configures the connection pool
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, apperrors.NewValidationError("database URL must not be empty", nil)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to connect to database", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return &PostgresStore{db: db}, nil
}

// Migrate creates the schema if it does not exist yet
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return apperrors.NewStorageError("failed to migrate schema", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewStorageError("database ping failed", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InsertImage stores a newly uploaded field image
func (s *PostgresStore) InsertImage(ctx context.Context, img *models.FieldImage) error {
	const query = `
		INSERT INTO field_images (
			id, filename, storage_key, source_url, channels, status,
			gps_latitude, gps_longitude, retry_count, uploaded_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`

	_, err := s.db.ExecContext(ctx, query,
		img.ID, img.Filename, img.StorageKey, img.SourceURL, img.Channels,
		img.Status, img.GPSLatitude, img.GPSLongitude, img.RetryCount,
		img.UploadedAt)
	if err != nil {
		return apperrors.NewStorageError("failed to insert field image", err)
	}
	return nil
}

// GetImage retrieves a field image by id
func (s *PostgresStore) GetImage(ctx context.Context, id string) (*models.FieldImage, error) {
	query := fmt.Sprintf(`SELECT %s FROM field_images WHERE id = $1`, imageColumns)

	var img models.FieldImage
	if err := s.db.GetContext(ctx, &img, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("field image %s not found", id), err)
		}
		return nil, apperrors.NewStorageError("failed to load field image", err)
	}
	return &img, nil
}

// ClaimBatch atomically claims up to limit uploaded images for processing.
// SKIP LOCKED keeps concurrent workers from claiming the same rows.
func (s *PostgresStore) ClaimBatch(ctx context.Context, limit int) ([]models.FieldImage, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		UPDATE field_images
		SET status = '%s', updated_at = now()
		WHERE id IN (
			SELECT id FROM field_images
			WHERE status = '%s'
			ORDER BY uploaded_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`,
		models.StatusProcessing, models.StatusUploaded, imageColumns)

	var claimed []models.FieldImage
	if err := s.db.SelectContext(ctx, &claimed, query, limit); err != nil {
		return nil, apperrors.NewStorageError("failed to claim image batch", err)
	}
	return claimed, nil
}

// MarkCompleted finishes an image's processing flow
func (s *PostgresStore) MarkCompleted(ctx context.Context, id string) error {
	const query = `
		UPDATE field_images
		SET status = $2, processed_at = now(), last_error = NULL, updated_at = now()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, models.StatusCompleted)
	if err != nil {
		return apperrors.NewStorageError("failed to mark image completed", err)
	}
	return s.requireRow(res, id)
}

// MarkFailed records a processing failure and bumps the retry count
func (s *PostgresStore) MarkFailed(ctx context.Context, id string, reason string) error {
	const query = `
		UPDATE field_images
		SET status = $2, retry_count = retry_count + 1, last_error = $3,
			processed_at = now(), updated_at = now()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, models.StatusFailed, reason)
	if err != nil {
		return apperrors.NewStorageError("failed to mark image failed", err)
	}
	return s.requireRow(res, id)
}

// ReclaimStale returns images stuck in processing back to uploaded so the
// next poll retries them, bumping their retry count. Images that already
// stalled maxRetries times are marked failed instead; without that cap a
// capture that keeps crashing its worker would be reclaimed forever.
func (s *PostgresStore) ReclaimStale(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error) {
	const giveUp = `
		UPDATE field_images
		SET status = $1, last_error = $2, processed_at = now(), updated_at = now()
		WHERE status = $3 AND updated_at < $4 AND retry_count >= $5`

	const requeue = `
		UPDATE field_images
		SET status = $1, retry_count = retry_count + 1, updated_at = now()
		WHERE status = $2 AND updated_at < $3 AND retry_count < $4`

	cutoff := time.Now().UTC().Add(-olderThan)

	if _, err := s.db.ExecContext(ctx, giveUp, models.StatusFailed,
		"exceeded retry limit after stalled processing",
		models.StatusProcessing, cutoff, maxRetries); err != nil {
		return 0, apperrors.NewStorageError("failed to mark exhausted images", err)
	}

	res, err := s.db.ExecContext(ctx, requeue,
		models.StatusUploaded, models.StatusProcessing, cutoff, maxRetries)
	if err != nil {
		return 0, apperrors.NewStorageError("failed to reclaim stale images", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStorageError("failed to count reclaimed images", err)
	}
	return int(n), nil
}

// SaveAnalysis upserts the analysis record for an image and replaces its
// stress zones in the same transaction. When an image is re-analyzed the
// existing row keeps its id; the zones are rewritten against that id.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, rec models.AnalysisRecord, zones []models.StressZone) error {
	const upsert = `
		INSERT INTO crop_analyses (
			id, image_id,
			ndvi_mean, ndvi_std, ndvi_min, ndvi_max,
			savi_mean, savi_std, savi_min, savi_max,
			gndvi_mean, gndvi_std, gndvi_min, gndvi_max,
			health_score, health_status, summary, analysis_type,
			model_version, confidence, overlay_key, created_at
		) VALUES (
			:id, :image_id,
			:ndvi_mean, :ndvi_std, :ndvi_min, :ndvi_max,
			:savi_mean, :savi_std, :savi_min, :savi_max,
			:gndvi_mean, :gndvi_std, :gndvi_min, :gndvi_max,
			:health_score, :health_status, :summary, :analysis_type,
			:model_version, :confidence, :overlay_key, :created_at
		)
		ON CONFLICT (image_id) DO UPDATE SET
			ndvi_mean = EXCLUDED.ndvi_mean, ndvi_std = EXCLUDED.ndvi_std,
			ndvi_min = EXCLUDED.ndvi_min, ndvi_max = EXCLUDED.ndvi_max,
			savi_mean = EXCLUDED.savi_mean, savi_std = EXCLUDED.savi_std,
			savi_min = EXCLUDED.savi_min, savi_max = EXCLUDED.savi_max,
			gndvi_mean = EXCLUDED.gndvi_mean, gndvi_std = EXCLUDED.gndvi_std,
			gndvi_min = EXCLUDED.gndvi_min, gndvi_max = EXCLUDED.gndvi_max,
			health_score = EXCLUDED.health_score,
			health_status = EXCLUDED.health_status,
			summary = EXCLUDED.summary,
			analysis_type = EXCLUDED.analysis_type,
			model_version = EXCLUDED.model_version,
			confidence = EXCLUDED.confidence,
			overlay_key = EXCLUDED.overlay_key,
			created_at = EXCLUDED.created_at
		RETURNING id`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	rows, err := sqlx.NamedQueryContext(ctx, tx, upsert, rec)
	if err != nil {
		return apperrors.NewStorageError("failed to upsert analysis", err)
	}
	var analysisID string
	if rows.Next() {
		if err := rows.Scan(&analysisID); err != nil {
			rows.Close()
			return apperrors.NewStorageError("failed to read analysis id", err)
		}
	}
	if err := rows.Close(); err != nil {
		return apperrors.NewStorageError("failed to upsert analysis", err)
	}
	if analysisID == "" {
		return apperrors.NewStorageError("analysis upsert returned no id", nil)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stress_zones WHERE analysis_id = $1`, analysisID); err != nil {
		return apperrors.NewStorageError("failed to clear stress zones", err)
	}

	if len(zones) > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("stress_zones",
			"analysis_id", "grid_x", "grid_y", "severity", "index_value"))
		if err != nil {
			return apperrors.NewStorageError("failed to prepare stress zone copy", err)
		}
		for _, z := range models.ZoneRecords(analysisID, zones) {
			if _, err := stmt.ExecContext(ctx, z.AnalysisID, z.GridX, z.GridY, z.Severity, z.IndexValue); err != nil {
				stmt.Close()
				return apperrors.NewStorageError("failed to copy stress zone", err)
			}
		}
		// Flush the COPY buffer
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return apperrors.NewStorageError("failed to flush stress zones", err)
		}
		if err := stmt.Close(); err != nil {
			return apperrors.NewStorageError("failed to finish stress zone copy", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit analysis", err)
	}
	return nil
}

// GetAnalysisByImageID retrieves the stored analysis and its stress zones
// in row-major grid order
func (s *PostgresStore) GetAnalysisByImageID(ctx context.Context, imageID string) (*models.AnalysisRecord, []models.StressZoneRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM crop_analyses WHERE image_id = $1`, analysisColumns)

	var rec models.AnalysisRecord
	if err := s.db.GetContext(ctx, &rec, query, imageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperrors.NewNotFoundError(fmt.Sprintf("no analysis for image %s", imageID), err)
		}
		return nil, nil, apperrors.NewStorageError("failed to load analysis", err)
	}

	var zones []models.StressZoneRecord
	const zoneQuery = `
		SELECT analysis_id, grid_x, grid_y, severity, index_value
		FROM stress_zones
		WHERE analysis_id = $1
		ORDER BY grid_y, grid_x`
	if err := s.db.SelectContext(ctx, &zones, zoneQuery, rec.ID); err != nil {
		return nil, nil, apperrors.NewStorageError("failed to load stress zones", err)
	}

	return &rec, zones, nil
}

func (s *PostgresStore) requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStorageError("failed to check affected rows", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("field image %s not found", id), nil)
	}
	return nil
}
