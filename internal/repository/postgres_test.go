package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// newTestStore connects to the database named by TEST_DATABASE_URL and
// migrates the schema. Tests are skipped when no database is available.
func newTestStore(t *testing.T) *PostgresStore {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate schema: %v", err)
	}
	return store
}

func insertTestImage(t *testing.T, store *PostgresStore) *models.FieldImage {
	img := &models.FieldImage{
		ID:         uuid.New().String(),
		Filename:   "field.tif",
		StorageKey: "originals/2026/08/23/field.tif",
		Channels:   4,
		Status:     models.StatusUploaded,
		UploadedAt: time.Now().UTC(),
	}
	if err := store.InsertImage(context.Background(), img); err != nil {
		t.Fatalf("Failed to insert image: %v", err)
	}
	return img
}

func TestPostgresStore_ImageLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	img := insertTestImage(t, store)

	loaded, err := store.GetImage(ctx, img.ID)
	if err != nil {
		t.Fatalf("Failed to load image: %v", err)
	}
	if loaded.Status != models.StatusUploaded {
		t.Errorf("Expected status uploaded, got %s", loaded.Status)
	}
	if loaded.Channels != 4 {
		t.Errorf("Expected 4 channels, got %d", loaded.Channels)
	}

	if err := store.MarkCompleted(ctx, img.ID); err != nil {
		t.Fatalf("Failed to mark completed: %v", err)
	}
	loaded, err = store.GetImage(ctx, img.ID)
	if err != nil {
		t.Fatalf("Failed to reload image: %v", err)
	}
	if loaded.Status != models.StatusCompleted {
		t.Errorf("Expected status completed, got %s", loaded.Status)
	}
	if loaded.ProcessedAt == nil {
		t.Error("Expected processed_at to be set after completion")
	}
}

func TestPostgresStore_GetImageMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetImage(context.Background(), uuid.New().String())
	if err == nil {
		t.Fatal("Expected error for unknown image id")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found error, got: %v", err)
	}
}

func TestPostgresStore_ClaimBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	img := insertTestImage(t, store)

	claimed, err := store.ClaimBatch(ctx, 50)
	if err != nil {
		t.Fatalf("Failed to claim batch: %v", err)
	}

	var found bool
	for _, c := range claimed {
		if c.ID == img.ID {
			found = true
			if c.Status != models.StatusProcessing {
				t.Errorf("Expected claimed status processing, got %s", c.Status)
			}
		}
	}
	if !found {
		t.Error("Expected the uploaded image to be claimed")
	}

	// A second claim must not return the same image
	again, err := store.ClaimBatch(ctx, 50)
	if err != nil {
		t.Fatalf("Failed to claim second batch: %v", err)
	}
	for _, c := range again {
		if c.ID == img.ID {
			t.Error("Expected image to be claimed at most once")
		}
	}
}

func TestPostgresStore_MarkFailedBumpsRetryCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	img := insertTestImage(t, store)

	if err := store.MarkFailed(ctx, img.ID, "decode: image bytes could not be decoded"); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}

	loaded, err := store.GetImage(ctx, img.ID)
	if err != nil {
		t.Fatalf("Failed to reload image: %v", err)
	}
	if loaded.Status != models.StatusFailed {
		t.Errorf("Expected status failed, got %s", loaded.Status)
	}
	if loaded.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", loaded.RetryCount)
	}
	if loaded.LastError == nil || *loaded.LastError == "" {
		t.Error("Expected last_error to record the failure reason")
	}
}

func TestPostgresStore_SaveAnalysisUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	img := insertTestImage(t, store)

	mean := 0.62
	rec := models.AnalysisRecord{
		ID:           uuid.New().String(),
		ImageID:      img.ID,
		NDVIMean:     &mean,
		HealthScore:  74.5,
		HealthStatus: "healthy",
		Summary:      "Healthy",
		AnalysisType: models.AnalysisTypeRuleBased,
		Confidence:   0.6,
		CreatedAt:    time.Now().UTC(),
	}
	zones := []models.StressZone{
		{GridX: 0, GridY: 0, Severity: 0.0, IndexValue: 0.62},
		{GridX: 1, GridY: 0, Severity: 0.4, IndexValue: 0.3},
		{GridX: 0, GridY: 1, Severity: 1.0, IndexValue: -0.1},
		{GridX: 1, GridY: 1, Severity: 0.0, IndexValue: 0.7},
	}

	if err := store.SaveAnalysis(ctx, rec, zones); err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}

	stored, storedZones, err := store.GetAnalysisByImageID(ctx, img.ID)
	if err != nil {
		t.Fatalf("Failed to load analysis: %v", err)
	}
	if stored.HealthStatus != "healthy" {
		t.Errorf("Expected health status healthy, got %s", stored.HealthStatus)
	}
	if stored.NDVIMean == nil || *stored.NDVIMean != mean {
		t.Errorf("Expected NDVI mean %f, got %v", mean, stored.NDVIMean)
	}
	if stored.SAVIMean != nil {
		t.Error("Expected SAVI mean to stay null when not recorded")
	}
	if len(storedZones) != 4 {
		t.Fatalf("Expected 4 stress zones, got %d", len(storedZones))
	}
	// Zones come back in row-major order
	if storedZones[0].GridX != 0 || storedZones[0].GridY != 0 {
		t.Errorf("Expected first zone (0,0), got (%d,%d)", storedZones[0].GridX, storedZones[0].GridY)
	}
	if storedZones[1].GridX != 1 || storedZones[1].GridY != 0 {
		t.Errorf("Expected second zone (1,0), got (%d,%d)", storedZones[1].GridX, storedZones[1].GridY)
	}

	// Re-analysis replaces the record and zones for the same image
	rec2 := rec
	rec2.ID = uuid.New().String()
	rec2.HealthStatus = "moderate"
	rec2.Summary = "Moderate health"
	zones2 := []models.StressZone{
		{GridX: 0, GridY: 0, Severity: 0.5, IndexValue: 0.25},
	}
	if err := store.SaveAnalysis(ctx, rec2, zones2); err != nil {
		t.Fatalf("Failed to re-save analysis: %v", err)
	}

	stored, storedZones, err = store.GetAnalysisByImageID(ctx, img.ID)
	if err != nil {
		t.Fatalf("Failed to reload analysis: %v", err)
	}
	if stored.HealthStatus != "moderate" {
		t.Errorf("Expected updated health status moderate, got %s", stored.HealthStatus)
	}
	// The surviving row keeps its original id
	if stored.ID != rec.ID {
		t.Errorf("Expected analysis to keep id %s, got %s", rec.ID, stored.ID)
	}
	if len(storedZones) != 1 {
		t.Errorf("Expected zones to be replaced, got %d rows", len(storedZones))
	}
}

func TestPostgresStore_GetAnalysisMissing(t *testing.T) {
	store := newTestStore(t)

	img := insertTestImage(t, store)

	_, _, err := store.GetAnalysisByImageID(context.Background(), img.ID)
	if err == nil {
		t.Fatal("Expected error for image without analysis")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found error, got: %v", err)
	}
}

func TestPostgresStore_ReclaimStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	img := insertTestImage(t, store)

	claimed, err := store.ClaimBatch(ctx, 50)
	if err != nil {
		t.Fatalf("Failed to claim batch: %v", err)
	}
	var found bool
	for _, c := range claimed {
		if c.ID == img.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("Expected image to be claimed before reclaiming")
	}

	// A negative threshold treats every processing image as stale,
	// regardless of clock skew between test host and database
	n, err := store.ReclaimStale(ctx, -time.Minute, 3)
	if err != nil {
		t.Fatalf("Failed to reclaim stale images: %v", err)
	}
	if n < 1 {
		t.Errorf("Expected at least 1 reclaimed image, got %d", n)
	}

	loaded, err := store.GetImage(ctx, img.ID)
	if err != nil {
		t.Fatalf("Failed to reload image: %v", err)
	}
	if loaded.Status != models.StatusUploaded {
		t.Errorf("Expected reclaimed status uploaded, got %s", loaded.Status)
	}
	if loaded.RetryCount != 1 {
		t.Errorf("Expected reclaim to bump retry count to 1, got %d", loaded.RetryCount)
	}
}

func TestPostgresStore_ReclaimStaleExhaustsRetries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	img := &models.FieldImage{
		ID:         uuid.New().String(),
		Filename:   "stuck.tif",
		StorageKey: "originals/2026/08/23/stuck.tif",
		Channels:   4,
		Status:     models.StatusUploaded,
		RetryCount: 3,
		UploadedAt: time.Now().UTC(),
	}
	if err := store.InsertImage(ctx, img); err != nil {
		t.Fatalf("Failed to insert image: %v", err)
	}
	if _, err := store.ClaimBatch(ctx, 50); err != nil {
		t.Fatalf("Failed to claim batch: %v", err)
	}

	if _, err := store.ReclaimStale(ctx, -time.Minute, 3); err != nil {
		t.Fatalf("Failed to reclaim stale images: %v", err)
	}

	loaded, err := store.GetImage(ctx, img.ID)
	if err != nil {
		t.Fatalf("Failed to reload image: %v", err)
	}
	if loaded.Status != models.StatusFailed {
		t.Errorf("Expected exhausted image to be failed, got %s", loaded.Status)
	}
	if loaded.LastError == nil || *loaded.LastError == "" {
		t.Error("Expected last_error to record the exhausted retries")
	}
}
