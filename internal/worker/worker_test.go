package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kevinb28-21/CropView-sub001/internal/analyzer"
	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

type fakeAnalysisService struct {
	mu        sync.Mutex
	processed []string
	failIDs   map[string]bool
}

func (s *fakeAnalysisService) AnalyzeURL(ctx context.Context, imageURL string, channels int, opts analyzer.Options) (*models.AnalysisResult, error) {
	return nil, nil
}

func (s *fakeAnalysisService) IngestUpload(ctx context.Context, filename string, data []byte, channels int, gps *models.GPSPoint) (*models.FieldImage, error) {
	return nil, nil
}

func (s *fakeAnalysisService) GetAnalysis(ctx context.Context, imageID string) (*models.AnalysisSnapshot, error) {
	return nil, nil
}

func (s *fakeAnalysisService) ProcessImage(ctx context.Context, img *models.FieldImage) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[img.ID] {
		return nil, apperrors.NewDecodeError("image bytes could not be decoded", nil)
	}
	s.processed = append(s.processed, img.ID)
	return &models.AnalysisResult{
		ID:      "analysis-" + img.ID,
		ImageID: img.ID,
		Classification: models.Classification{
			Category:     models.HealthHealthy,
			AnalysisType: models.AnalysisTypeRuleBased,
		},
		HealthScore: 72,
	}, nil
}

func (s *fakeAnalysisService) processedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.processed...)
}

type memoryRepo struct {
	mu     sync.Mutex
	images map[string]*models.FieldImage
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{images: make(map[string]*models.FieldImage)}
}

func (r *memoryRepo) InsertImage(ctx context.Context, img *models.FieldImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *img
	r.images[img.ID] = &cp
	return nil
}

func (r *memoryRepo) GetImage(ctx context.Context, id string) (*models.FieldImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("field image %s not found", id), nil)
	}
	cp := *img
	return &cp, nil
}

func (r *memoryRepo) ClaimBatch(ctx context.Context, limit int) ([]models.FieldImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var claimed []models.FieldImage
	for _, img := range r.images {
		if len(claimed) >= limit {
			break
		}
		if img.Status == models.StatusUploaded {
			img.Status = models.StatusProcessing
			claimed = append(claimed, *img)
		}
	}
	return claimed, nil
}

func (r *memoryRepo) MarkCompleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("field image %s not found", id), nil)
	}
	img.Status = models.StatusCompleted
	return nil
}

func (r *memoryRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("field image %s not found", id), nil)
	}
	img.Status = models.StatusFailed
	img.RetryCount++
	img.LastError = &reason
	return nil
}

func (r *memoryRepo) ReclaimStale(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, img := range r.images {
		if img.Status != models.StatusProcessing {
			continue
		}
		if img.RetryCount >= maxRetries {
			img.Status = models.StatusFailed
			continue
		}
		img.Status = models.StatusUploaded
		img.RetryCount++
		n++
	}
	return n, nil
}

func (r *memoryRepo) SaveAnalysis(ctx context.Context, rec models.AnalysisRecord, zones []models.StressZone) error {
	return nil
}

func (r *memoryRepo) GetAnalysisByImageID(ctx context.Context, imageID string) (*models.AnalysisRecord, []models.StressZoneRecord, error) {
	return nil, nil, apperrors.NewNotFoundError("no analysis", nil)
}

func (r *memoryRepo) Ping(ctx context.Context) error { return nil }
func (r *memoryRepo) Close() error                   { return nil }

func (r *memoryRepo) status(t *testing.T, id string) string {
	t.Helper()
	img, err := r.GetImage(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to load image %s: %v", id, err)
	}
	return img.Status
}

func seedImage(t *testing.T, repo *memoryRepo, id, status string) {
	t.Helper()
	err := repo.InsertImage(context.Background(), &models.FieldImage{
		ID:         id,
		Filename:   id + ".tif",
		StorageKey: "originals/2026/08/23/" + id + ".tif",
		Channels:   4,
		Status:     status,
		UploadedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to seed image: %v", err)
	}
}

type failingClaimRepo struct {
	*memoryRepo
}

func (r *failingClaimRepo) ClaimBatch(ctx context.Context, limit int) ([]models.FieldImage, error) {
	return nil, apperrors.NewStorageError("failed to claim image batch", nil)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("Expected 10s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.BatchSize != 5 {
		t.Errorf("Expected batch size 5, got %d", cfg.BatchSize)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Expected concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.MaxConsecutiveErrors != 10 {
		t.Errorf("Expected max consecutive errors 10, got %d", cfg.MaxConsecutiveErrors)
	}
	if cfg.StaleAfter != 10*time.Minute {
		t.Errorf("Expected stale threshold 10m, got %v", cfg.StaleAfter)
	}
	if cfg.MaxImageRetries != 3 {
		t.Errorf("Expected max image retries 3, got %d", cfg.MaxImageRetries)
	}
}

func TestWorker_ProcessesBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := &fakeAnalysisService{}
	seedImage(t, repo, "img-1", models.StatusUploaded)
	seedImage(t, repo, "img-2", models.StatusUploaded)
	seedImage(t, repo, "img-3", models.StatusUploaded)

	w := New(Config{BatchSize: 10}, svc, repo, nil)
	w.pool.Start()

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	for _, id := range []string{"img-1", "img-2", "img-3"} {
		if got := repo.status(t, id); got != models.StatusCompleted {
			t.Errorf("Expected %s to be completed, got %s", id, got)
		}
	}
	if got := len(svc.processedIDs()); got != 3 {
		t.Errorf("Expected 3 processed images, got %d", got)
	}
}

func TestWorker_MarksFailedImages(t *testing.T) {
	repo := newMemoryRepo()
	svc := &fakeAnalysisService{failIDs: map[string]bool{"img-bad": true}}
	seedImage(t, repo, "img-bad", models.StatusUploaded)
	seedImage(t, repo, "img-ok", models.StatusUploaded)

	w := New(Config{BatchSize: 10}, svc, repo, nil)
	w.pool.Start()

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if got := repo.status(t, "img-ok"); got != models.StatusCompleted {
		t.Errorf("Expected img-ok completed, got %s", got)
	}
	if got := repo.status(t, "img-bad"); got != models.StatusFailed {
		t.Errorf("Expected img-bad failed, got %s", got)
	}

	bad, err := repo.GetImage(context.Background(), "img-bad")
	if err != nil {
		t.Fatalf("Failed to load img-bad: %v", err)
	}
	if bad.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", bad.RetryCount)
	}
	if bad.LastError == nil || *bad.LastError == "" {
		t.Error("Expected last error to record the failure")
	}
}

func TestWorker_ReclaimsStaleImages(t *testing.T) {
	repo := newMemoryRepo()
	svc := &fakeAnalysisService{}
	// Left behind by a worker that never finished
	seedImage(t, repo, "img-stale", models.StatusProcessing)

	w := New(Config{BatchSize: 10}, svc, repo, nil)
	w.pool.Start()

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if got := repo.status(t, "img-stale"); got != models.StatusCompleted {
		t.Errorf("Expected reclaimed image to be completed, got %s", got)
	}
}

func TestWorker_DropsImageAfterRepeatedStalls(t *testing.T) {
	repo := newMemoryRepo()
	svc := &fakeAnalysisService{}
	seedImage(t, repo, "img-poison", models.StatusProcessing)
	repo.images["img-poison"].RetryCount = 3

	w := New(Config{BatchSize: 10, MaxImageRetries: 3}, svc, repo, nil)
	w.pool.Start()

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if got := repo.status(t, "img-poison"); got != models.StatusFailed {
		t.Errorf("Expected exhausted image to be failed, got %s", got)
	}
	if got := len(svc.processedIDs()); got != 0 {
		t.Errorf("Expected exhausted image to stay unprocessed, got %d", got)
	}
}

func TestWorker_EmptyTick(t *testing.T) {
	repo := newMemoryRepo()
	svc := &fakeAnalysisService{}

	w := New(Config{}, svc, repo, nil)
	w.pool.Start()

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("Expected empty tick to succeed, got: %v", err)
	}
	if got := len(svc.processedIDs()); got != 0 {
		t.Errorf("Expected nothing processed, got %d", got)
	}
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	repo := newMemoryRepo()
	svc := &fakeAnalysisService{}

	w := New(Config{PollInterval: time.Hour}, svc, repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not stop after context cancellation")
	}
}

func TestWorker_AbortsAfterRepeatedClaimFailures(t *testing.T) {
	repo := &failingClaimRepo{newMemoryRepo()}
	svc := &fakeAnalysisService{}

	w := New(Config{
		PollInterval:         time.Millisecond,
		MaxConsecutiveErrors: 3,
	}, svc, repo, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Expected worker to abort with an error")
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeInternal) {
			t.Errorf("Expected internal error, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not abort after repeated failures")
	}
}

func TestWorker_BackoffGrowth(t *testing.T) {
	w := New(Config{PollInterval: 10 * time.Second}, &fakeAnalysisService{}, newMemoryRepo(), nil)

	tests := []struct {
		errors   int
		expected time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 60 * time.Second}, // capped
		{8, 60 * time.Second},
	}

	for _, tc := range tests {
		w.consecutiveErrors = tc.errors
		if got := w.backoff(); got != tc.expected {
			t.Errorf("Expected backoff %v after %d errors, got %v", tc.expected, tc.errors, got)
		}
	}
}
