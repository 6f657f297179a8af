package service

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kevinb28-21/CropView-sub001/internal/analyzer"
	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/internal/metrics"
	"github.com/kevinb28-21/CropView-sub001/internal/observer"
	"github.com/kevinb28-21/CropView-sub001/internal/repository"
	"github.com/kevinb28-21/CropView-sub001/internal/storage"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
	"github.com/kevinb28-21/CropView-sub001/pkg/validation"
)

const (
	originalPrefix = "originals"
	overlayPrefix  = "overlays"
)

// FieldAnalysisService coordinates fetching, analyzing and persisting
// field captures
type FieldAnalysisService interface {
	// AnalyzeURL fetches a remote capture and runs the full pipeline
	// synchronously
	AnalyzeURL(ctx context.Context, imageURL string, channels int, opts analyzer.Options) (*models.AnalysisResult, error)

	// IngestUpload stores an uploaded capture and registers it for
	// background processing
	IngestUpload(ctx context.Context, filename string, data []byte, channels int, gps *models.GPSPoint) (*models.FieldImage, error)

	// ProcessImage runs the pipeline for a claimed field image and saves
	// the analysis. Status transitions stay with the caller.
	ProcessImage(ctx context.Context, img *models.FieldImage) (*models.AnalysisResult, error)

	// GetAnalysis returns the stored snapshot for a field image
	GetAnalysis(ctx context.Context, imageID string) (*models.AnalysisSnapshot, error)
}

// Dependencies wires the collaborators a FieldAnalysisService needs.
// Store, Originals and Repo may be nil; the service degrades to pure
// synchronous analysis without them.
type Dependencies struct {
	Pipeline  *analyzer.Pipeline
	Fetcher   storage.ImageFetcher // remote captures by URL
	Originals storage.ImageFetcher // stored captures by storage key
	Store     storage.ObjectStore
	Repo      repository.Store
	Publisher observer.Subject
	Logger    *logrus.Logger
	Options   analyzer.Options

	// OverlayPrefix overrides the default "overlays" key prefix
	OverlayPrefix string
}

type fieldAnalysisService struct {
	pipeline      *analyzer.Pipeline
	fetcher       storage.ImageFetcher
	originals     storage.ImageFetcher
	store         storage.ObjectStore
	repo          repository.Store
	publisher     observer.Subject
	logger        *logrus.Logger
	options       analyzer.Options
	overlayPrefix string
	urlValidator  *validation.URLValidator
	inputs        *validation.InputValidator
}

// NewFieldAnalysisService creates a new field analysis service
func NewFieldAnalysisService(deps Dependencies) FieldAnalysisService {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	prefix := deps.OverlayPrefix
	if prefix == "" {
		prefix = overlayPrefix
	}
	return &fieldAnalysisService{
		pipeline:      deps.Pipeline,
		fetcher:       deps.Fetcher,
		originals:     deps.Originals,
		store:         deps.Store,
		repo:          deps.Repo,
		publisher:     deps.Publisher,
		logger:        logger,
		options:       deps.Options,
		overlayPrefix: prefix,
		urlValidator:  validation.NewURLValidator(),
		inputs:        validation.NewInputValidator(),
	}
}

// AnalyzeURL fetches a remote capture, analyzes it and records the result
func (s *fieldAnalysisService) AnalyzeURL(ctx context.Context, imageURL string, channels int, opts analyzer.Options) (*models.AnalysisResult, error) {
	if err := s.urlValidator.ValidateImageURL(imageURL); err != nil {
		return nil, apperrors.NewValidationError("invalid image URL", err)
	}
	if err := s.inputs.ValidateChannels(channels); err != nil {
		return nil, err
	}

	data, err := s.fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		s.publish(ctx, observer.AnalysisEvent{
			EventType:    observer.ImageFetchFailed,
			ImageURL:     imageURL,
			Channels:     channels,
			ErrorMessage: err.Error(),
		})
		return nil, apperrors.NewNetworkError("failed to fetch image", err)
	}
	s.publish(ctx, observer.AnalysisEvent{
		EventType: observer.ImageFetched,
		ImageURL:  imageURL,
		Channels:  channels,
		Success:   true,
	})

	var imageID string
	if s.repo != nil {
		img := &models.FieldImage{
			ID:         uuid.New().String(),
			Filename:   filenameFromURL(imageURL),
			Channels:   channels,
			Status:     models.StatusProcessing,
			SourceURL:  &imageURL,
			UploadedAt: time.Now().UTC(),
		}
		if err := s.repo.InsertImage(ctx, img); err != nil {
			return nil, err
		}
		imageID = img.ID
	}

	result, err := s.analyze(ctx, imageURL, imageID, data, channels, opts)
	if err != nil {
		if imageID != "" {
			s.markFailed(ctx, imageID, err)
		}
		return nil, err
	}

	if imageID != "" {
		if err := s.persist(ctx, imageID, result); err != nil {
			s.markFailed(ctx, imageID, err)
			return nil, err
		}
		if err := s.repo.MarkCompleted(ctx, imageID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// IngestUpload stores a capture for the background worker to pick up
func (s *fieldAnalysisService) IngestUpload(ctx context.Context, filename string, data []byte, channels int, gps *models.GPSPoint) (*models.FieldImage, error) {
	if err := s.inputs.ValidateFilename(filename); err != nil {
		return nil, err
	}
	if err := s.inputs.ValidateChannels(channels); err != nil {
		return nil, err
	}
	if err := s.inputs.ValidateGPS(gps); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("uploaded file is empty", nil)
	}
	if s.store == nil || s.repo == nil {
		return nil, apperrors.NewInternalError("upload requires an object store and a database", nil)
	}

	now := time.Now().UTC()
	img := &models.FieldImage{
		ID:         uuid.New().String(),
		Filename:   filename,
		Channels:   channels,
		Status:     models.StatusUploaded,
		UploadedAt: now,
	}
	img.StorageKey = storage.DatedKey(originalPrefix, img.ID+path.Ext(filename), now)
	if gps != nil {
		img.GPSLatitude = &gps.Latitude
		img.GPSLongitude = &gps.Longitude
	}

	if err := s.store.Put(ctx, img.StorageKey, data); err != nil {
		return nil, err
	}
	if err := s.repo.InsertImage(ctx, img); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"image_id":    img.ID,
		"filename":    img.Filename,
		"storage_key": img.StorageKey,
		"channels":    img.Channels,
	}).Info("Field image ingested")

	return img, nil
}

// ProcessImage fetches a claimed capture from its source, analyzes it and
// saves the analysis record
func (s *fieldAnalysisService) ProcessImage(ctx context.Context, img *models.FieldImage) (*models.AnalysisResult, error) {
	ref := img.StorageKey
	var data []byte
	var err error

	switch {
	case img.StorageKey != "" && s.originals != nil:
		data, err = s.originals.FetchImage(ctx, img.StorageKey)
	case img.SourceURL != nil && *img.SourceURL != "":
		ref = *img.SourceURL
		data, err = s.fetcher.FetchImage(ctx, ref)
	default:
		return nil, apperrors.NewValidationError("field image has no readable source", nil)
	}
	if err != nil {
		s.publish(ctx, observer.AnalysisEvent{
			EventType:    observer.ImageFetchFailed,
			ImageID:      img.ID,
			ImageURL:     ref,
			Channels:     img.Channels,
			ErrorMessage: err.Error(),
		})
		return nil, err
	}
	s.publish(ctx, observer.AnalysisEvent{
		EventType: observer.ImageFetched,
		ImageID:   img.ID,
		ImageURL:  ref,
		Channels:  img.Channels,
		Success:   true,
	})

	result, err := s.analyze(ctx, ref, img.ID, data, img.Channels, s.options)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, img.ID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAnalysis loads the stored snapshot for a field image
func (s *fieldAnalysisService) GetAnalysis(ctx context.Context, imageID string) (*models.AnalysisSnapshot, error) {
	if s.repo == nil {
		return nil, apperrors.NewInternalError("no database configured", nil)
	}

	img, err := s.repo.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}

	snapshot := &models.AnalysisSnapshot{Image: img}

	rec, zones, err := s.repo.GetAnalysisByImageID(ctx, imageID)
	if err != nil {
		// Queued and in-flight images have no analysis yet
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return snapshot, nil
		}
		return nil, err
	}
	snapshot.Analysis = rec
	snapshot.StressZones = zones
	return snapshot, nil
}

// analyze runs the pipeline, stores the overlay and publishes lifecycle
// events. It owns everything between raw bytes and a finished result.
func (s *fieldAnalysisService) analyze(ctx context.Context, ref string, imageID string, data []byte, channels int, opts analyzer.Options) (*models.AnalysisResult, error) {
	s.publish(ctx, observer.AnalysisEvent{
		EventType: observer.AnalysisStarted,
		ImageID:   imageID,
		ImageURL:  ref,
		Channels:  channels,
	})

	result, err := s.pipeline.Process(ctx, data, channels, opts)
	if err != nil {
		s.publish(ctx, observer.AnalysisEvent{
			EventType:    observer.AnalysisFailed,
			ImageID:      imageID,
			ImageURL:     ref,
			Channels:     channels,
			ErrorMessage: err.Error(),
		})
		return nil, err
	}
	result.ImageID = imageID

	// A configured model that still produced a rule-based verdict means the
	// classifier fell back
	if opts.ModelPath != "" && result.Classification.AnalysisType == models.AnalysisTypeRuleBased {
		s.publish(ctx, observer.AnalysisEvent{
			EventType: observer.ClassifierFellBack,
			ImageID:   imageID,
			ImageURL:  ref,
			Channels:  channels,
			Category:  string(result.Classification.Category),
		})
	}

	s.storeOverlay(ctx, result)

	s.publish(ctx, observer.AnalysisEvent{
		EventType:      observer.AnalysisCompleted,
		ImageID:        imageID,
		ImageURL:       ref,
		Channels:       channels,
		Category:       string(result.Classification.Category),
		AnalysisType:   result.Classification.AnalysisType,
		ProcessingTime: time.Duration(result.ProcessingTimeSec * float64(time.Second)),
		Success:        true,
	})
	return result, nil
}

// storeOverlay persists the rendered overlay PNG. Overlay storage failures
// degrade the result instead of failing the analysis.
func (s *fieldAnalysisService) storeOverlay(ctx context.Context, result *models.AnalysisResult) {
	if s.store == nil || len(result.OverlayPNG) == 0 {
		return
	}

	key := storage.DatedKey(s.overlayPrefix, result.ID+".png", result.Timestamp)
	if err := s.store.Put(ctx, key, result.OverlayPNG); err != nil {
		metrics.RecordOverlayUpload(s.store.Backend(), "error")
		s.logger.WithError(err).WithField("overlay_key", key).Warn("Failed to store overlay")
		result.Warnings = append(result.Warnings, "overlay could not be stored")
		return
	}
	metrics.RecordOverlayUpload(s.store.Backend(), "success")
	result.OverlayKey = key
}

func (s *fieldAnalysisService) persist(ctx context.Context, imageID string, result *models.AnalysisResult) error {
	if s.repo == nil {
		return nil
	}
	rec := models.NewAnalysisRecord(imageID, result)
	return s.repo.SaveAnalysis(ctx, rec, result.StressZones)
}

func (s *fieldAnalysisService) markFailed(ctx context.Context, imageID string, cause error) {
	if err := s.repo.MarkFailed(ctx, imageID, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("image_id", imageID).Warn("Failed to record image failure")
	}
}

func (s *fieldAnalysisService) publish(ctx context.Context, event observer.AnalysisEvent) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	s.publisher.NotifyObservers(ctx, event)
}

// filenameFromURL derives a stored filename from a capture URL
func filenameFromURL(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "capture"
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" || strings.Contains(name, "..") {
		return "capture"
	}
	return name
}
