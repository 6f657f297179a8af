package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/internal/logger"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// Pipeline orchestrates one capture through band extraction, index math,
// statistics, classification and overlay rendering. A run either returns a
// complete result or a typed error, never both; the only internally
// recovered failure is the model classifier, which falls back to
// rule-based.
type Pipeline struct {
	bands    BandExtractor
	indices  IndexCalculator
	stats    StatsAggregator
	overlay  OverlayRenderer
	provider ModelProvider
}

// NewPipeline creates a pipeline with the default components. A nil
// provider gets a fresh bundle cache.
func NewPipeline(provider ModelProvider) *Pipeline {
	if provider == nil {
		provider = NewModelProvider()
	}
	return &Pipeline{
		bands:    NewBandExtractor(),
		indices:  NewIndexCalculator(),
		stats:    NewStatsAggregator(),
		overlay:  NewOverlayRenderer(),
		provider: provider,
	}
}

// Provider exposes the bundle cache for warm-up and tests
func (p *Pipeline) Provider() ModelProvider {
	return p.provider
}

// Process runs the full analysis state machine over one capture
func (p *Pipeline) Process(ctx context.Context, imageBytes []byte, declaredChannels int, opts Options) (*models.AnalysisResult, error) {
	start := time.Now()
	analysisID := uuid.New().String()
	log := logger.WithFields(logrus.Fields{
		"analysis_id": analysisID,
		"channels":    declaredChannels,
	})

	state := StateReceived
	log.WithField("state", string(state)).Debug("analysis received")

	if err := opts.Validate(); err != nil {
		return nil, p.fail(log, "validate options", err)
	}
	if err := p.checkContext(ctx); err != nil {
		return nil, p.fail(log, "validate options", err)
	}

	raw, err := p.bands.ExtractBands(imageBytes, declaredChannels)
	if err != nil {
		return nil, p.fail(log, "extract bands", err)
	}
	p.advance(log, &state, StateBandsExtracted)
	if err := p.checkContext(ctx); err != nil {
		return nil, p.fail(log, "extract bands", err)
	}

	set, err := p.indices.Compute(raw, opts.SoilFactor)
	if err != nil {
		return nil, p.fail(log, "compute indices", err)
	}
	p.advance(log, &state, StateIndicesComputed)
	if err := p.checkContext(ctx); err != nil {
		return nil, p.fail(log, "compute indices", err)
	}

	result := &models.AnalysisResult{
		ID:        analysisID,
		Timestamp: start,
		Channels:  declaredChannels,
		Width:     raw.Width,
		Height:    raw.Height,
	}

	input := ClassifierInput{Channels: raw.Channels, BandMeans: raw.Means()}
	degenerate := 0
	if set.NDVI != nil {
		ndvi, d := p.stats.Summarize(set.NDVI)
		result.NDVI, input.NDVI = &ndvi, &ndvi
		degenerate += d
		savi, d := p.stats.Summarize(set.SAVI)
		result.SAVI, input.SAVI = &savi, &savi
		degenerate += d
		gndvi, d := p.stats.Summarize(set.GNDVI)
		result.GNDVI, input.GNDVI = &gndvi, &gndvi
		degenerate += d
	} else {
		gli, d := p.stats.Summarize(set.GLI)
		input.GLI = &gli
		degenerate += d
	}
	if degenerate > 0 {
		log.WithField("degenerate_pixels", degenerate).Warn("excluding non-finite pixels from statistics")
		result.DegeneratePixels = degenerate
		result.Warnings = append(result.Warnings, "non-finite pixels excluded from statistics")
	}
	result.StressZones = p.stats.BuildStressZones(set.Primary(), opts.GridResolution, opts.HealthyThreshold)
	p.advance(log, &state, StateStatisticsComputed)
	if err := p.checkContext(ctx); err != nil {
		return nil, p.fail(log, "compute statistics", err)
	}

	classification, err := p.classify(log, input, opts)
	if err != nil {
		return nil, p.fail(log, "classify", err)
	}
	result.Classification = classification
	result.HealthScore = HealthScore(classification.Category, input.AvailableIndexMeans())
	result.Summary = SummaryFor(classification.Category)
	p.advance(log, &state, StateClassified)
	if err := p.checkContext(ctx); err != nil {
		return nil, p.fail(log, "classify", err)
	}

	overlayPNG, err := p.overlay.Render(set.Primary())
	if err != nil {
		return nil, p.fail(log, "render overlay", err)
	}
	result.OverlayPNG = overlayPNG
	p.advance(log, &state, StateOverlayRendered)

	result.ProcessingTimeSec = time.Since(start).Seconds()
	p.advance(log, &state, StateComplete)
	log.WithFields(logrus.Fields{
		"category":     string(classification.Category),
		"health_score": result.HealthScore,
		"duration_sec": result.ProcessingTimeSec,
	}).Info("analysis complete")

	return result, nil
}

// classify prefers the model when one is configured and falls back to the
// threshold table on any model failure. Model failure never fails the run.
func (p *Pipeline) classify(log *logrus.Entry, input ClassifierInput, opts Options) (models.Classification, error) {
	if opts.ModelPath != "" {
		classification, err := NewModelClassifier(p.provider, opts.ModelPath).Classify(input)
		if err == nil {
			return classification, nil
		}
		log.WithError(err).Warn("model classification failed, falling back to rule-based")
	}
	return NewRuleBasedClassifier().Classify(input)
}

// advance moves the state machine forward and logs the transition
func (p *Pipeline) advance(log *logrus.Entry, state *PipelineState, next PipelineState) {
	*state = next
	log.WithField("state", string(next)).Debug("pipeline state advanced")
}

// checkContext translates cancellation into the timeout error type
func (p *Pipeline) checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewTimeoutError("analysis cancelled", err)
	}
	return nil
}

// fail logs the terminal transition and guarantees a typed error out
func (p *Pipeline) fail(log *logrus.Entry, stage string, err error) error {
	log.WithError(err).WithFields(logrus.Fields{
		"state": string(StateFailed),
		"stage": stage,
	}).Error("analysis failed")

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.NewInternalError(stage+" failed", err)
}
