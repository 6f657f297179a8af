package analyzer

import (
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// BandExtractor decodes raw image bytes into normalized band planes
type BandExtractor interface {
	ExtractBands(imageBytes []byte, declaredChannels int) (*RawImage, error)
}

// IndexCalculator computes vegetation index rasters from band planes
type IndexCalculator interface {
	Compute(raw *RawImage, soilFactor float64) (*IndexSet, error)
}

// StatsAggregator reduces rasters to summary statistics and stress grids
type StatsAggregator interface {
	// Summarize returns finite-pixel statistics and the count of
	// non-finite pixels that were excluded
	Summarize(raster *Raster) (models.IndexStatistics, int)
	BuildStressZones(raster *Raster, gridResolution int, healthyThreshold float64) []models.StressZone
}

// Classifier produces a health verdict from aggregate features
type Classifier interface {
	Classify(input ClassifierInput) (models.Classification, error)
}

// OverlayRenderer rasterizes an index raster into a color-mapped PNG
type OverlayRenderer interface {
	Render(raster *Raster) ([]byte, error)
}

// ModelProvider loads model bundles, caching each path after its first
// successful load
type ModelProvider interface {
	Get(path string) (*ModelBundle, error)
	Reset()
}
