package analyzer

import (
	"gonum.org/v1/gonum/stat"

	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// PipelineState tracks an analysis through its stages
type PipelineState string

const (
	StateReceived           PipelineState = "received"
	StateBandsExtracted     PipelineState = "bands_extracted"
	StateIndicesComputed    PipelineState = "indices_computed"
	StateStatisticsComputed PipelineState = "statistics_computed"
	StateClassified         PipelineState = "classified"
	StateOverlayRendered    PipelineState = "overlay_rendered"
	StateComplete           PipelineState = "complete"
	StateFailed             PipelineState = "failed"
)

// RawImage holds the normalized band planes of a decoded capture.
// Planes are Width*Height values in row-major order, scaled to [0,1] by the
// source bit depth. NIR is nil for 3-channel captures.
type RawImage struct {
	Width    int
	Height   int
	Channels int
	Red      []float64
	Green    []float64
	Blue     []float64
	NIR      []float64
}

// PixelCount returns the number of pixels per plane
func (ri *RawImage) PixelCount() int {
	return ri.Width * ri.Height
}

// HasNIR reports whether a near-infrared plane was extracted
func (ri *RawImage) HasNIR() bool {
	return ri.NIR != nil
}

// BandMeans holds the per-plane arithmetic means
type BandMeans struct {
	Red, Green, Blue, NIR float64
}

// Means computes the per-plane means. NIR is 0 when absent.
func (ri *RawImage) Means() BandMeans {
	if ri.PixelCount() == 0 {
		return BandMeans{}
	}
	bm := BandMeans{
		Red:   stat.Mean(ri.Red, nil),
		Green: stat.Mean(ri.Green, nil),
		Blue:  stat.Mean(ri.Blue, nil),
	}
	if ri.HasNIR() {
		bm.NIR = stat.Mean(ri.NIR, nil)
	}
	return bm
}

// Raster is a single-plane float image, the output of an index computation
type Raster struct {
	Width  int
	Height int
	Values []float64
}

// NewRaster allocates a zeroed raster
func NewRaster(width, height int) *Raster {
	return &Raster{Width: width, Height: height, Values: make([]float64, width*height)}
}

// At returns the value at pixel (x, y)
func (r *Raster) At(x, y int) float64 {
	return r.Values[y*r.Width+x]
}

// IndexSet groups the index rasters computed for one capture. NDVI, SAVI
// and GNDVI are nil for 3-channel captures; GLI is nil for 4-channel ones.
type IndexSet struct {
	NDVI  *Raster
	SAVI  *Raster
	GNDVI *Raster
	GLI   *Raster
}

// Primary returns the raster that drives classification, stress zones and
// the overlay: NDVI when available, GLI otherwise
func (s *IndexSet) Primary() *Raster {
	if s.NDVI != nil {
		return s.NDVI
	}
	return s.GLI
}

// ClassifierInput carries the aggregate features a classifier consumes.
// Index statistics are nil when the corresponding raster was not computed.
type ClassifierInput struct {
	Channels  int
	BandMeans BandMeans
	NDVI      *models.IndexStatistics
	SAVI      *models.IndexStatistics
	GNDVI     *models.IndexStatistics
	GLI       *models.IndexStatistics
}

// AvailableIndexMeans returns the means of every computed index, in a fixed
// order, for health scoring
func (in ClassifierInput) AvailableIndexMeans() []float64 {
	var means []float64
	for _, s := range []*models.IndexStatistics{in.NDVI, in.SAVI, in.GNDVI, in.GLI} {
		if s != nil {
			means = append(means, s.Mean)
		}
	}
	return means
}
