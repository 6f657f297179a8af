package models

import "time"

// HealthCategory is one of the eight crop health classes a classifier can emit
type HealthCategory string

const (
	HealthVeryPoor    HealthCategory = "very_poor"
	HealthDiseased    HealthCategory = "diseased"
	HealthPoor        HealthCategory = "poor"
	HealthStressed    HealthCategory = "stressed"
	HealthWeeds       HealthCategory = "weeds"
	HealthModerate    HealthCategory = "moderate"
	HealthHealthy     HealthCategory = "healthy"
	HealthVeryHealthy HealthCategory = "very_healthy"
)

// healthOrdinals orders categories from most concerning to healthiest
var healthOrdinals = map[HealthCategory]int{
	HealthVeryPoor:    0,
	HealthDiseased:    1,
	HealthPoor:        2,
	HealthStressed:    3,
	HealthWeeds:       4,
	HealthModerate:    5,
	HealthHealthy:     6,
	HealthVeryHealthy: 7,
}

// Ordinal returns the category's position in the concern ordering,
// or -1 for an unknown category
func (c HealthCategory) Ordinal() int {
	if ord, ok := healthOrdinals[c]; ok {
		return ord
	}
	return -1
}

// Valid reports whether the category is one of the eight known classes
func (c HealthCategory) Valid() bool {
	_, ok := healthOrdinals[c]
	return ok
}

// AllHealthCategories returns the known categories in ordinal order
func AllHealthCategories() []HealthCategory {
	return []HealthCategory{
		HealthVeryPoor, HealthDiseased, HealthPoor, HealthStressed,
		HealthWeeds, HealthModerate, HealthHealthy, HealthVeryHealthy,
	}
}

// Classification provenance values
const (
	AnalysisTypeModel     = "model"
	AnalysisTypeRuleBased = "rule-based"
)

// IndexStatistics summarizes one vegetation index raster
type IndexStatistics struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// StressZone is one cell of the stress grid. IndexValue is the mean of the
// driving raster (NDVI for 4-channel captures, GLI otherwise) over the cell.
type StressZone struct {
	GridX      int     `json:"grid_x"`
	GridY      int     `json:"grid_y"`
	Severity   float64 `json:"severity"`
	IndexValue float64 `json:"index_value"`
}

// Classification carries the health verdict and its provenance.
// Probabilities is nil for rule-based results.
type Classification struct {
	Category      HealthCategory     `json:"category"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	ModelVersion  string             `json:"model_version,omitempty"`
	AnalysisType  string             `json:"analysis_type"`
}

// AnalysisResult represents the complete result of one field image analysis.
// NDVI, SAVI and GNDVI are nil for 3-channel captures, where the classifier
// and stress grid run on the visible-light GLI raster instead.
type AnalysisResult struct {
	ID                string    `json:"id"`
	ImageID           string    `json:"image_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	ProcessingTimeSec float64   `json:"processing_time_sec"`

	Channels int `json:"channels"`
	Width    int `json:"width"`
	Height   int `json:"height"`

	NDVI  *IndexStatistics `json:"ndvi"`
	SAVI  *IndexStatistics `json:"savi"`
	GNDVI *IndexStatistics `json:"gndvi"`

	StressZones    []StressZone   `json:"stress_zones"`
	Classification Classification `json:"classification"`
	HealthScore    float64        `json:"health_score"`
	Summary        string         `json:"summary"`

	// Rendered overlay PNG; persisted through an object store, never
	// inlined into JSON responses
	OverlayPNG []byte `json:"-"`
	OverlayKey string `json:"overlay_key,omitempty"`

	// Non-finite pixels excluded from statistics
	DegeneratePixels int `json:"degenerate_pixels,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}
