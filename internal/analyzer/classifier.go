package analyzer

import (
	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// Rule-based verdicts always carry this confidence
const ruleBasedConfidence = 0.6

// Per-index category bounds, inclusive lower limits walked from healthiest
// down: >= bounds[0] very_healthy, >= bounds[1] healthy, >= bounds[2]
// moderate, >= bounds[3] poor, else very_poor. A mean sitting exactly on a
// bound classifies into the healthier category, so NDVI 0.8 is very_healthy.
var (
	ndviBounds  = [4]float64{0.8, 0.6, 0.4, 0.2}
	saviBounds  = [4]float64{0.7, 0.5, 0.3, 0.15}
	gndviBounds = [4]float64{0.75, 0.6, 0.4, 0.2}
)

// ruleCategories in the order the bounds are walked
var ruleCategories = [5]models.HealthCategory{
	models.HealthVeryHealthy,
	models.HealthHealthy,
	models.HealthModerate,
	models.HealthPoor,
	models.HealthVeryPoor,
}

// ruleBasedClassifier votes each available index through its threshold
// column and resolves disagreement toward the most conservative category.
// It can only reach the five threshold-table categories; disease, stress
// and weed detection need the model classifier.
type ruleBasedClassifier struct{}

// NewRuleBasedClassifier creates the threshold-table classifier
func NewRuleBasedClassifier() Classifier {
	return &ruleBasedClassifier{}
}

// Classify is deterministic: equal inputs always produce equal verdicts
func (rc *ruleBasedClassifier) Classify(input ClassifierInput) (models.Classification, error) {
	var votes []models.HealthCategory
	if input.NDVI != nil {
		votes = append(votes, categoryForIndex(input.NDVI.Mean, ndviBounds))
	}
	if input.SAVI != nil {
		votes = append(votes, categoryForIndex(input.SAVI.Mean, saviBounds))
	}
	if input.GNDVI != nil {
		votes = append(votes, categoryForIndex(input.GNDVI.Mean, gndviBounds))
	}
	// Visible-light captures vote GLI through the NDVI column
	if input.GLI != nil {
		votes = append(votes, categoryForIndex(input.GLI.Mean, ndviBounds))
	}
	if len(votes) == 0 {
		return models.Classification{}, apperrors.NewInternalError("no index statistics to classify", nil)
	}

	verdict := votes[0]
	for _, v := range votes[1:] {
		if v.Ordinal() < verdict.Ordinal() {
			verdict = v
		}
	}

	return models.Classification{
		Category:     verdict,
		Confidence:   ruleBasedConfidence,
		ModelVersion: "rule-based",
		AnalysisType: models.AnalysisTypeRuleBased,
	}, nil
}

// categoryForIndex walks the bounds from healthiest down
func categoryForIndex(mean float64, bounds [4]float64) models.HealthCategory {
	for i, bound := range bounds {
		if mean >= bound {
			return ruleCategories[i]
		}
	}
	return models.HealthVeryPoor
}

// ThresholdColumn is one index's bounds in the reference table
type ThresholdColumn struct {
	Index  string
	Bounds [4]float64
}

// ReferenceThresholds returns the classifier's inclusive lower bounds per
// index, ordered very_healthy down to poor. Means below the last bound
// classify very_poor. Reports render this table so field verdicts can be
// traced back to the numbers.
func ReferenceThresholds() []ThresholdColumn {
	return []ThresholdColumn{
		{Index: "NDVI", Bounds: ndviBounds},
		{Index: "SAVI", Bounds: saviBounds},
		{Index: "GNDVI", Bounds: gndviBounds},
	}
}

// ThresholdCategories returns the reference table's row categories,
// healthiest first
func ThresholdCategories() [5]models.HealthCategory {
	return ruleCategories
}

// healthSummaries are the field-report strings per category; agronomists'
// dashboards match on them, keep them stable
var healthSummaries = map[models.HealthCategory]string{
	models.HealthVeryPoor:    "Critical attention needed",
	models.HealthPoor:        "Attention needed",
	models.HealthModerate:    "Moderate health",
	models.HealthHealthy:     "Healthy",
	models.HealthVeryHealthy: "Very healthy",
	models.HealthDiseased:    "Disease symptoms detected",
	models.HealthStressed:    "Crop stress detected",
	models.HealthWeeds:       "Weed pressure detected",
}

// SummaryFor returns the field-report string for a category
func SummaryFor(category models.HealthCategory) string {
	if s, ok := healthSummaries[category]; ok {
		return s
	}
	return "Unknown health status"
}

// healthScoreBase anchors each category on the 0-100 scale. Bases along the
// very_poor -> very_healthy chain are at least 20 apart so the bounded
// index adjustment below cannot reorder them.
var healthScoreBase = map[models.HealthCategory]float64{
	models.HealthVeryPoor:    10,
	models.HealthDiseased:    20,
	models.HealthPoor:        30,
	models.HealthStressed:    35,
	models.HealthWeeds:       45,
	models.HealthModerate:    50,
	models.HealthHealthy:     70,
	models.HealthVeryHealthy: 90,
}

// HealthScore maps a verdict and the available index means onto [0,100].
// The adjustment term is clamped to +-9, preserving monotonicity across the
// threshold-table categories.
func HealthScore(category models.HealthCategory, indexMeans []float64) float64 {
	base := healthScoreBase[category]
	if len(indexMeans) == 0 {
		return base
	}

	var sum float64
	for _, m := range indexMeans {
		sum += m
	}
	avg := sum / float64(len(indexMeans))
	if avg > 1 {
		avg = 1
	}
	if avg < -1 {
		avg = -1
	}

	score := base + avg*9
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
