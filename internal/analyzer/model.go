package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// featureVectorSize is the fixed model input width: four band means plus
// mean/std pairs for NDVI, SAVI and GNDVI
const featureVectorSize = 10

// FeatureVector flattens classifier input into the model's feature order.
// Missing bands and indices contribute zeros; the raster math itself never
// zero-fills.
func FeatureVector(input ClassifierInput) []float64 {
	f := make([]float64, 0, featureVectorSize)
	f = append(f, input.BandMeans.Red, input.BandMeans.Green, input.BandMeans.Blue, input.BandMeans.NIR)
	for _, s := range []*models.IndexStatistics{input.NDVI, input.SAVI, input.GNDVI} {
		if s != nil {
			f = append(f, s.Mean, s.StdDev)
		} else {
			f = append(f, 0, 0)
		}
	}
	return f
}

// ModelLayer is one dense layer of the bundled network
type ModelLayer struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// ModelBundle is the single self-describing JSON artifact the trainer
// exports: version, crop type, class names and two dense layers
// (ReLU hidden, softmax output).
type ModelBundle struct {
	Version       string     `json:"version"`
	CropType      string     `json:"crop_type"`
	Classes       []string   `json:"classes"`
	InputFeatures int        `json:"input_features"`
	Hidden        ModelLayer `json:"hidden"`
	Output        ModelLayer `json:"output"`

	hiddenW *mat.Dense
	hiddenB *mat.VecDense
	outputW *mat.Dense
	outputB *mat.VecDense
}

// LoadModelBundle reads, validates and compiles a bundle from disk.
// Every failure is a model_load error, which callers recover from by
// falling back to rule-based classification.
func LoadModelBundle(path string) (*ModelBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewModelLoadError("unable to read model bundle", err)
	}
	var bundle ModelBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, apperrors.NewModelLoadError("unable to parse model bundle", err)
	}
	if err := bundle.compile(); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// compile validates the declared shapes and builds the Gonum matrices once
func (mb *ModelBundle) compile() error {
	if mb.Version == "" {
		return apperrors.NewModelLoadError("model bundle missing version", nil)
	}
	if mb.InputFeatures != featureVectorSize {
		return apperrors.NewModelLoadError(
			fmt.Sprintf("model expects %d input features, this pipeline produces %d", mb.InputFeatures, featureVectorSize), nil)
	}
	if len(mb.Classes) < 2 {
		return apperrors.NewModelLoadError(
			fmt.Sprintf("model must declare at least 2 classes, got %d", len(mb.Classes)), nil)
	}
	seen := make(map[string]bool, len(mb.Classes))
	for _, class := range mb.Classes {
		if !models.HealthCategory(class).Valid() {
			return apperrors.NewModelLoadError(fmt.Sprintf("unknown model class %q", class), nil)
		}
		if seen[class] {
			return apperrors.NewModelLoadError(fmt.Sprintf("duplicate model class %q", class), nil)
		}
		seen[class] = true
	}

	hiddenUnits := len(mb.Hidden.Weights)
	if hiddenUnits == 0 {
		return apperrors.NewModelLoadError("hidden layer has no units", nil)
	}
	for i, row := range mb.Hidden.Weights {
		if len(row) != mb.InputFeatures {
			return apperrors.NewModelLoadError(
				fmt.Sprintf("hidden unit %d has %d weights, want %d", i, len(row), mb.InputFeatures), nil)
		}
	}
	if len(mb.Hidden.Biases) != hiddenUnits {
		return apperrors.NewModelLoadError(
			fmt.Sprintf("hidden layer has %d biases for %d units", len(mb.Hidden.Biases), hiddenUnits), nil)
	}
	if len(mb.Output.Weights) != len(mb.Classes) {
		return apperrors.NewModelLoadError(
			fmt.Sprintf("output layer has %d units for %d classes", len(mb.Output.Weights), len(mb.Classes)), nil)
	}
	for i, row := range mb.Output.Weights {
		if len(row) != hiddenUnits {
			return apperrors.NewModelLoadError(
				fmt.Sprintf("output unit %d has %d weights, want %d", i, len(row), hiddenUnits), nil)
		}
	}
	if len(mb.Output.Biases) != len(mb.Classes) {
		return apperrors.NewModelLoadError(
			fmt.Sprintf("output layer has %d biases for %d classes", len(mb.Output.Biases), len(mb.Classes)), nil)
	}

	mb.hiddenW = mat.NewDense(hiddenUnits, mb.InputFeatures, flatten(mb.Hidden.Weights))
	mb.hiddenB = mat.NewVecDense(hiddenUnits, append([]float64(nil), mb.Hidden.Biases...))
	mb.outputW = mat.NewDense(len(mb.Classes), hiddenUnits, flatten(mb.Output.Weights))
	mb.outputB = mat.NewVecDense(len(mb.Classes), append([]float64(nil), mb.Output.Biases...))
	return nil
}

// Evaluate runs the dense network and returns class probabilities in the
// order of mb.Classes
func (mb *ModelBundle) Evaluate(features []float64) ([]float64, error) {
	if len(features) != mb.InputFeatures {
		return nil, apperrors.NewModelLoadError(
			fmt.Sprintf("feature vector has %d values, model wants %d", len(features), mb.InputFeatures), nil)
	}

	x := mat.NewVecDense(len(features), append([]float64(nil), features...))

	var hidden mat.VecDense
	hidden.MulVec(mb.hiddenW, x)
	hidden.AddVec(&hidden, mb.hiddenB)
	for i := 0; i < hidden.Len(); i++ {
		if hidden.AtVec(i) < 0 {
			hidden.SetVec(i, 0)
		}
	}

	var logits mat.VecDense
	logits.MulVec(mb.outputW, &hidden)
	logits.AddVec(&logits, mb.outputB)

	probs := softmax(logits.RawVector().Data)
	for _, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, apperrors.NewModelLoadError("model produced non-finite probabilities", nil)
		}
	}
	return probs, nil
}

// flatten copies rows into the row-major layout mat.NewDense wants
func flatten(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return flat
}

// softmax with max subtraction for numeric stability
func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - maxLogit)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// modelClassifier runs the bundled network over the feature vector
type modelClassifier struct {
	provider ModelProvider
	path     string
}

// NewModelClassifier creates a classifier backed by the bundle at path,
// loaded through the given provider
func NewModelClassifier(provider ModelProvider, path string) Classifier {
	return &modelClassifier{provider: provider, path: path}
}

// Classify returns the argmax class with the full probability vector.
// Any load or inference failure surfaces as a model_load error.
func (mc *modelClassifier) Classify(input ClassifierInput) (models.Classification, error) {
	bundle, err := mc.provider.Get(mc.path)
	if err != nil {
		return models.Classification{}, err
	}

	probs, err := bundle.Evaluate(FeatureVector(input))
	if err != nil {
		return models.Classification{}, err
	}

	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	probabilities := make(map[string]float64, len(probs))
	for i, class := range bundle.Classes {
		probabilities[class] = probs[i]
	}

	return models.Classification{
		Category:      models.HealthCategory(bundle.Classes[best]),
		Confidence:    probs[best],
		Probabilities: probabilities,
		ModelVersion:  bundle.Version,
		AnalysisType:  models.AnalysisTypeModel,
	}, nil
}
