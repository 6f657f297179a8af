package analyzer

import (
	"fmt"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
)

// Options provides flexible configuration for one analysis run
type Options struct {
	// Soil adjustment factor L in the SAVI denominator
	SoilFactor float64

	// Stress grid is GridResolution x GridResolution cells
	GridResolution int

	// Cell means below this index value count as stressed
	HealthyThreshold float64

	// Path to a model bundle; empty runs rule-based classification only
	ModelPath string
}

// DefaultOptions returns the standard field-survey configuration
func DefaultOptions() Options {
	return Options{
		SoilFactor:       0.5,
		GridResolution:   20,
		HealthyThreshold: 0.5,
	}
}

// WithSoilFactor overrides the SAVI soil adjustment factor
func (opts Options) WithSoilFactor(l float64) Options {
	opts.SoilFactor = l
	return opts
}

// WithGridResolution overrides the stress grid resolution
func (opts Options) WithGridResolution(cells int) Options {
	opts.GridResolution = cells
	return opts
}

// WithHealthyThreshold overrides the stress severity threshold
func (opts Options) WithHealthyThreshold(threshold float64) Options {
	opts.HealthyThreshold = threshold
	return opts
}

// WithModel enables model classification from the bundle at path
func (opts Options) WithModel(path string) Options {
	opts.ModelPath = path
	return opts
}

// Validate rejects option values the pipeline cannot honor
func (opts Options) Validate() error {
	if opts.SoilFactor <= 0 {
		return apperrors.NewValidationError(
			fmt.Sprintf("soil factor must be > 0, got %g", opts.SoilFactor), nil)
	}
	if opts.GridResolution < 1 || opts.GridResolution > 100 {
		return apperrors.NewValidationError(
			fmt.Sprintf("grid resolution must be in [1,100], got %d", opts.GridResolution), nil)
	}
	if opts.HealthyThreshold <= 0 || opts.HealthyThreshold > 1 {
		return apperrors.NewValidationError(
			fmt.Sprintf("healthy threshold must be in (0,1], got %g", opts.HealthyThreshold), nil)
	}
	return nil
}
