package analyzer

import (
	"fmt"
	"runtime"
	"sync"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
)

// Rasters below this size are computed sequentially
const parallelRasterCutoff = 100000

// indexCalculator implements IndexCalculator.
// Every index maps a zero denominator to exactly 0 so that bare soil and
// black borders never inject NaN or Inf into downstream statistics.
type indexCalculator struct{}

// NewIndexCalculator creates a vegetation index calculator
func NewIndexCalculator() IndexCalculator {
	return &indexCalculator{}
}

// Compute derives the index rasters the capture supports: NDVI, SAVI and
// GNDVI when a NIR plane exists, the visible-light GLI otherwise
func (ic *indexCalculator) Compute(raw *RawImage, soilFactor float64) (*IndexSet, error) {
	if soilFactor <= 0 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("soil factor must be > 0, got %g", soilFactor), nil)
	}
	if raw == nil || raw.PixelCount() == 0 {
		return nil, apperrors.NewValidationError("no pixels to compute indices over", nil)
	}

	set := &IndexSet{}
	if raw.HasNIR() {
		set.NDVI = ic.computeRaster(raw, func(i int) float64 {
			return safeRatio(raw.NIR[i]-raw.Red[i], raw.NIR[i]+raw.Red[i])
		})
		set.SAVI = ic.computeRaster(raw, func(i int) float64 {
			den := raw.NIR[i] + raw.Red[i] + soilFactor
			if den == 0 {
				return 0
			}
			return (raw.NIR[i] - raw.Red[i]) / den * (1 + soilFactor)
		})
		set.GNDVI = ic.computeRaster(raw, func(i int) float64 {
			return safeRatio(raw.NIR[i]-raw.Green[i], raw.NIR[i]+raw.Green[i])
		})
	} else {
		set.GLI = ic.computeRaster(raw, func(i int) float64 {
			g2 := 2 * raw.Green[i]
			return safeRatio(g2-raw.Red[i]-raw.Blue[i], g2+raw.Red[i]+raw.Blue[i])
		})
	}
	return set, nil
}

// computeRaster evaluates fn per pixel, in parallel chunks for large rasters
func (ic *indexCalculator) computeRaster(raw *RawImage, fn func(i int) float64) *Raster {
	out := NewRaster(raw.Width, raw.Height)
	n := raw.PixelCount()

	if n < parallelRasterCutoff {
		for i := 0; i < n; i++ {
			out.Values[i] = fn(i)
		}
		return out
	}

	numWorkers := runtime.NumCPU()
	chunk := (n + numWorkers - 1) / numWorkers // ceil division
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				out.Values[i] = fn(i)
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

// safeRatio divides, mapping a zero denominator to 0
func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
