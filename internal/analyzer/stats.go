package analyzer

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// statsAggregator implements StatsAggregator with Gonum reductions
type statsAggregator struct{}

// NewStatsAggregator creates a statistics aggregator
func NewStatsAggregator() StatsAggregator {
	return &statsAggregator{}
}

// Summarize computes mean, population standard deviation, min and max over
// the finite pixels of a raster. Non-finite pixels are excluded and counted,
// never fatal.
func (sa *statsAggregator) Summarize(raster *Raster) (models.IndexStatistics, int) {
	finite := make([]float64, 0, len(raster.Values))
	degenerate := 0
	minVal, maxVal := math.Inf(1), math.Inf(-1)

	for _, v := range raster.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			degenerate++
			continue
		}
		finite = append(finite, v)
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	if len(finite) == 0 {
		return models.IndexStatistics{}, degenerate
	}
	return models.IndexStatistics{
		Mean:   stat.Mean(finite, nil),
		StdDev: stat.PopStdDev(finite, nil),
		Min:    minVal,
		Max:    maxVal,
	}, degenerate
}

// BuildStressZones splits the raster into gridResolution x gridResolution
// cells and scores each one. Every cell is emitted in row-major order,
// healthy ones included, with
// severity = clamp((threshold - cellMean)/threshold, 0, 1).
func (sa *statsAggregator) BuildStressZones(raster *Raster, gridResolution int, healthyThreshold float64) []models.StressZone {
	zones := make([]models.StressZone, 0, gridResolution*gridResolution)

	for gy := 0; gy < gridResolution; gy++ {
		y0 := gy * raster.Height / gridResolution
		y1 := (gy + 1) * raster.Height / gridResolution
		for gx := 0; gx < gridResolution; gx++ {
			x0 := gx * raster.Width / gridResolution
			x1 := (gx + 1) * raster.Width / gridResolution

			var sum float64
			count := 0
			for y := y0; y < y1; y++ {
				row := y * raster.Width
				for x := x0; x < x1; x++ {
					v := raster.Values[row+x]
					if math.IsNaN(v) || math.IsInf(v, 0) {
						continue
					}
					sum += v
					count++
				}
			}

			zone := models.StressZone{GridX: gx, GridY: gy}
			// Cells with no pixels (grid finer than the image) score 0
			if count > 0 {
				mean := sum / float64(count)
				zone.IndexValue = mean
				zone.Severity = clampUnit((healthyThreshold - mean) / healthyThreshold)
			}
			zones = append(zones, zone)
		}
	}
	return zones
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
