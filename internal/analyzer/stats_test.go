package analyzer

import (
	"math"
	"testing"
)

func TestNewStatsAggregator(t *testing.T) {
	agg := NewStatsAggregator()
	if agg == nil {
		t.Error("Expected non-nil stats aggregator")
	}
}

func TestSummarize_Uniform(t *testing.T) {
	agg := NewStatsAggregator()
	raster := NewRaster(10, 10)
	for i := range raster.Values {
		raster.Values[i] = 0.5
	}

	stats, degenerate := agg.Summarize(raster)

	if degenerate != 0 {
		t.Errorf("Expected no degenerate pixels, got %d", degenerate)
	}
	if math.Abs(stats.Mean-0.5) > 1e-9 {
		t.Errorf("Expected mean ~0.5, got %f", stats.Mean)
	}
	if stats.StdDev != 0 {
		t.Errorf("Expected zero std dev for uniform raster, got %f", stats.StdDev)
	}
	if stats.Min != 0.5 || stats.Max != 0.5 {
		t.Errorf("Expected min=max=0.5, got min=%f max=%f", stats.Min, stats.Max)
	}
}

func TestSummarize_KnownValues(t *testing.T) {
	agg := NewStatsAggregator()
	raster := &Raster{Width: 4, Height: 1, Values: []float64{1, 2, 3, 4}}

	stats, degenerate := agg.Summarize(raster)

	if degenerate != 0 {
		t.Errorf("Expected no degenerate pixels, got %d", degenerate)
	}
	if math.Abs(stats.Mean-2.5) > 1e-9 {
		t.Errorf("Expected mean ~2.5, got %f", stats.Mean)
	}
	// Population std dev of {1,2,3,4} is sqrt(1.25)
	if math.Abs(stats.StdDev-math.Sqrt(1.25)) > 1e-9 {
		t.Errorf("Expected std dev ~%f, got %f", math.Sqrt(1.25), stats.StdDev)
	}
	if stats.Min != 1 || stats.Max != 4 {
		t.Errorf("Expected min=1 max=4, got min=%f max=%f", stats.Min, stats.Max)
	}
}

func TestSummarize_NonFiniteExcluded(t *testing.T) {
	agg := NewStatsAggregator()
	raster := &Raster{
		Width: 4, Height: 1,
		Values: []float64{0.5, math.NaN(), 0.7, math.Inf(1)},
	}

	stats, degenerate := agg.Summarize(raster)

	if degenerate != 2 {
		t.Errorf("Expected 2 degenerate pixels, got %d", degenerate)
	}
	if math.Abs(stats.Mean-0.6) > 1e-9 {
		t.Errorf("Expected mean over finite pixels ~0.6, got %f", stats.Mean)
	}
	if stats.Min != 0.5 || stats.Max != 0.7 {
		t.Errorf("Expected min=0.5 max=0.7, got min=%f max=%f", stats.Min, stats.Max)
	}
}

func TestSummarize_AllNonFinite(t *testing.T) {
	agg := NewStatsAggregator()
	raster := &Raster{
		Width: 3, Height: 1,
		Values: []float64{math.NaN(), math.Inf(1), math.Inf(-1)},
	}

	stats, degenerate := agg.Summarize(raster)

	if degenerate != 3 {
		t.Errorf("Expected 3 degenerate pixels, got %d", degenerate)
	}
	if stats.Mean != 0 || stats.StdDev != 0 || stats.Min != 0 || stats.Max != 0 {
		t.Errorf("Expected zero statistics for all-degenerate raster, got %+v", stats)
	}
}

func TestBuildStressZones_GridShape(t *testing.T) {
	agg := NewStatsAggregator()
	raster := NewRaster(10, 10)
	for i := range raster.Values {
		raster.Values[i] = 0.6
	}

	zones := agg.BuildStressZones(raster, 4, 0.5)

	if len(zones) != 16 {
		t.Fatalf("Expected 16 zones for a 4x4 grid, got %d", len(zones))
	}
	// Zones are emitted in row-major order
	for i, zone := range zones {
		if zone.GridX != i%4 || zone.GridY != i/4 {
			t.Errorf("Expected zone %d at (%d,%d), got (%d,%d)", i, i%4, i/4, zone.GridX, zone.GridY)
		}
		if zone.GridX < 0 || zone.GridX >= 4 || zone.GridY < 0 || zone.GridY >= 4 {
			t.Errorf("Zone coordinates out of range: (%d,%d)", zone.GridX, zone.GridY)
		}
	}
}

func TestBuildStressZones_Severity(t *testing.T) {
	agg := NewStatsAggregator()

	testCases := []struct {
		name             string
		indexValue       float64
		expectedSeverity float64
	}{
		{"At Threshold", 0.5, 0.0},
		{"Above Threshold", 0.8, 0.0},
		{"Half Stressed", 0.25, 0.5},
		{"Fully Stressed", 0.0, 1.0},
		{"Negative Clamps", -0.5, 1.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raster := NewRaster(8, 8)
			for i := range raster.Values {
				raster.Values[i] = tc.indexValue
			}

			zones := agg.BuildStressZones(raster, 2, 0.5)
			for _, zone := range zones {
				if math.Abs(zone.Severity-tc.expectedSeverity) > 1e-9 {
					t.Errorf("Expected severity ~%f, got %f", tc.expectedSeverity, zone.Severity)
				}
				if math.Abs(zone.IndexValue-tc.indexValue) > 1e-9 {
					t.Errorf("Expected index value ~%f, got %f", tc.indexValue, zone.IndexValue)
				}
			}
		})
	}
}

func TestBuildStressZones_GridFinerThanImage(t *testing.T) {
	agg := NewStatsAggregator()
	raster := NewRaster(2, 2)
	for i := range raster.Values {
		raster.Values[i] = 0.1
	}

	zones := agg.BuildStressZones(raster, 4, 0.5)

	if len(zones) != 16 {
		t.Fatalf("Expected 16 zones, got %d", len(zones))
	}

	// Cells with no pixels score zero, cells with pixels score the stressed
	// value
	empty, filled := 0, 0
	for _, zone := range zones {
		if zone.IndexValue == 0 && zone.Severity == 0 {
			empty++
		} else {
			filled++
			if math.Abs(zone.Severity-0.8) > 1e-9 {
				t.Errorf("Expected severity ~0.8 for filled cell, got %f", zone.Severity)
			}
		}
	}
	if filled != 4 {
		t.Errorf("Expected 4 filled cells for a 2x2 raster on a 4x4 grid, got %d", filled)
	}
	if empty != 12 {
		t.Errorf("Expected 12 empty cells, got %d", empty)
	}
}

func TestBuildStressZones_NonFiniteSkipped(t *testing.T) {
	agg := NewStatsAggregator()
	raster := NewRaster(4, 4)
	for i := range raster.Values {
		raster.Values[i] = 0.2
	}
	// Poison one pixel in the top-left cell
	raster.Values[0] = math.NaN()

	zones := agg.BuildStressZones(raster, 2, 0.5)

	// The cell mean uses the remaining finite pixels only
	topLeft := zones[0]
	if math.Abs(topLeft.IndexValue-0.2) > 1e-9 {
		t.Errorf("Expected cell mean ~0.2 ignoring NaN, got %f", topLeft.IndexValue)
	}
	if math.Abs(topLeft.Severity-0.6) > 1e-9 {
		t.Errorf("Expected severity ~0.6, got %f", topLeft.Severity)
	}
}

func TestRasterAt(t *testing.T) {
	raster := NewRaster(3, 2)
	raster.Values = []float64{0, 1, 2, 3, 4, 5}

	if raster.At(2, 0) != 2 {
		t.Errorf("Expected value 2 at (2,0), got %f", raster.At(2, 0))
	}
	if raster.At(0, 1) != 3 {
		t.Errorf("Expected value 3 at (0,1), got %f", raster.At(0, 1))
	}
}
