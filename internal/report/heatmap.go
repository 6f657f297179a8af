package report

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
)

// severityGrid adapts a severity matrix to the plotter's grid interface.
// Z flips the rows because plot Y grows upward while grid row 0 is the top
// of the capture.
type severityGrid struct {
	cells [][]float64 // [row][col]
}

func (g severityGrid) Dims() (int, int) {
	if len(g.cells) == 0 {
		return 0, 0
	}
	return len(g.cells[0]), len(g.cells)
}

func (g severityGrid) Z(c, r int) float64 {
	return g.cells[len(g.cells)-1-r][c]
}

func (g severityGrid) X(c int) float64 { return float64(c) }
func (g severityGrid) Y(r int) float64 { return float64(r) }

// stressPalette shades healthy green through yellow to stressed red
type stressPalette struct {
	colors []color.Color
}

func (p stressPalette) Colors() []color.Color {
	return p.colors
}

func newStressPalette(steps int) stressPalette {
	if steps < 2 {
		steps = 2
	}
	colors := make([]color.Color, steps)
	for i := range colors {
		colors[i] = severityColor(float64(i) / float64(steps-1))
	}
	return stressPalette{colors: colors}
}

// severityColor maps [0,1] onto green -> yellow -> red
func severityColor(t float64) color.Color {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	if t < 0.5 {
		// Green to yellow
		return color.RGBA{R: uint8(2 * t * 255), G: 200, B: 40, A: 255}
	}
	// Yellow to red
	return color.RGBA{R: 255, G: uint8(200 * (1 - t) * 2), B: 40, A: 255}
}

// AggregateSeverity averages severity cell-wise across all captures,
// producing one resolution x resolution stress picture of the batch.
// Cells no capture covered stay zero.
func AggregateSeverity(entries []Entry, resolution int) [][]float64 {
	sums := make([][]float64, resolution)
	counts := make([][]int, resolution)
	for i := range sums {
		sums[i] = make([]float64, resolution)
		counts[i] = make([]int, resolution)
	}

	for _, e := range entries {
		for _, z := range e.Result.StressZones {
			if z.GridY < 0 || z.GridY >= resolution || z.GridX < 0 || z.GridX >= resolution {
				continue
			}
			sums[z.GridY][z.GridX] += z.Severity
			counts[z.GridY][z.GridX]++
		}
	}

	for y := range sums {
		for x := range sums[y] {
			if counts[y][x] > 0 {
				sums[y][x] /= float64(counts[y][x])
			}
		}
	}
	return sums
}

// RenderSeverityHeatmap draws a severity matrix as a PNG heatmap with a
// fixed [0,1] scale so heatmaps from different runs compare directly
func RenderSeverityHeatmap(cells [][]float64) ([]byte, error) {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, apperrors.NewValidationError("severity grid must not be empty", nil)
	}

	p := plot.New()
	p.Title.Text = "Field Stress Distribution"
	p.X.Label.Text = "Grid X"
	p.Y.Label.Text = "Grid Y"

	heatmap := plotter.NewHeatMap(severityGrid{cells: cells}, newStressPalette(64))
	heatmap.Min = 0
	heatmap.Max = 1
	p.Add(heatmap)

	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, apperrors.NewInternalError("failed to render heatmap", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, apperrors.NewInternalError("failed to encode heatmap", err)
	}
	return buf.Bytes(), nil
}

// WriteHeatmap renders the batch's aggregate stress heatmap into the
// output directory
func (w *Writer) WriteHeatmap(entries []Entry, resolution int) (string, error) {
	png, err := RenderSeverityHeatmap(AggregateSeverity(entries, resolution))
	if err != nil {
		return "", err
	}
	return w.WriteHeatmapPNG(png)
}

// WriteHeatmapPNG writes already-rendered heatmap bytes, letting callers
// render once and reuse the bytes for the PDF embed
func (w *Writer) WriteHeatmapPNG(png []byte) (string, error) {
	path := filepath.Join(w.dir, HeatmapName)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", apperrors.NewStorageError("failed to write heatmap", err)
	}
	return path, nil
}
