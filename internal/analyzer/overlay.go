package analyzer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
)

// neutralGray marks pixels whose index value is non-finite
var neutralGray = color.RGBA{128, 128, 128, 255}

// overlayRenderer maps index values onto the red-to-green field ramp
type overlayRenderer struct{}

// NewOverlayRenderer creates the overlay renderer
func NewOverlayRenderer() OverlayRenderer {
	return &overlayRenderer{}
}

// Render produces the overlay PNG, one output pixel per raster cell.
// Values are clamped to [-1,1] here and only here; statistics upstream see
// the raw values.
func (or *overlayRenderer) Render(raster *Raster) ([]byte, error) {
	if raster == nil || len(raster.Values) == 0 {
		return nil, apperrors.NewInternalError("no raster to render", nil)
	}

	img := image.NewRGBA(image.Rect(0, 0, raster.Width, raster.Height))
	for y := 0; y < raster.Height; y++ {
		row := y * raster.Width
		for x := 0; x < raster.Width; x++ {
			img.SetRGBA(x, y, rampColor(raster.Values[row+x]))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.NewInternalError("unable to encode overlay", err)
	}
	return buf.Bytes(), nil
}

// rampColor maps [-1,1] onto red (low) through green (high)
func rampColor(v float64) color.RGBA {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return neutralGray
	}
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	scaled := (v + 1) / 2 * 255
	return color.RGBA{
		R: uint8(255 - scaled),
		G: uint8(scaled),
		B: uint8(255 - scaled*0.5),
		A: 255,
	}
}
