package analyzer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"runtime"
	"sync"

	_ "golang.org/x/image/tiff"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
)

// bandExtractor implements BandExtractor for the canonical [R G B NIR]
// band layout. 4-band capture rigs store NIR in the alpha plane.
type bandExtractor struct{}

// NewBandExtractor creates a band extractor for PNG, JPEG, GIF and TIFF input
func NewBandExtractor() BandExtractor {
	return &bandExtractor{}
}

// ExtractBands decodes the payload and splits it into normalized planes.
// declaredChannels must match what the capture actually carries: declaring 4
// channels for an image without a usable NIR plane is a channel mismatch,
// not a silent downgrade.
func (be *bandExtractor) ExtractBands(imageBytes []byte, declaredChannels int) (*RawImage, error) {
	if declaredChannels != 3 && declaredChannels != 4 {
		return nil, apperrors.NewChannelMismatchError(
			fmt.Sprintf("declared channels must be 3 or 4, got %d", declaredChannels), nil)
	}
	if len(imageBytes) == 0 {
		return nil, apperrors.NewDecodeError("empty image payload", nil)
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, apperrors.NewDecodeError("unable to decode image", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, apperrors.NewDecodeError("decoded image has no pixels", nil)
	}

	if declaredChannels == 4 {
		return be.extractFourChannel(img)
	}
	return be.extractThreeChannel(img), nil
}

// extractFourChannel reads the four planes straight from the pixel buffer.
// At().RGBA() premultiplies color by alpha, which would corrupt the bands
// when alpha carries NIR, so only raw-Pix color models are accepted.
// Samples are read as stored regardless of the container's
// alpha-interpretation tag; capture rigs write straight samples.
func (be *bandExtractor) extractFourChannel(img image.Image) (*RawImage, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	raw := &RawImage{
		Width:    width,
		Height:   height,
		Channels: 4,
		Red:      make([]float64, width*height),
		Green:    make([]float64, width*height),
		Blue:     make([]float64, width*height),
		NIR:      make([]float64, width*height),
	}

	var alphaMin, alphaMax float64
	switch src := img.(type) {
	case *image.NRGBA:
		alphaMin, alphaMax = be.readPix8(src.Pix, src.Stride, raw)
	case *image.RGBA:
		alphaMin, alphaMax = be.readPix8(src.Pix, src.Stride, raw)
	case *image.NRGBA64:
		alphaMin, alphaMax = be.readPix16(src.Pix, src.Stride, raw)
	case *image.RGBA64:
		alphaMin, alphaMax = be.readPix16(src.Pix, src.Stride, raw)
	default:
		return nil, apperrors.NewChannelMismatchError(
			fmt.Sprintf("declared 4 channels but decoded color model %T has no fourth plane", src), nil)
	}

	// A uniformly opaque alpha plane is an ordinary RGB image, not a NIR
	// capture
	if alphaMin == 1 && alphaMax == 1 {
		return nil, apperrors.NewChannelMismatchError(
			"declared 4 channels but the fourth plane is uniformly opaque", nil)
	}
	return raw, nil
}

// readPix8 fills the planes from an 8-bit RGBA pixel buffer and returns the
// normalized min/max of the fourth plane
func (be *bandExtractor) readPix8(pix []uint8, stride int, raw *RawImage) (alphaMin, alphaMax float64) {
	alphaMin, alphaMax = 1, 0
	i := 0
	for y := 0; y < raw.Height; y++ {
		row := y * stride
		for x := 0; x < raw.Width; x++ {
			p := row + x*4
			raw.Red[i] = float64(pix[p]) / 255.0
			raw.Green[i] = float64(pix[p+1]) / 255.0
			raw.Blue[i] = float64(pix[p+2]) / 255.0
			nir := float64(pix[p+3]) / 255.0
			raw.NIR[i] = nir
			if nir < alphaMin {
				alphaMin = nir
			}
			if nir > alphaMax {
				alphaMax = nir
			}
			i++
		}
	}
	return alphaMin, alphaMax
}

// readPix16 fills the planes from a 16-bit big-endian RGBA pixel buffer
func (be *bandExtractor) readPix16(pix []uint8, stride int, raw *RawImage) (alphaMin, alphaMax float64) {
	alphaMin, alphaMax = 1, 0
	i := 0
	for y := 0; y < raw.Height; y++ {
		row := y * stride
		for x := 0; x < raw.Width; x++ {
			p := row + x*8
			raw.Red[i] = float64(uint16(pix[p])<<8|uint16(pix[p+1])) / 65535.0
			raw.Green[i] = float64(uint16(pix[p+2])<<8|uint16(pix[p+3])) / 65535.0
			raw.Blue[i] = float64(uint16(pix[p+4])<<8|uint16(pix[p+5])) / 65535.0
			nir := float64(uint16(pix[p+6])<<8|uint16(pix[p+7])) / 65535.0
			raw.NIR[i] = nir
			if nir < alphaMin {
				alphaMin = nir
			}
			if nir > alphaMax {
				alphaMax = nir
			}
			i++
		}
	}
	return alphaMin, alphaMax
}

// extractThreeChannel handles any decoded color model through At().
// Grayscale sources replicate the gray plane into all three bands.
func (be *bandExtractor) extractThreeChannel(img image.Image) *RawImage {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	raw := &RawImage{
		Width:    width,
		Height:   height,
		Channels: 3,
		Red:      make([]float64, width*height),
		Green:    make([]float64, width*height),
		Blue:     make([]float64, width*height),
	}

	numWorkers := runtime.NumCPU()
	if height < numWorkers {
		numWorkers = height
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers // ceil division

	var wg sync.WaitGroup
	// Horizontal strips write disjoint plane ranges, so no channel is needed
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		if startY >= endY {
			break
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				i := y * width
				for x := 0; x < width; x++ {
					r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
					raw.Red[i] = float64(r) / 65535.0
					raw.Green[i] = float64(g) / 65535.0
					raw.Blue[i] = float64(b) / 65535.0
					i++
				}
			}
		}(startY, endY)
	}
	wg.Wait()
	return raw
}
