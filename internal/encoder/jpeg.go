package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// Colorspace tags accepted by NewEncoder
const (
	ColorspaceColor = "color"
	ColorspaceGray  = "gray"
)

// Encoder converts raw images into JPEG buffers at a fixed quality and
// colorspace. It is stateless after construction and safe for concurrent use.
type Encoder struct {
	quality    int
	colorspace string
}

// NewEncoder creates an encoder, rejecting out-of-range quality and unknown
// colorspace tags.
func NewEncoder(quality int, colorspace string) (*Encoder, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}

	switch colorspace {
	case ColorspaceColor, ColorspaceGray:
	default:
		return nil, fmt.Errorf("unknown colorspace '%s' (expected '%s' or '%s')",
			colorspace, ColorspaceColor, ColorspaceGray)
	}

	return &Encoder{quality: quality, colorspace: colorspace}, nil
}

// Quality returns the configured JPEG quality.
func (e *Encoder) Quality() int {
	return e.quality
}

// Colorspace returns the configured colorspace tag.
func (e *Encoder) Colorspace() string {
	return e.colorspace
}

// Encode compresses img into a JPEG buffer. The returned slice is freshly
// allocated and owned by the caller.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("cannot encode nil image")
	}

	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return nil, fmt.Errorf("cannot encode empty image (%dx%d)", bounds.Dx(), bounds.Dy())
	}

	if e.colorspace == ColorspaceGray {
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
		img = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("jpeg encoding failed: %w", err)
	}

	return buf.Bytes(), nil
}
