package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// timestampFormat renders microsecond precision, matching the wall-clock
// overlay of the original virtual clock.
const timestampFormat = "2006-01-02 15:04:05.000000"

// clockFontSize puts the rendered line at roughly a 20px cap height.
const clockFontSize = 28

// ClockSource renders the current time centered over a fixed background.
// It is a live source: every Next call produces a fresh frame.
type ClockSource struct {
	width      int
	height     int
	background image.Image
	face       font.Face
	now        func() time.Time
}

// NewClockSource creates a clock renderer at the given frame size. When
// backgroundPath is non-empty the image is loaded and scaled to the frame
// size once at construction; otherwise the background is solid black.
func NewClockSource(width, height int, backgroundPath string) (*ClockSource, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	ttf, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded font: %w", err)
	}
	face := truetype.NewFace(ttf, &truetype.Options{Size: clockFontSize})

	var background image.Image
	if backgroundPath != "" {
		background, err = loadScaled(backgroundPath, width, height)
		if err != nil {
			return nil, fmt.Errorf("failed to load background: %w", err)
		}
	}

	return &ClockSource{
		width:      width,
		height:     height,
		background: background,
		face:       face,
		now:        time.Now,
	}, nil
}

// Next renders one clock frame.
func (c *ClockSource) Next() (image.Image, error) {
	dc := gg.NewContext(c.width, c.height)

	if c.background != nil {
		dc.DrawImage(c.background, 0, 0)
	} else {
		dc.SetRGB(0, 0, 0)
		dc.Clear()
	}

	dc.SetFontFace(c.face)
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(c.now().Format(timestampFormat),
		float64(c.width)/2, float64(c.height)/2, 0.5, 0.5)

	return dc.Image(), nil
}

// Len reports the clock as a live source.
func (c *ClockSource) Len() int {
	return 0
}

// loadScaled decodes an image file and scales it to the target size.
func loadScaled(path string, width, height int) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		return img, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}
