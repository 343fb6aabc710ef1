package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: 200, A: 255})
		}
	}
	return img
}

func TestNewEncoder(t *testing.T) {
	tests := []struct {
		name        string
		quality     int
		colorspace  string
		expectError bool
		errorMsg    string
	}{
		{name: "valid color", quality: 90, colorspace: ColorspaceColor},
		{name: "valid gray", quality: 1, colorspace: ColorspaceGray},
		{name: "max quality", quality: 100, colorspace: ColorspaceColor},
		{
			name:        "quality too low",
			quality:     0,
			colorspace:  ColorspaceColor,
			expectError: true,
			errorMsg:    "quality must be between 1 and 100",
		},
		{
			name:        "quality too high",
			quality:     101,
			colorspace:  ColorspaceColor,
			expectError: true,
			errorMsg:    "quality must be between 1 and 100",
		},
		{
			name:        "unknown colorspace",
			quality:     90,
			colorspace:  "BGR",
			expectError: true,
			errorMsg:    "unknown colorspace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncoder(tt.quality, tt.colorspace)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Fatalf("Expected no error but got: %v", err)
				}
				if enc.Quality() != tt.quality {
					t.Errorf("Expected quality %d, got %d", tt.quality, enc.Quality())
				}
				if enc.Colorspace() != tt.colorspace {
					t.Errorf("Expected colorspace %s, got %s", tt.colorspace, enc.Colorspace())
				}
			}
		})
	}
}

func TestEncodeProducesDecodableJPEG(t *testing.T) {
	enc, err := NewEncoder(90, ColorspaceColor)
	if err != nil {
		t.Fatal(err)
	}

	data, err := enc.Encode(testImage(64, 48))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Encode returned empty buffer")
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Output is not a decodable JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Errorf("Expected 64x48 output, got %v", decoded.Bounds())
	}
}

func TestEncodeGrayColorspace(t *testing.T) {
	enc, err := NewEncoder(90, ColorspaceGray)
	if err != nil {
		t.Fatal(err)
	}

	data, err := enc.Encode(testImage(32, 32))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Output is not a decodable JPEG: %v", err)
	}
	if cfg.ColorModel != color.GrayModel {
		t.Errorf("Expected grayscale JPEG, got color model %v", cfg.ColorModel)
	}
}

func TestEncodeInvalidInput(t *testing.T) {
	enc, err := NewEncoder(90, ColorspaceColor)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := enc.Encode(nil); err == nil {
		t.Error("Expected error for nil image but got none")
	}

	if _, err := enc.Encode(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("Expected error for empty image but got none")
	}
}

func TestEncodeQualityOrdering(t *testing.T) {
	img := testImage(128, 128)

	low, err := NewEncoder(10, ColorspaceColor)
	if err != nil {
		t.Fatal(err)
	}
	high, err := NewEncoder(95, ColorspaceColor)
	if err != nil {
		t.Fatal(err)
	}

	lowData, err := low.Encode(img)
	if err != nil {
		t.Fatal(err)
	}
	highData, err := high.Encode(img)
	if err != nil {
		t.Fatal(err)
	}

	if len(lowData) >= len(highData) {
		t.Errorf("Expected quality 10 output (%d bytes) smaller than quality 95 (%d bytes)",
			len(lowData), len(highData))
	}
}
