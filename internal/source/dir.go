package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirSource plays back every image found in a directory, in name order,
// wrapping around at the end. It stands in for finite video/array playback:
// all frames are decoded and scaled once at construction.
type DirSource struct {
	frames  []image.Image
	current int
}

// NewDirSource loads all JPEG and PNG files under dir, scaled to the given
// frame size. A directory that yields no frames is a construction error.
func NewDirSource(dir string, width, height int) (*DirSource, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := loadScaled(filepath.Join(dir, name), width, height)
		if err != nil {
			return nil, fmt.Errorf("failed to load frame %s: %w", name, err)
		}
		frames = append(frames, img)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}

	return &DirSource{frames: frames}, nil
}

// Next returns the current frame and advances the playback index.
func (d *DirSource) Next() (image.Image, error) {
	frame := d.frames[d.current]
	d.current = (d.current + 1) % len(d.frames)
	return frame, nil
}

// Len returns the number of loaded frames.
func (d *DirSource) Len() int {
	return len(d.frames)
}

// Position returns the index of the frame the next call to Next will serve.
func (d *DirSource) Position() int {
	return d.current
}

// Seek moves playback so the next frame served is frame n.
func (d *DirSource) Seek(n int) error {
	if n < 0 || n >= len(d.frames) {
		return fmt.Errorf("seek index %d out of range [0,%d)", n, len(d.frames))
	}
	d.current = n
	return nil
}
