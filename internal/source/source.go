package source

import (
	"fmt"
	"image"
)

// Source produces raw frames on demand. Implementations decide whether the
// sequence is finite (Len > 0, Next cycles) or live (Len == 0, Next renders
// or blocks until a frame is available).
type Source interface {
	// Next returns the next raw frame.
	Next() (image.Image, error)

	// Len returns the number of frames in a finite source, 0 for live sources.
	Len() int
}

// StaticSource serves a caller-provided slice of frames in a loop. It backs
// library use where frames are produced outside this module.
type StaticSource struct {
	frames  []image.Image
	current int
}

// NewStaticSource wraps frames into a cycling source. An empty slice is
// rejected so a misconfigured playback fails before the loop starts.
func NewStaticSource(frames []image.Image) (*StaticSource, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("static source requires at least one frame")
	}
	return &StaticSource{frames: frames}, nil
}

// Next returns the current frame and advances the playback index, wrapping
// at the end of the slice.
func (s *StaticSource) Next() (image.Image, error) {
	frame := s.frames[s.current]
	s.current = (s.current + 1) % len(s.frames)
	return frame, nil
}

// Len returns the number of frames.
func (s *StaticSource) Len() int {
	return len(s.frames)
}

// Position returns the index of the frame the next call to Next will serve.
func (s *StaticSource) Position() int {
	return s.current
}

// Seek moves playback so the next frame served is frame n.
func (s *StaticSource) Seek(n int) error {
	if n < 0 || n >= len(s.frames) {
		return fmt.Errorf("seek index %d out of range [0,%d)", n, len(s.frames))
	}
	s.current = n
	return nil
}
