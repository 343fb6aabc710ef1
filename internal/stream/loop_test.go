package stream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/WeibelLab/JPEGTurbo-Unity/internal/encoder"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/server"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEncoder(t *testing.T) *encoder.Encoder {
	t.Helper()
	enc, err := encoder.NewEncoder(80, encoder.ColorspaceColor)
	if err != nil {
		t.Fatal(err)
	}
	return enc
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// captureBroadcaster records every broadcast frame and can cancel a context
// after a fixed number of frames.
type captureBroadcaster struct {
	mu        sync.Mutex
	frames    [][]byte
	stopAfter int
	cancel    context.CancelFunc
}

func (b *captureBroadcaster) Broadcast(frame []byte) server.BroadcastResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make([]byte, len(frame))
	copy(copied, frame)
	b.frames = append(b.frames, copied)
	if b.stopAfter > 0 && len(b.frames) >= b.stopAfter && b.cancel != nil {
		b.cancel()
	}
	return server.BroadcastResult{Attempted: 1, Delivered: 1}
}

func (b *captureBroadcaster) Frames() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.frames))
	copy(out, b.frames)
	return out
}

// slowSource adds a fixed delay to every frame to simulate processing cost.
type slowSource struct {
	img   image.Image
	delay time.Duration
}

func (s *slowSource) Next() (image.Image, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.img, nil
}

func (s *slowSource) Len() int { return 0 }

// errorSource fails after a number of good frames.
type errorSource struct {
	img       image.Image
	failAfter int
	produced  int
}

func (s *errorSource) Next() (image.Image, error) {
	if s.produced >= s.failAfter {
		return nil, errors.New("capture device vanished")
	}
	s.produced++
	return s.img, nil
}

func (s *errorSource) Len() int { return 0 }

func TestNewLoopValidation(t *testing.T) {
	enc := testEncoder(t)
	src := &slowSource{img: solidImage(8, 8, color.Black)}
	b := &captureBroadcaster{}

	tests := []struct {
		name string
		cfg  Config
		src  source.Source
	}{
		{name: "zero fps", cfg: Config{FPS: 0}, src: src},
		{name: "negative fps", cfg: Config{FPS: -10}, src: src},
		{name: "nil source", cfg: Config{FPS: 30}, src: nil},
		{name: "pre-encode live source", cfg: Config{FPS: 30, PreEncode: true}, src: src},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoop(tt.cfg, tt.src, enc, b, testLogger(), nil); err == nil {
				t.Error("Expected construction error but got none")
			}
		})
	}
}

func TestLoopPacing(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	b := &captureBroadcaster{stopAfter: 10}
	src := &slowSource{img: solidImage(8, 8, color.White)}
	loop, err := NewLoop(Config{FPS: 10}, src, testEncoder(t), b, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.cancel = cancel

	start := time.Now()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	elapsed := time.Since(start)

	// 10 frames at 100ms budget, minus the safety margin per frame, plus
	// scheduling slack.
	if elapsed < 900*time.Millisecond {
		t.Errorf("10 frames at 10 FPS finished too fast: %v", elapsed)
	}
	if elapsed > 1300*time.Millisecond {
		t.Errorf("10 frames at 10 FPS took too long: %v", elapsed)
	}
	if got := len(b.Frames()); got != 10 {
		t.Errorf("Expected 10 frames broadcast, got %d", got)
	}
}

// TestLoopOverrunDegradesNotCorrupts runs an unachievable 1000 FPS target
// with a 50ms per-frame cost: every iteration must still deliver one
// complete frame and count an overrun.
func TestLoopOverrunDegradesNotCorrupts(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	const frames = 5
	b := &captureBroadcaster{stopAfter: frames}
	src := &slowSource{img: solidImage(8, 8, color.White), delay: 50 * time.Millisecond}
	loop, err := NewLoop(Config{FPS: 1000}, src, testEncoder(t), b, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.cancel = cancel

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	delivered := b.Frames()
	if len(delivered) != frames {
		t.Fatalf("Expected %d frames, got %d", frames, len(delivered))
	}
	// Every frame is the same image, so every broadcast buffer must be a
	// complete, identical JPEG.
	for i, f := range delivered {
		if len(f) == 0 {
			t.Errorf("Frame %d is empty", i)
		}
		if !bytes.Equal(f, delivered[0]) {
			t.Errorf("Frame %d differs from frame 0, stream corrupted", i)
		}
	}

	stats := loop.Statistics()
	if stats.Overruns < frames-1 {
		t.Errorf("Expected at least %d overruns, got %d", frames-1, stats.Overruns)
	}
	if stats.FramesSent != frames {
		t.Errorf("Expected %d frames sent, got %d", frames, stats.FramesSent)
	}
}

// TestLoopPreEncodedWraparound pre-encodes a 3-frame source and checks that
// sends 4-6 repeat sends 1-3 byte for byte.
func TestLoopPreEncodedWraparound(t *testing.T) {
	imgs := []image.Image{
		solidImage(16, 16, color.RGBA{R: 255, A: 255}),
		solidImage(16, 16, color.RGBA{G: 255, A: 255}),
		solidImage(16, 16, color.RGBA{B: 255, A: 255}),
	}
	src, err := source.NewStaticSource(imgs)
	if err != nil {
		t.Fatal(err)
	}

	b := &captureBroadcaster{stopAfter: 6}
	loop, err := NewLoop(Config{FPS: 200, PreEncode: true}, src, testEncoder(t), b, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.cancel = cancel

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sent := b.Frames()
	if len(sent) != 6 {
		t.Fatalf("Expected 6 frames, got %d", len(sent))
	}
	for i := 0; i < 3; i++ {
		if !bytes.Equal(sent[i], sent[i+3]) {
			t.Errorf("Send %d and send %d differ, wraparound broken", i+1, i+4)
		}
	}
	// The three frames are distinct images, so their encodings must differ.
	if bytes.Equal(sent[0], sent[1]) || bytes.Equal(sent[1], sent[2]) {
		t.Error("Distinct frames encoded identically, playback index stuck")
	}
}

func TestLoopSourceErrorIsFatal(t *testing.T) {
	b := &captureBroadcaster{}
	src := &errorSource{img: solidImage(8, 8, color.White), failAfter: 3}
	loop, err := NewLoop(Config{FPS: 100}, src, testEncoder(t), b, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	err = loop.Run(context.Background())
	if err == nil {
		t.Fatal("Expected loop-fatal error but got none")
	}
	if loop.State() != StateStopped {
		t.Errorf("Expected state stopped, got %s", loop.State())
	}
	if got := len(b.Frames()); got != 3 {
		t.Errorf("Expected 3 good frames before failure, got %d", got)
	}
}

func TestLoopRunsOnce(t *testing.T) {
	b := &captureBroadcaster{stopAfter: 1}
	src := &slowSource{img: solidImage(8, 8, color.White)}
	loop, err := NewLoop(Config{FPS: 100}, src, testEncoder(t), b, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.cancel = cancel

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("First Run failed: %v", err)
	}
	if loop.State() != StateStopped {
		t.Fatalf("Expected state stopped, got %s", loop.State())
	}

	if err := loop.Run(context.Background()); err == nil {
		t.Error("Expected error when restarting a stopped loop")
	}
}

func TestLoopGracefulStop(t *testing.T) {
	b := &captureBroadcaster{}
	src := &slowSource{img: solidImage(8, 8, color.White)}
	loop, err := NewLoop(Config{FPS: 50}, src, testEncoder(t), b, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Graceful stop must return nil, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not stop after cancellation")
	}

	if loop.State() != StateStopped {
		t.Errorf("Expected state stopped, got %s", loop.State())
	}
}

func TestLoopCalibrationClampsFPS(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	// 20ms per frame caps the measured rate near 50 FPS, far below the
	// requested 100000.
	b := &captureBroadcaster{stopAfter: 1}
	src := &slowSource{img: solidImage(8, 8, color.White), delay: 20 * time.Millisecond}
	loop, err := NewLoop(Config{FPS: 100000, Calibrate: true}, src, testEncoder(t), b, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.cancel = cancel

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := loop.Statistics().EffectiveFPS; got >= 100000 {
		t.Errorf("Expected clamped FPS, still %d", got)
	}
}

// TestLoopStatisticsDuringRun polls Statistics from another goroutine while
// the loop calibrates and streams, the way the monitoring API reads it. Run
// under -race this covers the FPS clamp happening mid-read.
func TestLoopStatisticsDuringRun(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	b := &captureBroadcaster{stopAfter: 3}
	src := &slowSource{img: solidImage(8, 8, color.White), delay: 5 * time.Millisecond}
	loop, err := NewLoop(Config{FPS: 100000, Calibrate: true}, src, testEncoder(t), b, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.cancel = cancel

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			stats := loop.Statistics()
			if stats.EffectiveFPS < 1 {
				t.Errorf("Statistics reported FPS %d", stats.EffectiveFPS)
				return
			}
			if stats.State == StateStopped.String() {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	<-done

	final := loop.Statistics()
	if final.State != StateStopped.String() {
		t.Errorf("Expected stopped state, got %s", final.State)
	}
	if final.FramesSent < 3 {
		t.Errorf("Expected at least 3 frames sent, got %d", final.FramesSent)
	}
}
