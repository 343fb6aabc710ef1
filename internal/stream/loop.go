package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/WeibelLab/JPEGTurbo-Unity/internal/encoder"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/metrics"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/server"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/source"
)

// safetyMargin is shaved off every frame budget before sleeping, absorbing
// scheduler wake-up latency. Matches the reference pacing of (1/fps - 5ms).
const safetyMargin = 5 * time.Millisecond

// calibrationIterations is the number of warm-up produce+encode rounds used
// to measure the achievable frame rate.
const calibrationIterations = 100

// State is the lifecycle of a streaming loop. A loop runs once; a stopped
// loop cannot be restarted.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Mode selects the per-iteration frame path, fixed at construction.
type Mode int

const (
	// ModeRaw produces and encodes a frame every iteration.
	ModeRaw Mode = iota
	// ModePreEncoded encodes every frame of a finite source once at
	// construction and replays the buffers in a loop.
	ModePreEncoded
)

// Broadcaster is the delivery half the loop drives each iteration.
type Broadcaster interface {
	Broadcast(frame []byte) server.BroadcastResult
}

// Config holds the immutable loop parameters.
type Config struct {
	FPS       int
	PreEncode bool
	Calibrate bool
}

// Loop is the top-level driver: produce a frame, encode, broadcast, sleep
// the remainder of the frame budget. It owns start/stop and the playback
// index; everything it touches concurrently lives behind the broadcaster.
type Loop struct {
	src         source.Source
	enc         *encoder.Encoder
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mode      Mode
	fps       int
	calibrate bool

	// ModePreEncoded playback state, touched only by Run's goroutine.
	encoded [][]byte
	current int

	mu       sync.RWMutex
	state    State
	frames   uint64
	overruns uint64
}

// NewLoop validates the configuration and, in pre-encode mode, encodes the
// whole finite source up front. A live source cannot be pre-encoded and an
// empty finite source fails fast.
func NewLoop(cfg Config, src source.Source, enc *encoder.Encoder,
	b Broadcaster, logger *slog.Logger, m *metrics.Metrics) (*Loop, error) {

	if cfg.FPS < 1 {
		return nil, fmt.Errorf("fps must be positive, got %d", cfg.FPS)
	}
	if src == nil {
		return nil, fmt.Errorf("frame source is required")
	}
	if enc == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if b == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}

	l := &Loop{
		src:         src,
		enc:         enc,
		broadcaster: b,
		logger:      logger,
		metrics:     m,
		mode:        ModeRaw,
		fps:         cfg.FPS,
		calibrate:   cfg.Calibrate,
		state:       StateIdle,
	}

	if cfg.PreEncode {
		if src.Len() == 0 {
			return nil, fmt.Errorf("cannot pre-encode a live source")
		}

		start := time.Now()
		encoded := make([][]byte, 0, src.Len())
		for i := 0; i < src.Len(); i++ {
			img, err := src.Next()
			if err != nil {
				return nil, fmt.Errorf("failed to produce frame %d for pre-encoding: %w", i, err)
			}
			buf, err := enc.Encode(img)
			if err != nil {
				return nil, fmt.Errorf("failed to pre-encode frame %d: %w", i, err)
			}
			encoded = append(encoded, buf)
		}
		if len(encoded) == 0 {
			return nil, fmt.Errorf("frame source yielded no frames to pre-encode")
		}

		l.mode = ModePreEncoded
		l.encoded = encoded
		logger.Info("Pre-encoded frames",
			slog.Int("frame_count", len(encoded)),
			slog.Duration("elapsed", time.Since(start)),
		)
	}

	return l, nil
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Statistics returns loop counters.
func (l *Loop) Statistics() LoopStatistics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LoopStatistics{
		State:        l.state.String(),
		FramesSent:   l.frames,
		Overruns:     l.overruns,
		EffectiveFPS: l.fps,
	}
}

// LoopStatistics represents loop counters for monitoring
type LoopStatistics struct {
	State        string `json:"state"`
	FramesSent   uint64 `json:"frames_sent"`
	Overruns     uint64 `json:"overruns"`
	EffectiveFPS int    `json:"effective_fps"`
}

// Run drives the streaming loop until ctx is cancelled or an iteration
// fails. Cancellation is observed at iteration boundaries: an in-flight
// broadcast always completes. Run returns nil on graceful stop and the
// iteration error when the loop dies. A Loop runs at most once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateIdle {
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("loop cannot start from state %s", state)
	}
	l.state = StateRunning
	l.mu.Unlock()

	defer l.setState(StateStopped)

	if l.calibrate && l.mode == ModeRaw {
		l.runCalibration()
	}

	budget := time.Second/time.Duration(l.fps) - safetyMargin
	l.logger.Info("Streaming loop started",
		slog.Int("fps", l.fps),
		slog.Duration("frame_budget", budget+safetyMargin),
		slog.Bool("pre_encoded", l.mode == ModePreEncoded),
	)

	for {
		select {
		case <-ctx.Done():
			l.setState(StateStopping)
			l.logger.Info("Stop requested, leaving streaming loop")
			return nil
		default:
		}

		start := time.Now()
		if err := l.iterate(); err != nil {
			l.setState(StateStopping)
			l.logger.Error("Streaming loop failed",
				slog.String("error", err.Error()),
			)
			return err
		}

		elapsed := time.Since(start)
		if remaining := budget - elapsed; remaining > 0 {
			time.Sleep(remaining)
		} else {
			l.mu.Lock()
			l.overruns++
			l.mu.Unlock()
			if l.metrics != nil {
				l.metrics.RecordOverrun()
			}
			l.logger.Warn("Frame took longer than its budget",
				slog.Duration("elapsed", elapsed),
				slog.Duration("budget", budget+safetyMargin),
			)
		}
	}
}

// iterate runs one produce-encode-broadcast round. Any error it returns is
// loop-fatal; per-client delivery failures are handled inside Broadcast and
// never surface here.
func (l *Loop) iterate() error {
	var frame []byte

	switch l.mode {
	case ModePreEncoded:
		frame = l.encoded[l.current]
		l.current = (l.current + 1) % len(l.encoded)

	case ModeRaw:
		img, err := l.src.Next()
		if err != nil {
			return fmt.Errorf("frame source failed: %w", err)
		}

		encodeStart := time.Now()
		frame, err = l.enc.Encode(img)
		if err != nil {
			return fmt.Errorf("frame encoding failed: %w", err)
		}
		if l.metrics != nil {
			l.metrics.RecordEncode(time.Since(encodeStart).Seconds())
		}
	}

	l.broadcaster.Broadcast(frame)

	l.mu.Lock()
	l.frames++
	l.mu.Unlock()

	return nil
}

// runCalibration measures how fast frames can be produced and encoded,
// without broadcasting, and clamps the target FPS to the measured ceiling.
// The clamp is advisory: it sizes the budget once, it is not enforced
// per-frame afterwards.
func (l *Loop) runCalibration() {
	l.logger.Info("Calibrating achievable frame rate",
		slog.Int("iterations", calibrationIterations),
	)

	start := time.Now()
	for i := 0; i < calibrationIterations; i++ {
		img, err := l.src.Next()
		if err != nil {
			l.logger.Warn("Calibration aborted, source failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if _, err := l.enc.Encode(img); err != nil {
			l.logger.Warn("Calibration aborted, encoder failed",
				slog.String("error", err.Error()),
			)
			return
		}
	}
	elapsed := time.Since(start)

	ceiling := int(float64(calibrationIterations) / elapsed.Seconds())
	if ceiling < 1 {
		ceiling = 1
	}

	if ceiling < l.fps {
		l.logger.Warn("Target FPS exceeds achievable rate, clamping",
			slog.Int("target_fps", l.fps),
			slog.Int("measured_fps", ceiling),
		)
		l.mu.Lock()
		l.fps = ceiling
		l.mu.Unlock()
	} else {
		l.logger.Info("Calibration complete",
			slog.Int("target_fps", l.fps),
			slog.Int("measured_fps", ceiling),
		)
	}
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
