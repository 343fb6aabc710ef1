package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WeibelLab/JPEGTurbo-Unity/internal/config"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/encoder"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/metrics"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/server"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/source"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/stream"
)

const (
	serviceName    = "jpegstream"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)

	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("port", cfg.Server.Port),
		slog.Int("max_clients", cfg.Server.MaxClients),
		slog.Int("fps", cfg.Stream.FPS),
		slog.Int("quality", cfg.Stream.Quality),
		slog.String("colorspace", cfg.Stream.Colorspace),
		slog.String("source_mode", cfg.Source.Mode),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Build the frame source
	src, err := buildSource(cfg.Source)
	if err != nil {
		logger.Error("Failed to create frame source", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Build the encoder
	enc, err := encoder.NewEncoder(cfg.Stream.Quality, cfg.Stream.Colorspace)
	if err != nil {
		logger.Error("Failed to create encoder", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Initialize TCP streaming server
	tcpServer := server.NewTCPServer(&cfg.Server, logger, appMetrics)
	if err := tcpServer.Start(); err != nil {
		logger.Error("Failed to start TCP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Build the streaming loop. Pre-encoding only applies to finite sources.
	loopCfg := stream.Config{
		FPS:       cfg.Stream.FPS,
		PreEncode: cfg.Stream.PreEncode && src.Len() > 0,
		Calibrate: cfg.Stream.Calibrate,
	}
	loop, err := stream.NewLoop(loopCfg, src, enc, tcpServer, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create streaming loop", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize HTTP monitoring server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, tcpServer, appMetrics,
			func() interface{} { return loop.Statistics() })
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Cancel the loop context on interrupt for a graceful stop
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Streaming to clients, interrupt to stop",
		slog.String("tcp_address", tcpServer.Addr().String()),
	)

	// The loop runs on the main path; the accept loop runs beside it.
	loopErr := loop.Run(ctx)

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop TCP server (close listener and remaining clients)
	if err := tcpServer.Stop(); err != nil {
		logger.Error("Error stopping TCP server", slog.String("error", err.Error()))
	}

	stats := tcpServer.Statistics()
	loopStats := loop.Statistics()
	logger.Info("Final statistics",
		slog.Uint64("frames_broadcast", stats.FramesBroadcast),
		slog.Uint64("bytes_sent", stats.BytesSent),
		slog.Uint64("clients_accepted", stats.ClientsAccepted),
		slog.Uint64("clients_evicted", stats.ClientsEvicted),
		slog.Uint64("frame_overruns", loopStats.Overruns),
	)

	if loopErr != nil {
		logger.Error("Service stopped after loop failure", slog.String("error", loopErr.Error()))
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

// buildSource constructs the configured frame source
func buildSource(cfg config.SourceConfig) (source.Source, error) {
	switch cfg.Mode {
	case "clock":
		return source.NewClockSource(cfg.Width, cfg.Height, cfg.Background)
	case "dir":
		return source.NewDirSource(cfg.Dir, cfg.Width, cfg.Height)
	default:
		return nil, fmt.Errorf("unknown source mode '%s'", cfg.Mode)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
