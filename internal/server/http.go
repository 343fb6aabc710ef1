package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WeibelLab/JPEGTurbo-Unity/internal/config"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/metrics"
)

// HTTPServer provides HTTP API endpoints for monitoring the stream
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	tcpServer *TCPServer
	metrics   *metrics.Metrics
	loopStats func() interface{}

	startTime time.Time
}

// NewHTTPServer creates a new HTTP monitoring server. loopStats supplies the
// streaming loop counters for /stats; nil when no loop is running.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, tcpServer *TCPServer, m *metrics.Metrics,
	loopStats func() interface{}) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		tcpServer: tcpServer,
		metrics:   m,
		loopStats: loopStats,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Connected clients endpoint
	mux.HandleFunc("/clients", h.withMetrics("/clients", h.handleClients))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Response writer wrapper to capture the status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	h.logger.Info("HTTP API server stopped")
	return nil
}

// handleHealth responds to health check requests
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":            "healthy",
		"uptime_seconds":    time.Since(h.startTime).Seconds(),
		"connected_clients": h.tcpServer.ClientCount(),
	}

	h.writeJSON(w, response)
}

// handleClients lists the currently connected clients
func (h *HTTPServer) handleClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clients := h.tcpServer.Clients()
	response := map[string]interface{}{
		"count":   len(clients),
		"clients": clients,
	}

	h.writeJSON(w, response)
}

// handleConfig returns the active configuration
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"server": map[string]interface{}{
			"bind_address":  h.config.Server.BindAddress,
			"port":          h.config.Server.Port,
			"max_clients":   h.config.Server.MaxClients,
			"write_timeout": h.config.Server.WriteTimeout,
		},
		"stream": map[string]interface{}{
			"fps":        h.config.Stream.FPS,
			"quality":    h.config.Stream.Quality,
			"colorspace": h.config.Stream.Colorspace,
			"pre_encode": h.config.Stream.PreEncode,
			"calibrate":  h.config.Stream.Calibrate,
		},
		"source": map[string]interface{}{
			"mode":   h.config.Source.Mode,
			"width":  h.config.Source.Width,
			"height": h.config.Source.Height,
		},
	}

	h.writeJSON(w, response)
}

// handleStats returns server statistics
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"server":         h.tcpServer.Statistics(),
	}
	if h.loopStats != nil {
		response["stream"] = h.loopStats()
	}

	h.writeJSON(w, response)
}

// writeJSON writes a JSON response with proper headers
func (h *HTTPServer) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}
