package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Stream  StreamConfig  `yaml:"stream"`
	Source  SourceConfig  `yaml:"source"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains TCP streaming server configuration
type ServerConfig struct {
	BindAddress  string `yaml:"bind_address"`
	Port         int    `yaml:"port"`
	MaxClients   int    `yaml:"max_clients"`
	WriteTimeout int    `yaml:"write_timeout"` // seconds, per-client send deadline
}

// StreamConfig contains frame pacing and encoding parameters
type StreamConfig struct {
	FPS        int    `yaml:"fps"`
	Quality    int    `yaml:"quality"`    // JPEG quality, 1-100
	Colorspace string `yaml:"colorspace"` // "color" or "gray"
	PreEncode  bool   `yaml:"pre_encode"` // encode all frames of a finite source at startup
	Calibrate  bool   `yaml:"calibrate"`  // measure achievable FPS before streaming
}

// SourceConfig selects and configures the frame source
type SourceConfig struct {
	Mode       string `yaml:"mode"` // "clock" or "dir"
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Background string `yaml:"background"` // optional background image for clock mode
	Dir        string `yaml:"dir"`        // image directory for dir mode
}

// HTTPConfig contains the monitoring API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is supplied,
// matching the reference defaults (0.0.0.0:50000, 30 FPS, quality 90).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:  "0.0.0.0",
			Port:         50000,
			MaxClients:   5,
			WriteTimeout: 5,
		},
		Stream: StreamConfig{
			FPS:        30,
			Quality:    90,
			Colorspace: "color",
			PreEncode:  true,
		},
		Source: SourceConfig{
			Mode:   "clock",
			Width:  800,
			Height: 600,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxClients < 1 {
		return fmt.Errorf("max_clients must be at least 1, got %d", s.MaxClients)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.FPS < 1 {
		return fmt.Errorf("fps must be positive, got %d", s.FPS)
	}

	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", s.Quality)
	}

	validColorspaces := map[string]bool{"color": true, "gray": true}
	if !validColorspaces[s.Colorspace] {
		return fmt.Errorf("colorspace must be 'color' or 'gray', got '%s'", s.Colorspace)
	}

	return nil
}

// Validate validates source configuration
func (s *SourceConfig) Validate() error {
	validModes := map[string]bool{"clock": true, "dir": true}
	if !validModes[s.Mode] {
		return fmt.Errorf("mode must be 'clock' or 'dir', got '%s'", s.Mode)
	}

	if s.Width < 1 {
		return fmt.Errorf("width must be positive, got %d", s.Width)
	}

	if s.Height < 1 {
		return fmt.Errorf("height must be positive, got %d", s.Height)
	}

	if s.Mode == "dir" && s.Dir == "" {
		return fmt.Errorf("dir cannot be empty in dir mode")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output accepts stdout, stderr, or a file path; nothing to reject here.
	return nil
}

// GetWriteTimeoutDuration returns the per-client write deadline as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetFrameBudget returns the per-frame time budget for the configured FPS
func (s *StreamConfig) GetFrameBudget() time.Duration {
	return time.Second / time.Duration(s.FPS)
}
