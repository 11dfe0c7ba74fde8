package gateway

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds tuning for client WebSocket connections.
type Config struct {
	WriteTimeout     time.Duration
	PongTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	CheckOrigin      func(r *http.Request) bool
}

// fileConfig is the YAML shape of the optional tuning file. Zero fields
// keep their defaults.
type fileConfig struct {
	WriteTimeoutSec     int   `yaml:"write_timeout_sec"`
	PongTimeoutSec      int   `yaml:"pong_timeout_sec"`
	PingIntervalSec     int   `yaml:"ping_interval_sec"`
	HandshakeTimeoutSec int   `yaml:"handshake_timeout_sec"`
	MaxMessageSize      int64 `yaml:"max_message_size"`
	ReadBufferSize      int   `yaml:"read_buffer_size"`
	WriteBufferSize     int   `yaml:"write_buffer_size"`
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:     10 * time.Second,
		PongTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		MaxMessageSize:   1024,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin: func(r *http.Request) bool {
			// Clients join by scanning a QR code from arbitrary origins.
			return true
		},
	}
}

// LoadConfig overlays settings from a YAML tuning file onto the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read gateway config: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse gateway config: %w", err)
	}

	if file.WriteTimeoutSec > 0 {
		cfg.WriteTimeout = time.Duration(file.WriteTimeoutSec) * time.Second
	}
	if file.PongTimeoutSec > 0 {
		cfg.PongTimeout = time.Duration(file.PongTimeoutSec) * time.Second
	}
	if file.PingIntervalSec > 0 {
		cfg.PingInterval = time.Duration(file.PingIntervalSec) * time.Second
	}
	if file.HandshakeTimeoutSec > 0 {
		cfg.HandshakeTimeout = time.Duration(file.HandshakeTimeoutSec) * time.Second
	}
	if file.MaxMessageSize > 0 {
		cfg.MaxMessageSize = file.MaxMessageSize
	}
	if file.ReadBufferSize > 0 {
		cfg.ReadBufferSize = file.ReadBufferSize
	}
	if file.WriteBufferSize > 0 {
		cfg.WriteBufferSize = file.WriteBufferSize
	}

	return cfg, nil
}
