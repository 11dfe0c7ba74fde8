package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from the environment after
// godotenv has loaded any .env file.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// JoinCode is the code currently accepted for new sessions; it is
	// rotated by whatever generates the QR codes.
	JoinCode string `env:"JOIN_CODE,required,notEmpty"`

	// SigningSecret signs reconnect tokens. Its absence is a fatal
	// startup error, checked when the token service is built.
	SigningSecret string `env:"JWT_ENCRYPTION_KEY"`

	// NATSURL enables the side-channel event publisher when set.
	NATSURL      string `env:"NATS_URL"`
	EventSubject string `env:"EVENT_SUBJECT" envDefault:"crowdvote.events"`

	// GatewayConfig points at an optional YAML tuning file for the
	// WebSocket connection settings.
	GatewayConfig string `env:"GATEWAY_CONFIG"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
