package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crowdvote/crowdvote/internal/admin"
	"github.com/crowdvote/crowdvote/internal/chat"
	"github.com/crowdvote/crowdvote/internal/events"
	"github.com/crowdvote/crowdvote/internal/gateway"
	"github.com/crowdvote/crowdvote/internal/registry"
	"github.com/crowdvote/crowdvote/internal/token"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	tokens, err := token.NewService(cfg.SigningSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("JWT_ENCRYPTION_KEY is required")
	}

	gatewayConfig := gateway.DefaultConfig()
	if cfg.GatewayConfig != "" {
		gatewayConfig, err = gateway.LoadConfig(cfg.GatewayConfig)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.GatewayConfig).Msg("failed to load gateway config")
		}
	}

	reg := registry.New(cfg.JoinCode)

	var publisher events.Publisher
	if cfg.NATSURL != "" {
		np, err := events.Connect(cfg.NATSURL, cfg.EventSubject)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("failed to connect to NATS")
		}
		defer np.Close()
		publisher = np
		log.Info().Str("url", cfg.NATSURL).Str("subject", cfg.EventSubject).Msg("event publisher enabled")
	}

	gw := gateway.NewHandler(reg, tokens, gatewayConfig)
	ctrl := admin.NewController(reg, publisher)
	room := chat.NewHandler()

	server := setupServer(cfg, reg, gw, ctrl, room)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
