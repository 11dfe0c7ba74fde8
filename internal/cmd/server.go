package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/crowdvote/crowdvote/internal/admin"
	"github.com/crowdvote/crowdvote/internal/chat"
	"github.com/crowdvote/crowdvote/internal/gateway"
	"github.com/crowdvote/crowdvote/internal/registry"
)

func setupServer(cfg Config, reg *registry.Registry, gw *gateway.Handler, ctrl *admin.Controller, room *chat.Handler) *http.Server {
	mux := http.NewServeMux()

	gw.RegisterRoutes(mux)
	ctrl.RegisterRoutes(mux)
	room.RegisterRoutes(mux)

	setupHealthCheck(mux)

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"crowdvote","connections":%d,"voting_open":%t}`,
			reg.Size(), reg.VotingOpen())
	})

	// The operator console and display client are served from other
	// origins.
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
