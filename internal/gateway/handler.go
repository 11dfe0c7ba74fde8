package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/crowdvote/crowdvote/internal/registry"
	"github.com/crowdvote/crowdvote/internal/token"
)

// Handler upgrades client requests to WebSocket and hands each
// connection to its own actor.
type Handler struct {
	registry *registry.Registry
	tokens   *token.Service
	upgrader websocket.Upgrader
	config   Config
}

func NewHandler(reg *registry.Registry, tokens *token.Service, cfg Config) *Handler {
	return &Handler{
		registry: reg,
		tokens:   tokens,
		config:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// HandleClientConnection upgrades the request and runs the connection
// through handshake and the vote loop.
func (h *Handler) HandleClientConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := newConnection(conn, h)
	log.Debug().Str("connection_id", c.id).Str("remote", r.RemoteAddr).Msg("WebSocket connection established")
	go c.run()
}

// RegisterRoutes registers the client WebSocket endpoint.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleClientConnection)
}
