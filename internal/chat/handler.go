package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	username string
	removed  bool
}

// Handler serves the example chat room at its own endpoint, independent
// of the voting core.
type Handler struct {
	room     *Room
	upgrader websocket.Upgrader
}

func NewHandler() *Handler {
	return &Handler{
		room: NewRoom(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleChatConnection upgrades the request and serves the chat loop.
func (h *Handler) HandleChatConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade chat connection")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.room.add(c)

	go h.writer(c)
	go h.reader(c)
}

func (h *Handler) reader(c *client) {
	defer func() {
		h.room.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.room.send(c, Message{Type: TypeError, Message: "invalid message format"})
			continue
		}

		switch {
		case msg.Type == TypeJoin && msg.Username != "":
			online := h.room.join(c, msg.Username)
			h.room.send(c, Message{
				Type:        TypeWelcome,
				Message:     fmt.Sprintf("Welcome to the chat, %s!", msg.Username),
				OnlineCount: online,
			})

		case msg.Type == TypeMessage && msg.Content != "":
			h.room.say(c, msg.Content)
		}
	}
}

func (h *Handler) writer(c *client) {
	defer c.conn.Close()

	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// RegisterRoutes registers the chat WebSocket endpoint.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat", h.HandleChatConnection)
}
