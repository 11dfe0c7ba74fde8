package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is the chat wire format, for both directions.
type Message struct {
	Type        string `json:"type"`
	Username    string `json:"username,omitempty"`
	Content     string `json:"content,omitempty"`
	Message     string `json:"message,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	OnlineCount int    `json:"onlineCount,omitempty"`
}

const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeMessage = "message"
	TypeWelcome = "welcome"
	TypeError   = "error"
)

// Room is a single shared chat room. Clients are tracked from
// connection time; they only become visible to others once they have
// joined with a username.
type Room struct {
	mu      sync.Mutex
	clients map[*client]bool
}

func NewRoom() *Room {
	return &Room{clients: make(map[*client]bool)}
}

func (r *Room) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = true
}

// join names a client and announces it to the room. Returns the online
// count for the welcome message.
func (r *Room) join(c *client, username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.username = username
	r.broadcastLocked(Message{
		Type:      TypeJoin,
		Username:  username,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, c)
	return len(r.clients)
}

// remove drops a client and, if it had joined, announces the departure.
func (r *Room) remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.removed {
		return
	}
	c.removed = true
	delete(r.clients, c)
	close(c.send)

	if c.username != "" {
		r.broadcastLocked(Message{
			Type:      TypeLeave,
			Username:  c.username,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, nil)
	}
}

// say broadcasts a chat message from a joined client to the whole room,
// sender included.
func (r *Room) say(c *client, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.username == "" {
		return
	}
	r.broadcastLocked(Message{
		Type:      TypeMessage,
		Username:  c.username,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil)
}

// send queues a frame for one client.
func (r *Room) send(c *client, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendLocked(c, msg)
}

func (r *Room) sendLocked(c *client, msg Message) {
	if c.removed {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal chat message")
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Warn().Str("username", c.username).Msg("chat send buffer full, dropping client")
		r.dropLocked(c)
	}
}

// broadcastLocked delivers to every client except exclude. Best-effort:
// a stalled client is dropped without aborting delivery to the rest.
func (r *Room) broadcastLocked(msg Message, exclude *client) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal chat message")
		return
	}
	for c := range r.clients {
		if c == exclude {
			continue
		}
		select {
		case c.send <- payload:
		default:
			log.Warn().Str("username", c.username).Msg("chat send buffer full, dropping client")
			r.dropLocked(c)
		}
	}
}

// dropLocked removes a client without a leave announcement; used for
// dead transports discovered during delivery.
func (r *Room) dropLocked(c *client) {
	if c.removed {
		return
	}
	c.removed = true
	delete(r.clients, c)
	close(c.send)
}

// OnlineCount returns the number of connected clients.
func (r *Room) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
