package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/crowdvote/crowdvote/internal/registry"
)

// connection is the per-client actor. It owns the raw WebSocket and
// drives the handshake: the first inbound frame either admits the
// connection (reconnect token or join code) or rejects it, and after
// admission every frame is treated as a vote submission.
type connection struct {
	id      string
	conn    *websocket.Conn
	handler *Handler
	session *registry.Session
}

func newConnection(conn *websocket.Conn, h *Handler) *connection {
	return &connection{
		id:      uuid.NewString(),
		conn:    conn,
		handler: h,
	}
}

func (c *connection) run() {
	defer c.conn.Close()

	c.conn.SetReadLimit(c.handler.config.MaxMessageSize)

	if !c.handshake() {
		return
	}
	defer c.handler.registry.Remove(c.session)

	go c.writePump()
	c.readPump()
}

// handshake reads the first frame and decides admission. Exactly one
// transition happens: either a session is registered and the client is
// sent its team plus a fresh token, or an error frame is written and
// the connection closes.
func (c *connection) handshake() bool {
	c.conn.SetReadDeadline(time.Now().Add(c.handler.config.HandshakeTimeout))

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("connection closed before handshake")
		return false
	}

	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("unparseable handshake frame")
		c.reject(errInvalidData)
		return false
	}

	switch {
	case msg.ReconnectToken != "":
		claims, err := c.handler.tokens.Validate(msg.ReconnectToken)
		if err != nil {
			log.Info().Str("connection_id", c.id).Msg("reconnect rejected")
			c.reject(errInvalidToken)
			return false
		}
		// The token's team is authoritative; balancing is skipped.
		c.session = c.handler.registry.Resume(registry.Team(claims.Team))

	case c.handler.registry.JoinCodeMatches(msg.JoinCode):
		c.session = c.handler.registry.Join()

	default:
		log.Info().Str("connection_id", c.id).Msg("join rejected")
		c.reject(errInvalidCode)
		return false
	}

	return c.welcome()
}

// welcome rotates the token and queues the admission frame. The write
// pump has not started yet; the frame waits in the session's buffer.
func (c *connection) welcome() bool {
	signed, err := c.handler.tokens.Issue(int(c.session.Team))
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.id).Msg("failed to issue token")
		c.handler.registry.Remove(c.session)
		return false
	}

	payload, err := json.Marshal(admittedMessage{
		ReconnectToken: signed,
		Team:           int(c.session.Team),
	})
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.id).Msg("failed to marshal admission")
		c.handler.registry.Remove(c.session)
		return false
	}
	if !c.handler.registry.Send(c.session, payload) {
		return false
	}

	log.Info().
		Str("connection_id", c.id).
		Str("session_id", c.session.ID).
		Int("team", int(c.session.Team)).
		Msg("client admitted")
	return true
}

// reject writes an error frame directly; only valid before admission,
// while this goroutine is the connection's sole writer.
func (c *connection) reject(reason string) {
	payload, err := json.Marshal(errorMessage{Error: reason})
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.handler.config.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("failed to write rejection")
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// fail queues an error frame and removes the session. The removal
// closes the send channel, which makes the write pump flush the queued
// error and then close the transport.
func (c *connection) fail(reason string) {
	payload, err := json.Marshal(errorMessage{Error: reason})
	if err == nil {
		c.handler.registry.Send(c.session, payload)
	}
	c.handler.registry.Remove(c.session)
}

// readPump interprets every post-admission frame as a vote submission.
// The token is re-validated on each frame, so a token expiring
// mid-session ends the session. Malformed frames from an admitted
// client are dropped rather than penalized.
func (c *connection) readPump() {
	cfg := c.handler.config

	c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("unexpected close")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Str("connection_id", c.id).Msg("ignoring malformed vote frame")
			continue
		}

		if _, err := c.handler.tokens.Validate(msg.ReconnectToken); err != nil {
			log.Info().
				Str("connection_id", c.id).
				Str("session_id", c.session.ID).
				Msg("session token no longer valid, closing")
			c.fail(errInvalidToken)
			return
		}

		if err := c.handler.registry.SubmitChoice(c.session, registry.Choice(msg.Choice)); err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", c.id).
				Int("choice", msg.Choice).
				Msg("rejected vote")
		}
	}
}

// writePump is the single writer after admission. It drains the
// session's send channel and keeps the client alive with pings. When
// the registry closes the channel, buffered frames are flushed before
// the close frame goes out.
func (c *connection) writePump() {
	cfg := c.handler.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.session.Send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
