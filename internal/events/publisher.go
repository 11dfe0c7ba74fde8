package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Event types published on the side channel for external display
// clients.
const (
	TypeVotingOpened = "VotingOpened"
	TypeVotingClosed = "VotingClosed"
)

// Publisher pushes voting lifecycle events to an external channel.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// envelope is the wire shape consumed by display clients.
type envelope struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NATSPublisher publishes envelopes to <prefix>.<eventType> subjects.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// Connect dials NATS with reconnect handling and returns a publisher
// rooted at the given subject prefix.
func Connect(url, subjectPrefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, subject: subjectPrefix}, nil
}

// Publish sends one event. Delivery is fire-and-forget: display clients
// reading the side channel are not part of the voting core.
func (p *NATSPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	msg, err := json.Marshal(envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := p.subjectFor(eventType)
	if err := p.nc.Publish(subject, msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	log.Debug().Str("subject", subject).Str("event_type", eventType).Msg("event published")
	return nil
}

func (p *NATSPublisher) subjectFor(eventType string) string {
	return fmt.Sprintf("%s.%s", p.subject, eventType)
}

// Close drains the NATS connection.
func (p *NATSPublisher) Close() {
	p.nc.Close()
}
