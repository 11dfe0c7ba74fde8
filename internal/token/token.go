package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TTL is how long a reconnect token stays valid after issuance.
const TTL = time.Hour

// ErrInvalidToken covers every validation failure: malformed input, bad
// signature and expiry. Callers must not distinguish these cases; the
// concrete cause is only logged for diagnostics.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the signed claims carried by a reconnect token. The team
// is authoritative on reconnection: a valid token fully determines the
// resumed session's team. The subject is a random id for uniqueness
// only, it is never used for lookup.
type Claims struct {
	Team int `json:"team"`
	jwt.RegisteredClaims
}

// Service issues and validates signed reconnect tokens. It is stateless:
// every token is an independent bearer credential, so issuing a new one
// never invalidates tokens issued earlier.
type Service struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewService creates a token service signing with the given secret.
// An empty secret is a configuration error.
func NewService(secret string) (*Service, error) {
	return NewServiceWithClock(secret, clockwork.NewRealClock())
}

// NewServiceWithClock is NewService with an injectable clock.
func NewServiceWithClock(secret string, clock clockwork.Clock) (*Service, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	return &Service{
		secret: []byte(secret),
		ttl:    TTL,
		clock:  clock,
	}, nil
}

// Issue signs a fresh token binding a session to its team.
func (s *Service) Issue(team int) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		Team: team,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Subject:   uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature and expiry of a token and returns its
// claims. Any failure maps to ErrInvalidToken.
func (s *Service) Validate(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		log.Debug().Err(err).Msg("token validation failed")
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
