package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/crowdvote/crowdvote/internal/events"
	"github.com/crowdvote/crowdvote/internal/registry"
)

// Controller is the administrative surface for the voting window: thin
// orchestration over the session registry, exposed over HTTP to the
// operator console. It optionally mirrors lifecycle events to an
// external publisher for display clients.
type Controller struct {
	registry *registry.Registry
	events   events.Publisher
}

// NewController creates a controller. The publisher may be nil, in
// which case no side-channel events are emitted.
func NewController(reg *registry.Registry, pub events.Publisher) *Controller {
	return &Controller{registry: reg, events: pub}
}

// Start opens the voting window. Reopening an already-open window
// starts a new round.
func (c *Controller) Start(ctx context.Context) {
	c.registry.OpenVoting()
	c.publish(ctx, events.TypeVotingOpened, c.registry.Snapshot())
}

// Stop closes the voting window.
func (c *Controller) Stop(ctx context.Context) {
	c.registry.CloseVoting()
	c.publish(ctx, events.TypeVotingClosed, c.registry.Snapshot())
}

// Results returns the current tally and team populations. Never cached:
// each call reflects registry state at call time.
func (c *Controller) Results() registry.Results {
	return c.registry.Snapshot()
}

func (c *Controller) publish(ctx context.Context, eventType string, payload any) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, eventType, payload); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// HandleStartVote handles POST /api/start-vote.
func (c *Controller) HandleStartVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c.Start(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// HandleStopVote handles POST /api/stop-vote.
func (c *Controller) HandleStopVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c.Stop(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// HandleResults handles GET /api/results.
func (c *Controller) HandleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.Results()); err != nil {
		log.Error().Err(err).Msg("failed to encode results response")
	}
}

// RegisterRoutes registers the admin HTTP routes.
func (c *Controller) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/start-vote", c.HandleStartVote)
	mux.HandleFunc("/api/stop-vote", c.HandleStopVote)
	mux.HandleFunc("/api/results", c.HandleResults)
}
