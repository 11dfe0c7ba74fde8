package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Team identifies one of the two audience teams.
type Team int

const (
	Team1 Team = 1
	Team2 Team = 2
)

// Choice is a session's live vote. ChoiceNone means the session has not
// voted since the window last opened.
type Choice int

const (
	ChoiceNone  Choice = 0
	ChoiceLeft  Choice = 1
	ChoiceRight Choice = 2
)

// ErrInvalidChoice rejects vote values outside {left, right}.
var ErrInvalidChoice = errors.New("invalid choice")

// Actions broadcast to every live session when the voting window
// changes state.
const (
	ActionOpenVotes  = "open_votes"
	ActionCloseVotes = "close_votes"
)

type actionEvent struct {
	Action string `json:"action"`
}

const sendBuffer = 256

// Session is the server-side state for one connected client. The send
// channel is the session's transport handle: the connection's write
// pump drains it, and the registry closes it when the session is
// removed.
type Session struct {
	ID   string
	Team Team
	Send chan []byte

	choice  Choice
	removed bool
}

// Registry is the process-wide set of live sessions. One mutex guards
// the session set, the voting window flag and the join code together,
// so team balancing and tallies always read a consistent snapshot.
type Registry struct {
	mu         sync.Mutex
	sessions   map[*Session]bool
	votingOpen bool
	joinCode   string
}

// Results is a consistent snapshot of the current tally and team
// populations, in the wire shape served to the operator console.
type Results struct {
	Left  int `json:"left"`
	Right int `json:"right"`
	Team1 int `json:"team1_players"`
	Team2 int `json:"team2_players"`
}

func New(joinCode string) *Registry {
	return &Registry{
		sessions: make(map[*Session]bool),
		joinCode: joinCode,
	}
}

// Join admits a new session onto whichever team currently has fewer
// members; ties go to team 1. Assignment and registration happen under
// one lock so concurrent joins stay balanced, and the policy is
// recomputed on every join so it self-corrects as sessions leave.
func (r *Registry) Join() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	team1, team2 := r.teamCountsLocked()
	team := Team1
	if team1 > team2 {
		team = Team2
	}
	return r.addLocked(team)
}

// Resume admits a session onto the team carried by its reconnect token,
// bypassing balancing.
func (r *Registry) Resume(team Team) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(team)
}

func (r *Registry) addLocked(team Team) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		Team: team,
		Send: make(chan []byte, sendBuffer),
	}
	r.sessions[s] = true

	log.Debug().
		Str("session_id", s.ID).
		Int("team", int(team)).
		Int("sessions", len(r.sessions)).
		Msg("session registered")
	return s
}

// Remove drops a session and closes its send channel. Safe to call more
// than once; later calls are no-ops. No notification is broadcast:
// other sessions simply stop seeing it in the counts.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(s)
}

func (r *Registry) removeLocked(s *Session) {
	if s.removed {
		return
	}
	s.removed = true
	delete(r.sessions, s)
	close(s.Send)

	log.Debug().
		Str("session_id", s.ID).
		Int("sessions", len(r.sessions)).
		Msg("session removed")
}

// Send delivers one frame to one session. Every channel send goes
// through the registry lock so a send can never race the channel close
// in Remove. A full buffer means the connection is dead or stalled; the
// session is dropped, mirroring a transport failure.
func (r *Registry) Send(s *Session, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.removed {
		return false
	}
	select {
	case s.Send <- payload:
		return true
	default:
		log.Warn().Str("session_id", s.ID).Msg("send buffer full, dropping session")
		r.removeLocked(s)
		return false
	}
}

// OpenVoting opens the window, clears every session's live choice and
// notifies all sessions. Idempotent: calling it while already open
// simply starts a new round with all choices cleared again.
func (r *Registry) OpenVoting() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.votingOpen = true
	for s := range r.sessions {
		s.choice = ChoiceNone
	}
	r.broadcastLocked(ActionOpenVotes)

	log.Info().Int("sessions", len(r.sessions)).Msg("voting opened")
}

// CloseVoting closes the window and notifies all sessions. Idempotent.
func (r *Registry) CloseVoting() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.votingOpen = false
	r.broadcastLocked(ActionCloseVotes)

	log.Info().Msg("voting closed")
}

// VotingOpen reports whether votes currently have effect.
func (r *Registry) VotingOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.votingOpen
}

// broadcastLocked fans an action event out to every live session.
// Delivery is best-effort per recipient: a session whose buffer is full
// is dropped without aborting delivery to the rest.
func (r *Registry) broadcastLocked(action string) {
	payload, err := json.Marshal(actionEvent{Action: action})
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("failed to marshal action event")
		return
	}

	for s := range r.sessions {
		select {
		case s.Send <- payload:
		default:
			log.Warn().Str("session_id", s.ID).Msg("send buffer full, dropping session")
			r.removeLocked(s)
		}
	}
}

// SubmitChoice records a session's live choice, overwriting any prior
// submission this round. Votes while the window is closed are dropped
// without error. Values outside {left, right} are rejected rather than
// coerced.
func (r *Registry) SubmitChoice(s *Session, c Choice) error {
	if c != ChoiceLeft && c != ChoiceRight {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, c)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.votingOpen || s.removed {
		return nil
	}
	s.choice = c
	return nil
}

// TeamCounts returns the current population of each team.
func (r *Registry) TeamCounts() (team1, team2 int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teamCountsLocked()
}

func (r *Registry) teamCountsLocked() (team1, team2 int) {
	for s := range r.sessions {
		switch s.Team {
		case Team1:
			team1++
		case Team2:
			team2++
		}
	}
	return team1, team2
}

// Tally counts the sessions currently voting left and right. Sessions
// that have not voted this round are excluded from both counts.
func (r *Registry) Tally() (left, right int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tallyLocked()
}

func (r *Registry) tallyLocked() (left, right int) {
	for s := range r.sessions {
		switch s.choice {
		case ChoiceLeft:
			left++
		case ChoiceRight:
			right++
		}
	}
	return left, right
}

// Snapshot combines the tally and team counts under one lock.
func (r *Registry) Snapshot() Results {
	r.mu.Lock()
	defer r.mu.Unlock()

	left, right := r.tallyLocked()
	team1, team2 := r.teamCountsLocked()
	return Results{Left: left, Right: right, Team1: team1, Team2: team2}
}

// Size returns the number of live sessions.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// JoinCodeMatches compares a presented code against the currently
// accepted one.
func (r *Registry) JoinCodeMatches(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return code != "" && code == r.joinCode
}

// SetJoinCode rotates the code accepted for new joins. Sessions already
// admitted are unaffected.
func (r *Registry) SetJoinCode(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinCode = code
}
