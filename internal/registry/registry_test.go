package registry

import (
	"encoding/json"
	"errors"
	"testing"
)

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// recvAction reads one frame from a session's send channel and returns
// the action field.
func recvAction(t *testing.T, s *Session) string {
	t.Helper()
	select {
	case payload, ok := <-s.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var event struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return event.Action
	default:
		t.Fatal("no event queued")
		return ""
	}
}

func TestJoinBalancesTeams(t *testing.T) {
	r := New("code")

	var sessions []*Session
	for i := 0; i < 9; i++ {
		s := r.Join()
		sessions = append(sessions, s)

		team1, team2 := r.TeamCounts()
		if abs(team1-team2) > 1 {
			t.Fatalf("after %d joins: counts %d/%d, imbalance > 1", i+1, team1, team2)
		}
	}

	// Ties break toward team 1: first two joins land on opposite teams.
	if sessions[0].Team != Team1 {
		t.Errorf("first join team = %d, want 1", sessions[0].Team)
	}
	if sessions[1].Team != Team2 {
		t.Errorf("second join team = %d, want 2", sessions[1].Team)
	}
}

func TestJoinRebalancesAfterLeave(t *testing.T) {
	r := New("code")

	s1 := r.Join() // team 1
	r.Join()       // team 2
	r.Join()       // team 1
	r.Join()       // team 2

	r.Remove(s1)

	// Team 1 is now short one member; the next join must land there.
	if s := r.Join(); s.Team != Team1 {
		t.Fatalf("join after leave team = %d, want 1", s.Team)
	}
}

func TestResumeKeepsTokenTeam(t *testing.T) {
	r := New("code")

	// Skew the balance heavily toward team 2 being the balanced pick.
	r.Resume(Team1)
	r.Resume(Team1)
	r.Resume(Team1)

	// A reconnecting team 1 session still lands on team 1.
	if s := r.Resume(Team1); s.Team != Team1 {
		t.Fatalf("Resume(Team1) team = %d, want 1", s.Team)
	}

	team1, team2 := r.TeamCounts()
	if team1 != 4 || team2 != 0 {
		t.Fatalf("TeamCounts() = %d/%d, want 4/0", team1, team2)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := New("code")
	s := r.Join()

	r.Remove(s)
	r.Remove(s)

	if got := r.Size(); got != 0 {
		t.Fatalf("Size() = %d, want 0", got)
	}
}

func TestSubmitChoiceTally(t *testing.T) {
	r := New("code")
	a := r.Join()
	b := r.Join()

	r.OpenVoting()

	if err := r.SubmitChoice(a, ChoiceLeft); err != nil {
		t.Fatalf("SubmitChoice(left) error = %v", err)
	}
	if err := r.SubmitChoice(b, ChoiceRight); err != nil {
		t.Fatalf("SubmitChoice(right) error = %v", err)
	}

	if left, right := r.Tally(); left != 1 || right != 1 {
		t.Fatalf("Tally() = %d/%d, want 1/1", left, right)
	}

	// Resubmitting overwrites, never accumulates.
	if err := r.SubmitChoice(a, ChoiceRight); err != nil {
		t.Fatalf("SubmitChoice(right) error = %v", err)
	}
	if left, right := r.Tally(); left != 0 || right != 2 {
		t.Fatalf("Tally() after revote = %d/%d, want 0/2", left, right)
	}
}

func TestSubmitChoiceWhileClosed(t *testing.T) {
	r := New("code")
	s := r.Join()

	// Never opened: vote is dropped without error.
	if err := r.SubmitChoice(s, ChoiceLeft); err != nil {
		t.Fatalf("SubmitChoice() while closed error = %v", err)
	}
	if left, right := r.Tally(); left != 0 || right != 0 {
		t.Fatalf("Tally() = %d/%d, want 0/0", left, right)
	}

	r.OpenVoting()
	if err := r.SubmitChoice(s, ChoiceLeft); err != nil {
		t.Fatalf("SubmitChoice() error = %v", err)
	}
	r.CloseVoting()

	// Late vote after close has no effect.
	if err := r.SubmitChoice(s, ChoiceRight); err != nil {
		t.Fatalf("SubmitChoice() after close error = %v", err)
	}
	if left, right := r.Tally(); left != 1 || right != 0 {
		t.Fatalf("Tally() after late vote = %d/%d, want 1/0", left, right)
	}
}

func TestSubmitChoiceRejectsInvalidValues(t *testing.T) {
	r := New("code")
	s := r.Join()
	r.OpenVoting()

	for _, c := range []Choice{ChoiceNone, 3, -1, 42} {
		if err := r.SubmitChoice(s, c); !errors.Is(err, ErrInvalidChoice) {
			t.Errorf("SubmitChoice(%d) error = %v, want ErrInvalidChoice", c, err)
		}
	}

	if left, right := r.Tally(); left != 0 || right != 0 {
		t.Fatalf("Tally() = %d/%d, want 0/0", left, right)
	}
}

func TestOpenVotingResetsChoices(t *testing.T) {
	r := New("code")
	sessions := []*Session{r.Join(), r.Join(), r.Join()}

	r.OpenVoting()
	for _, s := range sessions {
		if err := r.SubmitChoice(s, ChoiceLeft); err != nil {
			t.Fatalf("SubmitChoice() error = %v", err)
		}
	}
	if left, _ := r.Tally(); left != 3 {
		t.Fatalf("Tally() left = %d, want 3", left)
	}

	// Reopening starts a new round: every prior choice is cleared.
	r.OpenVoting()
	if left, right := r.Tally(); left != 0 || right != 0 {
		t.Fatalf("Tally() after reopen = %d/%d, want 0/0", left, right)
	}
}

func TestCloseVotingIdempotent(t *testing.T) {
	r := New("code")
	s := r.Join()

	r.OpenVoting()
	if err := r.SubmitChoice(s, ChoiceRight); err != nil {
		t.Fatalf("SubmitChoice() error = %v", err)
	}

	r.CloseVoting()
	first := r.Snapshot()
	r.CloseVoting()
	second := r.Snapshot()

	if first != second {
		t.Fatalf("Snapshot() changed across repeated close: %+v vs %+v", first, second)
	}
	if r.VotingOpen() {
		t.Fatal("VotingOpen() = true after close")
	}
}

func TestBroadcastReachesAllSessions(t *testing.T) {
	r := New("code")
	sessions := []*Session{r.Join(), r.Join(), r.Join()}

	r.OpenVoting()
	for _, s := range sessions {
		if got := recvAction(t, s); got != ActionOpenVotes {
			t.Errorf("action = %q, want %q", got, ActionOpenVotes)
		}
	}

	r.CloseVoting()
	for _, s := range sessions {
		if got := recvAction(t, s); got != ActionCloseVotes {
			t.Errorf("action = %q, want %q", got, ActionCloseVotes)
		}
	}
}

func TestBroadcastDropsStalledSession(t *testing.T) {
	r := New("code")
	stalled := r.Join()
	healthy := r.Join()

	// Fill the stalled session's buffer so the broadcast cannot be
	// delivered to it.
	for i := 0; i < cap(stalled.Send); i++ {
		stalled.Send <- []byte(`{}`)
	}

	r.OpenVoting()

	if got := r.Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1 (stalled session dropped)", got)
	}
	if got := recvAction(t, healthy); got != ActionOpenVotes {
		t.Fatalf("healthy session action = %q, want %q", got, ActionOpenVotes)
	}
}

func TestSendAfterRemove(t *testing.T) {
	r := New("code")
	s := r.Join()
	r.Remove(s)

	if r.Send(s, []byte(`{}`)) {
		t.Fatal("Send() to removed session returned true")
	}
}

func TestJoinCode(t *testing.T) {
	r := New("first")

	if !r.JoinCodeMatches("first") {
		t.Error("JoinCodeMatches(current) = false")
	}
	if r.JoinCodeMatches("other") {
		t.Error("JoinCodeMatches(stale) = true")
	}
	if r.JoinCodeMatches("") {
		t.Error("JoinCodeMatches(\"\") = true")
	}

	r.SetJoinCode("second")
	if r.JoinCodeMatches("first") {
		t.Error("JoinCodeMatches(rotated-out code) = true")
	}
	if !r.JoinCodeMatches("second") {
		t.Error("JoinCodeMatches(new code) = false")
	}
}

func TestSnapshotCombinesTallyAndCounts(t *testing.T) {
	r := New("code")
	a := r.Join()
	r.Join()
	c := r.Join()

	r.OpenVoting()
	if err := r.SubmitChoice(a, ChoiceLeft); err != nil {
		t.Fatalf("SubmitChoice() error = %v", err)
	}
	if err := r.SubmitChoice(c, ChoiceRight); err != nil {
		t.Fatalf("SubmitChoice() error = %v", err)
	}

	got := r.Snapshot()
	want := Results{Left: 1, Right: 1, Team1: 2, Team2: 1}
	if got != want {
		t.Fatalf("Snapshot() = %+v, want %+v", got, want)
	}
}
