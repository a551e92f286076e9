package guesswho

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ebdekock/StaffSlackBot/internal/model"
)

// State is a session's position in the game state machine.
type State int

const (
	StateIdle State = iota
	StateAwaitingGuess
	StateResolved
	StateEnded
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateAwaitingGuess:
		return "awaiting_guess"
	case StateResolved:
		return "resolved"
	case StateEnded:
		return "ended"
	default:
		return "idle"
	}
}

// RoundSource supplies new rounds for a session given its recent targets.
// The director binds the selector and pool snapshot into this.
type RoundSource interface {
	NextRound(recent []string) (*model.Round, error)
}

// NameResolver maps a user id to its display identity for resolutions.
type NameResolver interface {
	DisplayName(userID string) string
}

// SessionConfig holds per-session tuning.
type SessionConfig struct {
	RecentWindow  int
	CorrectPoints int
}

// Session is one player's game state machine. All operations on a session
// are serialized by its mutex; a guess and an expiry sweep can never
// interleave mid-transition.
type Session struct {
	ID       string
	PlayerID string

	rounds RoundSource
	names  NameResolver

	mu           sync.Mutex
	state        State
	round        *model.Round
	score        int
	recent       []string
	window       int
	points       int
	lastActivity time.Time
}

// NewSession creates an idle session for a player.
func NewSession(playerID string, rounds RoundSource, names NameResolver, cfg SessionConfig) *Session {
	window := cfg.RecentWindow
	if window < 0 {
		window = 0
	}
	points := cfg.CorrectPoints
	if points == 0 {
		points = 1
	}
	return &Session{
		ID:           uuid.NewString(),
		PlayerID:     playerID,
		rounds:       rounds,
		names:        names,
		state:        StateIdle,
		window:       window,
		points:       points,
		lastActivity: time.Now(),
	}
}

// Start requests a new round. Legal from Idle and Resolved; an expired
// awaiting round is first resolved implicitly so an abandoned round never
// blocks the session. Propagates ErrInsufficientPool from the selector.
func (s *Session) Start() (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateEnded:
		return nil, ErrSessionEnded
	case StateAwaitingGuess:
		if !s.round.Expired(time.Now()) {
			return nil, ErrRoundActive
		}
		s.resolveLocked(false, true)
	}

	round, err := s.rounds.NextRound(append([]string(nil), s.recent...))
	if err != nil {
		return nil, err
	}

	s.state = StateAwaitingGuess
	s.round = round
	s.lastActivity = time.Now()

	out := *round
	out.CandidateIDs = append([]string(nil), round.CandidateIDs...)
	return &out, nil
}

// SubmitGuess resolves the current round against a guess. Valid only in
// AwaitingGuess; a guess arriving after expiry resolves the round as
// expired-incorrect. The target's identity is revealed either way.
func (s *Session) SubmitGuess(guessedUserID string) (*model.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnded {
		return nil, ErrSessionEnded
	}
	if s.state != StateAwaitingGuess {
		return nil, ErrNoActiveRound
	}

	s.lastActivity = time.Now()

	if s.round.Expired(time.Now()) {
		return s.resolveLocked(false, true), nil
	}

	correct := guessedUserID == s.round.TargetUserID
	return s.resolveLocked(correct, false), nil
}

// ExpireDue resolves the current round as expired-incorrect if its
// deadline has passed. Returns nil when nothing was due. Called by the
// director's sweep; deliberately does not count as player activity.
func (s *Session) ExpireDue(now time.Time) *model.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingGuess || !s.round.Expired(now) {
		return nil
	}
	return s.resolveLocked(false, true)
}

// End moves the session to its terminal state. Irreversible.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateEnded
	s.round = nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Score returns the accumulated score.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// IdleFor reports how long the session has been without player activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// CurrentRound returns a copy of the awaiting round, if any.
func (s *Session) CurrentRound() (model.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingGuess {
		return model.Round{}, false
	}
	round := *s.round
	round.CandidateIDs = append([]string(nil), s.round.CandidateIDs...)
	return round, true
}

// RecentTargets returns a copy of the anti-repeat window, oldest first.
func (s *Session) RecentTargets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recent...)
}

// resolveLocked finishes the current round: scores it, pushes the target
// into the bounded recent window and transitions to Resolved. Caller
// holds s.mu and has verified state is AwaitingGuess.
func (s *Session) resolveLocked(correct, expired bool) *model.Resolution {
	round := s.round

	if correct {
		s.score += s.points
	}

	if s.window > 0 {
		s.recent = append(s.recent, round.TargetUserID)
		if len(s.recent) > s.window {
			s.recent = s.recent[len(s.recent)-s.window:]
		}
	}

	s.state = StateResolved
	s.round = nil

	return &model.Resolution{
		RoundID:           round.ID,
		Correct:           correct,
		Expired:           expired,
		TargetUserID:      round.TargetUserID,
		TargetDisplayName: s.names.DisplayName(round.TargetUserID),
		Score:             s.score,
	}
}
