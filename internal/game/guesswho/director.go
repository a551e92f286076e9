// Package guesswho implements the guess-who game engine: round selection,
// per-player session state machines and the director that fans chat
// events out to them.
package guesswho

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ebdekock/StaffSlackBot/internal/model"
	"github.com/ebdekock/StaffSlackBot/internal/pkg/lock"
)

// AvatarSource is the read side of the avatar pool the director selects
// rounds from; satisfied by *avatarpool.Pool.
type AvatarSource interface {
	QualifiedSnapshot() []model.AvatarRecord
	Get(userID string) (model.AvatarRecord, bool)
}

// Config holds game orchestration tuning.
type Config struct {
	Candidates    int
	RecentWindow  int
	CorrectPoints int
	RoundExpiry   time.Duration
	IdleTimeout   time.Duration
}

// ExpiredNotice reports a round auto-resolved by the sweep so the chat
// layer can tell the player who it was.
type ExpiredNotice struct {
	PlayerID   string
	Resolution model.Resolution
}

// Director orchestrates session lifecycle across players. At most one
// session exists per player id; operations for the same player are
// serialized by a keyed lock, different players proceed independently.
type Director struct {
	cfg      Config
	pool     AvatarSource
	selector *Selector
	locks    *lock.KeyedLock

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewDirector creates a Director over a pool and selector.
func NewDirector(pool AvatarSource, selector *Selector, cfg Config) *Director {
	if cfg.Candidates <= 0 {
		cfg.Candidates = DefaultCandidates
	}
	if cfg.RoundExpiry <= 0 {
		cfg.RoundExpiry = time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	return &Director{
		cfg:      cfg,
		pool:     pool,
		selector: selector,
		locks:    lock.NewKeyedLock(),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreateSession returns the player's session, creating one if none
// is active.
func (d *Director) GetOrCreateSession(playerID string) *Session {
	d.mu.RLock()
	sess := d.sessions[playerID]
	d.mu.RUnlock()
	if sess != nil {
		return sess
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if sess = d.sessions[playerID]; sess != nil {
		return sess
	}

	sess = NewSession(playerID, roundSource{d}, nameResolver{d.pool}, SessionConfig{
		RecentWindow:  d.cfg.RecentWindow,
		CorrectPoints: d.cfg.CorrectPoints,
	})
	d.sessions[playerID] = sess

	log.Info().Str("player_id", playerID).Str("session_id", sess.ID).Msg("Game session created")
	return sess
}

// HasSession reports whether the player currently has an active session.
func (d *Director) HasSession(playerID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sessions[playerID]
	return ok
}

// ActiveSessions returns the number of live sessions.
func (d *Director) ActiveSessions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// StartRound starts a new round for the player and returns the prompt
// payload for the chat layer. ErrInsufficientPool passes through so the
// boundary can render a "not enough qualified photos yet" message.
func (d *Director) StartRound(playerID string) (*model.RoundStart, error) {
	d.locks.Lock(playerID)
	defer d.locks.Unlock(playerID)

	sess := d.GetOrCreateSession(playerID)
	round, err := sess.Start()
	if err != nil {
		return nil, err
	}

	return d.buildRoundStart(round), nil
}

// RouteGuess forwards a guess to the player's session. A guess without a
// session or an awaiting round yields ErrNoActiveRound, never a crash.
func (d *Director) RouteGuess(playerID, guessedUserID string) (*model.Resolution, error) {
	d.locks.Lock(playerID)
	defer d.locks.Unlock(playerID)

	d.mu.RLock()
	sess := d.sessions[playerID]
	d.mu.RUnlock()
	if sess == nil {
		return nil, ErrNoActiveRound
	}

	return sess.SubmitGuess(guessedUserID)
}

// CurrentRound returns the player's awaiting round, if any.
func (d *Director) CurrentRound(playerID string) (model.Round, bool) {
	d.mu.RLock()
	sess := d.sessions[playerID]
	d.mu.RUnlock()
	if sess == nil {
		return model.Round{}, false
	}
	return sess.CurrentRound()
}

// EndSession ends and removes the player's session, if any.
func (d *Director) EndSession(playerID string) {
	d.locks.Lock(playerID)
	defer d.locks.Unlock(playerID)

	d.mu.Lock()
	sess := d.sessions[playerID]
	delete(d.sessions, playerID)
	d.mu.Unlock()

	if sess != nil {
		sess.End()
		log.Info().Str("player_id", playerID).Msg("Game session ended")
	}
}

// SweepIdle resolves expired rounds and reclaims idle sessions. Expired
// rounds are reported so the chat layer can reveal the answer; idle
// sessions are force-ended and removed.
func (d *Director) SweepIdle(now time.Time) []ExpiredNotice {
	d.mu.RLock()
	players := make([]string, 0, len(d.sessions))
	for playerID := range d.sessions {
		players = append(players, playerID)
	}
	d.mu.RUnlock()

	var notices []ExpiredNotice
	for _, playerID := range players {
		d.mu.RLock()
		sess := d.sessions[playerID]
		d.mu.RUnlock()
		if sess == nil {
			continue
		}

		if resolution := sess.ExpireDue(now); resolution != nil {
			notices = append(notices, ExpiredNotice{PlayerID: playerID, Resolution: *resolution})
			log.Debug().
				Str("player_id", playerID).
				Str("round_id", resolution.RoundID).
				Msg("Round expired without a guess")
		}

		if sess.IdleFor(now) > d.cfg.IdleTimeout {
			sess.End()
			d.mu.Lock()
			delete(d.sessions, playerID)
			d.mu.Unlock()
			log.Info().Str("player_id", playerID).Msg("Idle game session reclaimed")
		}
	}
	return notices
}

// buildRoundStart resolves candidate ids into display payloads. The
// prompt image is the target's avatar.
func (d *Director) buildRoundStart(round *model.Round) *model.RoundStart {
	start := &model.RoundStart{
		RoundID:    round.ID,
		Candidates: make([]model.Candidate, 0, len(round.CandidateIDs)),
		ExpiresAt:  round.ExpiresAt,
	}

	for _, id := range round.CandidateIDs {
		candidate := model.Candidate{UserID: id, DisplayName: id}
		if rec, ok := d.pool.Get(id); ok {
			candidate.DisplayName = rec.DisplayName
			candidate.ImageRef = rec.ImageRef
		}
		start.Candidates = append(start.Candidates, candidate)
	}

	if rec, ok := d.pool.Get(round.TargetUserID); ok {
		start.TargetImageRef = rec.ImageRef
	}
	return start
}

// roundSource binds the director's selector and pool snapshot into the
// session's RoundSource.
type roundSource struct {
	d *Director
}

func (s roundSource) NextRound(recent []string) (*model.Round, error) {
	return s.d.selector.SelectRound(s.d.pool.QualifiedSnapshot(), recent, s.d.cfg.Candidates, s.d.cfg.RoundExpiry)
}

// nameResolver resolves display identities from the pool for resolutions.
type nameResolver struct {
	pool AvatarSource
}

func (r nameResolver) DisplayName(userID string) string {
	if rec, ok := r.pool.Get(userID); ok {
		return rec.DisplayName
	}
	return userID
}
