package guesswho

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebdekock/StaffSlackBot/internal/model"
)

// fakePool is an in-memory AvatarSource.
type fakePool struct {
	records []model.AvatarRecord
}

func (p *fakePool) QualifiedSnapshot() []model.AvatarRecord {
	return append([]model.AvatarRecord(nil), p.records...)
}

func (p *fakePool) Get(userID string) (model.AvatarRecord, bool) {
	for _, rec := range p.records {
		if rec.UserID == userID {
			return rec, true
		}
	}
	return model.AvatarRecord{}, false
}

func newTestDirector(poolSize int, cfg Config) *Director {
	return NewDirector(
		&fakePool{records: makeSnapshot(poolSize)},
		NewSelector(rand.NewSource(42)),
		cfg,
	)
}

func TestDirectorSingleSessionPerPlayer(t *testing.T) {
	d := newTestDirector(10, Config{Candidates: 4, RecentWindow: 3})

	first := d.GetOrCreateSession("P001")
	second := d.GetOrCreateSession("P001")
	other := d.GetOrCreateSession("P002")

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, d.ActiveSessions())
}

func TestDirectorStartRoundPayload(t *testing.T) {
	d := newTestDirector(10, Config{Candidates: 4, RecentWindow: 3, RoundExpiry: time.Minute})

	start, err := d.StartRound("P001")
	require.NoError(t, err)

	require.Len(t, start.Candidates, 4)
	assert.NotEmpty(t, start.RoundID)
	assert.NotEmpty(t, start.TargetImageRef)
	for _, c := range start.Candidates {
		assert.NotEmpty(t, c.DisplayName)
		assert.NotEmpty(t, c.ImageRef)
	}
}

func TestDirectorRouteGuessRoundTrip(t *testing.T) {
	d := newTestDirector(10, Config{Candidates: 4, RecentWindow: 3, RoundExpiry: time.Minute})

	_, err := d.StartRound("P001")
	require.NoError(t, err)

	round, ok := d.CurrentRound("P001")
	require.True(t, ok)

	resolution, err := d.RouteGuess("P001", round.TargetUserID)
	require.NoError(t, err)
	assert.True(t, resolution.Correct)
	assert.NotEmpty(t, resolution.TargetDisplayName)
}

// TestDirectorGuessWithoutSession checks the state-violation boundary: a
// guess for an unknown player is a typed no-op, not a crash.
func TestDirectorGuessWithoutSession(t *testing.T) {
	d := newTestDirector(10, Config{Candidates: 4})

	_, err := d.RouteGuess("P999", "U001")
	assert.ErrorIs(t, err, ErrNoActiveRound)
	assert.False(t, d.HasSession("P999"))
}

// TestDirectorInsufficientPool checks that pool insufficiency surfaces as
// a typed error the chat boundary can message.
func TestDirectorInsufficientPool(t *testing.T) {
	d := newTestDirector(2, Config{Candidates: 4})

	_, err := d.StartRound("P001")
	assert.ErrorIs(t, err, ErrInsufficientPool)
}

// TestDirectorSweepExpiredRounds checks that the sweep resolves expired
// rounds and reports them for player notification.
func TestDirectorSweepExpiredRounds(t *testing.T) {
	d := newTestDirector(10, Config{
		Candidates:  4,
		RoundExpiry: time.Millisecond,
		IdleTimeout: time.Hour,
	})

	_, err := d.StartRound("P001")
	require.NoError(t, err)

	notices := d.SweepIdle(time.Now().Add(time.Second))
	require.Len(t, notices, 1)
	assert.Equal(t, "P001", notices[0].PlayerID)
	assert.True(t, notices[0].Resolution.Expired)
	assert.False(t, notices[0].Resolution.Correct)

	// The session itself survives; only the round was resolved.
	assert.True(t, d.HasSession("P001"))

	// A subsequent round is not blocked.
	_, err = d.StartRound("P001")
	require.NoError(t, err)
}

// TestDirectorSweepReclaimsIdleSessions checks idle-timeout reclamation.
func TestDirectorSweepReclaimsIdleSessions(t *testing.T) {
	d := newTestDirector(10, Config{
		Candidates:  4,
		RoundExpiry: time.Minute,
		IdleTimeout: time.Minute,
	})

	d.GetOrCreateSession("P001")
	require.True(t, d.HasSession("P001"))

	// Not yet idle long enough.
	d.SweepIdle(time.Now().Add(30 * time.Second))
	assert.True(t, d.HasSession("P001"))

	d.SweepIdle(time.Now().Add(2 * time.Minute))
	assert.False(t, d.HasSession("P001"))
	assert.Equal(t, 0, d.ActiveSessions())
}

func TestDirectorEndSession(t *testing.T) {
	d := newTestDirector(10, Config{Candidates: 4, RoundExpiry: time.Minute})

	sess := d.GetOrCreateSession("P001")
	d.EndSession("P001")

	assert.False(t, d.HasSession("P001"))
	assert.Equal(t, StateEnded, sess.State())

	// Ending an absent session is a no-op.
	d.EndSession("P001")
}
