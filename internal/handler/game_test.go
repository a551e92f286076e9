package handler

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebdekock/StaffSlackBot/internal/game/guesswho"
	"github.com/ebdekock/StaffSlackBot/internal/model"
)

// recordingSender captures posted messages by applying the options the
// same way the Slack client would.
type recordingSender struct {
	channels []string
	values   []url.Values
}

func (s *recordingSender) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	_, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", channelID, "https://slack.test/api/", options...)
	if err != nil {
		return "", "", err
	}
	s.channels = append(s.channels, channelID)
	s.values = append(s.values, values)
	return channelID, "1724580000.000100", nil
}

func (s *recordingSender) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, s.values)
	return s.values[len(s.values)-1].Get("text")
}

type fakeDirectory struct {
	users map[string]*model.StaffUser
}

func (d *fakeDirectory) GetByID(ctx context.Context, slackID string) (*model.StaffUser, error) {
	if user, ok := d.users[slackID]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("user %s not found", slackID)
}

type fakePool struct {
	records []model.AvatarRecord
}

func (p *fakePool) QualifiedSnapshot() []model.AvatarRecord {
	out := make([]model.AvatarRecord, len(p.records))
	copy(out, p.records)
	return out
}

func (p *fakePool) Get(userID string) (model.AvatarRecord, bool) {
	for _, rec := range p.records {
		if rec.UserID == userID {
			return rec, true
		}
	}
	return model.AvatarRecord{}, false
}

// newTestHandler wires a real director over a fake pool of n staff
// members, with rounds using all of them as candidates.
func newTestHandler(t *testing.T, n int) (*GameHandler, *guesswho.Director, *recordingSender) {
	t.Helper()

	pool := &fakePool{}
	directory := &fakeDirectory{users: make(map[string]*model.StaffUser)}
	firstNames := []string{"ada", "grace", "margaret", "katherine", "joan"}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("U%03d", i+1)
		pool.records = append(pool.records, model.AvatarRecord{
			UserID:      id,
			DisplayName: firstNames[i] + " example",
			ImageRef:    "https://img.test/" + id,
			Status:      model.StatusQualified,
		})
		directory.users[id] = &model.StaffUser{
			SlackID:  id,
			FullName: firstNames[i] + " example",
		}
	}

	director := guesswho.NewDirector(pool, guesswho.NewSelector(rand.NewSource(7)), guesswho.Config{
		Candidates:  n,
		RoundExpiry: time.Minute,
	})
	sender := &recordingSender{}
	return NewGameHandler(director, directory, sender), director, sender
}

func TestParseMention(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantID   string
		wantRest string
	}{
		{"mention with command", "<@U12345> play", "U12345", "play"},
		{"mention alone", "<@W98765>", "W98765", ""},
		{"no mention", "play", "", ""},
		{"mention mid-text", "hello <@U12345>", "", ""},
		{"lowercase id rejected", "<@u12345> play", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, rest := ParseMention(tt.text)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestHandlePlayIssuesChallenge(t *testing.T) {
	h, director, sender := newTestHandler(t, 3)

	h.HandleMessage(context.Background(), "P001", "D001", "play")

	round, ok := director.CurrentRound("P001")
	require.True(t, ok)
	assert.Len(t, round.CandidateIDs, 3)

	require.Len(t, sender.values, 1)
	assert.Equal(t, "D001", sender.channels[0])
	assert.Contains(t, sender.lastText(t), "Is it:")
	assert.Contains(t, sender.values[0].Get("attachments"), "Who is this?")
}

func TestHandlePlayInsufficientPool(t *testing.T) {
	pool := &fakePool{records: []model.AvatarRecord{
		{UserID: "U001", DisplayName: "Ada", Status: model.StatusQualified},
	}}
	director := guesswho.NewDirector(pool, guesswho.NewSelector(rand.NewSource(7)), guesswho.Config{
		Candidates: 4,
	})
	sender := &recordingSender{}
	h := NewGameHandler(director, &fakeDirectory{}, sender)

	h.HandleMessage(context.Background(), "P001", "D001", "play")

	assert.Contains(t, sender.lastText(t), "Not enough qualified photos")
	_, ok := director.CurrentRound("P001")
	assert.False(t, ok)
}

func TestHandleGuessCorrectByName(t *testing.T) {
	h, director, sender := newTestHandler(t, 3)
	ctx := context.Background()

	h.HandleMessage(ctx, "P001", "D001", "play")
	round, ok := director.CurrentRound("P001")
	require.True(t, ok)

	// The stored full name is "<first> example"; guess by first name.
	first := map[string]string{"U001": "ada", "U002": "grace", "U003": "margaret"}[round.TargetUserID]
	h.HandleMessage(ctx, "P001", "D001", "  "+first+"  ")

	assert.Contains(t, sender.lastText(t), "Yes! You got it!")
	_, ok = director.CurrentRound("P001")
	assert.False(t, ok)
}

func TestHandleGuessIncorrectRevealsFirstName(t *testing.T) {
	h, director, sender := newTestHandler(t, 3)
	ctx := context.Background()

	h.HandleMessage(ctx, "P001", "D001", "play")
	round, ok := director.CurrentRound("P001")
	require.True(t, ok)

	h.HandleMessage(ctx, "P001", "D001", "nobody i know")

	first := map[string]string{"U001": "Ada", "U002": "Grace", "U003": "Margaret"}[round.TargetUserID]
	text := sender.lastText(t)
	assert.Contains(t, text, "Nope, sorry")
	assert.Contains(t, text, first)
}

func TestHandleGuessByMention(t *testing.T) {
	h, director, sender := newTestHandler(t, 3)
	ctx := context.Background()

	h.HandleMessage(ctx, "P001", "D001", "play")
	round, ok := director.CurrentRound("P001")
	require.True(t, ok)

	h.HandleMessage(ctx, "P001", "D001", "<@"+round.TargetUserID+">")

	assert.Contains(t, sender.lastText(t), "Yes! You got it!")
}

func TestHandleUnknownCommand(t *testing.T) {
	h, _, sender := newTestHandler(t, 3)

	h.HandleMessage(context.Background(), "P001", "D001", "what do I do")

	text := sender.lastText(t)
	assert.Contains(t, text, "not sure what you mean")
	assert.Contains(t, text, PlayCommand)
}

// TestPlayWhileRoundActiveCountsAsGuess matches the challenge flow:
// any text during an awaiting round is a guess, even the play command.
func TestPlayWhileRoundActiveCountsAsGuess(t *testing.T) {
	h, director, sender := newTestHandler(t, 3)
	ctx := context.Background()

	h.HandleMessage(ctx, "P001", "D001", "play")
	h.HandleMessage(ctx, "P001", "D001", "play")

	assert.Contains(t, sender.lastText(t), "Nope, sorry")
	_, ok := director.CurrentRound("P001")
	assert.False(t, ok)
}

func TestNotifyExpired(t *testing.T) {
	h, _, sender := newTestHandler(t, 3)

	h.NotifyExpired(context.Background(), []guesswho.ExpiredNotice{{
		PlayerID: "P001",
		Resolution: model.Resolution{
			RoundID:           "r1",
			Expired:           true,
			TargetUserID:      "U002",
			TargetDisplayName: "grace example",
		},
	}})

	require.Len(t, sender.channels, 1)
	assert.Equal(t, "P001", sender.channels[0])
	text := sender.lastText(t)
	assert.Contains(t, text, "took too long")
	assert.Contains(t, text, "Grace")
}
