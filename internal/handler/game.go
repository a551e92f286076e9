// Package handler turns Slack messages into game engine calls and
// renders the results back as chat messages.
package handler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/ebdekock/StaffSlackBot/internal/game/guesswho"
	"github.com/ebdekock/StaffSlackBot/internal/model"
)

// PlayCommand starts a new round.
const PlayCommand = "play"

// mentionRegex matches a direct mention at the start of a message and
// captures the mentioned user id plus the rest of the text.
var mentionRegex = regexp.MustCompile(`^<@([WU][A-Z0-9]+)>(.*)`)

// ParseMention extracts a leading direct mention from message text.
// Returns empty strings when the message does not start with a mention.
func ParseMention(text string) (userID, rest string) {
	matches := mentionRegex.FindStringSubmatch(text)
	if matches == nil {
		return "", ""
	}
	return matches[1], strings.TrimSpace(matches[2])
}

// MessageSender posts chat messages; satisfied by *slack.Client.
type MessageSender interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// UserDirectory resolves staff profiles for name matching; satisfied by
// *repository.UserRepository.
type UserDirectory interface {
	GetByID(ctx context.Context, slackID string) (*model.StaffUser, error)
}

// GameHandler handles guess-who game messages. One instance serves all
// players; per-player serialization lives in the director.
type GameHandler struct {
	director *guesswho.Director
	users    UserDirectory
	sender   MessageSender
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(director *guesswho.Director, users UserDirectory, sender MessageSender) *GameHandler {
	return &GameHandler{
		director: director,
		users:    users,
		sender:   sender,
	}
}

// HandleMessage processes one direct message or mention from a player.
// With a round awaiting, any text counts as a guess; otherwise only the
// play command does anything.
func (h *GameHandler) HandleMessage(ctx context.Context, playerID, channelID, text string) {
	text = strings.TrimSpace(text)

	if round, ok := h.director.CurrentRound(playerID); ok {
		h.handleGuess(ctx, playerID, channelID, &round, text)
		return
	}

	if strings.EqualFold(text, PlayCommand) {
		h.handlePlay(ctx, playerID, channelID)
		return
	}

	log.Info().Str("player_id", playerID).Str("text", text).Msg("Unrecognized command")
	h.post(ctx, channelID, slack.MsgOptionText(
		fmt.Sprintf("I'm not sure what you mean, please try *%s*.", PlayCommand), false))
}

// handlePlay starts a round and posts the challenge: the target's photo
// with the candidate names as options.
func (h *GameHandler) handlePlay(ctx context.Context, playerID, channelID string) {
	start, err := h.director.StartRound(playerID)
	if err != nil {
		switch {
		case errors.Is(err, guesswho.ErrInsufficientPool):
			h.post(ctx, channelID, slack.MsgOptionText(
				"Not enough qualified photos yet, check back once more profiles are synced.", false))
		default:
			log.Error().Err(err).Str("player_id", playerID).Msg("Failed to start round")
			h.post(ctx, channelID, slack.MsgOptionText("Something went wrong, please try again.", false))
		}
		return
	}

	names := make([]string, 0, len(start.Candidates))
	for _, c := range start.Candidates {
		names = append(names, c.DisplayName)
	}

	h.post(ctx, channelID, slack.MsgOptionAttachments(slack.Attachment{
		Text:     "Who is this?",
		ImageURL: start.TargetImageRef,
	}), slack.MsgOptionText(
		fmt.Sprintf("Is it: %s?", strings.Join(names, ", ")), false))

	log.Info().
		Str("player_id", playerID).
		Str("round_id", start.RoundID).
		Msg("Round issued")
}

// handleGuess resolves the player's text against the awaiting round and
// reports the outcome.
func (h *GameHandler) handleGuess(ctx context.Context, playerID, channelID string, round *model.Round, text string) {
	guessedID := h.matchGuess(ctx, round, text)

	resolution, err := h.director.RouteGuess(playerID, guessedID)
	if err != nil {
		if errors.Is(err, guesswho.ErrNoActiveRound) {
			// Round got swept between lookup and guess; the sweep
			// notice already told the player.
			return
		}
		log.Error().Err(err).Str("player_id", playerID).Msg("Failed to route guess")
		return
	}

	if resolution.Correct {
		log.Info().Str("player_id", playerID).Str("target", resolution.TargetUserID).Msg("Correct guess")
		h.post(ctx, channelID, slack.MsgOptionText(
			fmt.Sprintf("Yes! You got it! Your score is %d.", resolution.Score), false))
		return
	}

	log.Info().
		Str("player_id", playerID).
		Str("target", resolution.TargetUserID).
		Str("guess", text).
		Msg("Incorrect guess")
	h.post(ctx, channelID, slack.MsgOptionText(
		fmt.Sprintf("Nope, sorry, it's: %s", h.revealName(ctx, resolution)), false))
}

// matchGuess maps free text onto a candidate user id. A mention wins
// outright; otherwise the lowercased text is matched against each
// candidate's known names. No match resolves the round as incorrect.
func (h *GameHandler) matchGuess(ctx context.Context, round *model.Round, text string) string {
	if mentioned, _ := ParseMention(text); mentioned != "" {
		return mentioned
	}

	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return ""
	}

	for _, id := range round.CandidateIDs {
		user, err := h.users.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if user.AllNames()[needle] {
			return id
		}
	}
	return ""
}

// NotifyExpired tells each player whose round timed out who the target
// was. Called after every sweep.
func (h *GameHandler) NotifyExpired(ctx context.Context, notices []guesswho.ExpiredNotice) {
	for _, notice := range notices {
		h.post(ctx, notice.PlayerID, slack.MsgOptionText(
			fmt.Sprintf("Sorry, you took too long to respond, it is: %s",
				h.revealName(ctx, &notice.Resolution)), false))
	}
}

// revealName prefers the target's capitalized first name, falling back
// to the display name carried on the resolution.
func (h *GameHandler) revealName(ctx context.Context, resolution *model.Resolution) string {
	if user, err := h.users.GetByID(ctx, resolution.TargetUserID); err == nil {
		if first := user.FirstName(); first != "" {
			return first
		}
	}
	return resolution.TargetDisplayName
}

func (h *GameHandler) post(ctx context.Context, channelID string, options ...slack.MsgOption) {
	if _, _, err := h.sender.PostMessageContext(ctx, channelID, options...); err != nil {
		log.Error().Err(err).Str("channel", channelID).Msg("Failed to post message")
	}
}
