// Package bot provides the Slack Socket Mode connection and event
// routing into the game handler.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/ebdekock/StaffSlackBot/internal/config"
	"github.com/ebdekock/StaffSlackBot/internal/game/guesswho"
	"github.com/ebdekock/StaffSlackBot/internal/handler"
)

// Bot wraps the Socket Mode client with application dependencies. Only
// two kinds of traffic reach the game: direct messages to the bot and
// direct mentions of it.
type Bot struct {
	api       *slack.Client
	socket    *socketmode.Client
	game      *handler.GameHandler
	botUserID string
}

// New creates a Bot, authenticates it and resolves its own user id so
// mentions of it can be recognized. The game handler is wired here
// because it posts through the same API client the bot owns.
func New(cfg *config.BotConfig, director *guesswho.Director, users handler.UserDirectory) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, fmt.Errorf("app-level token (xapp-) is required for socket mode")
	}

	api := slack.New(cfg.Token, slack.OptionAppLevelToken(cfg.AppToken))

	auth, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with slack: %w", err)
	}

	log.Info().
		Str("bot_user_id", auth.UserID).
		Str("team", auth.Team).
		Msg("Authenticated with Slack")

	return &Bot{
		api:       api,
		socket:    socketmode.New(api),
		game:      handler.NewGameHandler(director, users, api),
		botUserID: auth.UserID,
	}, nil
}

// API returns the underlying Web API client, for the roster sync.
func (b *Bot) API() *slack.Client {
	return b.api
}

// Game returns the game handler, for expiry notifications from the
// sweep scheduler.
func (b *Bot) Game() *handler.GameHandler {
	return b.game
}

// Run connects to Slack and processes events until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	go b.eventLoop(ctx)

	log.Info().Msg("Bot is starting...")
	return b.socket.RunContext(ctx)
}

// eventLoop drains the socket's event channel. Events API envelopes are
// acked immediately; Slack redelivers unacked envelopes, which would
// show up as duplicate guesses.
func (b *Bot) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socket.Events:
			if !ok {
				return
			}

			switch evt.Type {
			case socketmode.EventTypeConnecting:
				log.Debug().Msg("Connecting to Slack...")
			case socketmode.EventTypeConnected:
				log.Info().Msg("Connected to Slack")
			case socketmode.EventTypeConnectionError:
				log.Warn().Msg("Slack connection error, retrying")
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					b.socket.Ack(*evt.Request)
				}
				b.handleEventsAPI(ctx, apiEvent)
			}
		}
	}
}

// handleEventsAPI routes callback events into the game handler.
func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		_, text := handler.ParseMention(ev.Text)
		log.Debug().Str("user", ev.User).Str("channel", ev.Channel).Msg("Mention received")
		b.game.HandleMessage(ctx, ev.User, ev.Channel, text)

	case *slackevents.MessageEvent:
		if !b.isPlayerDM(ev) {
			return
		}
		text := ev.Text
		if mentioned, rest := handler.ParseMention(text); mentioned == b.botUserID {
			text = rest
		}
		log.Debug().Str("user", ev.User).Str("channel", ev.Channel).Msg("Direct message received")
		b.game.HandleMessage(ctx, ev.User, ev.Channel, text)
	}
}

// isPlayerDM reports whether a message event is a plain direct message
// from a human. Mentions in channels arrive as AppMentionEvent instead,
// so restricting to IMs here avoids double handling.
func (b *Bot) isPlayerDM(ev *slackevents.MessageEvent) bool {
	if ev.ChannelType != "im" {
		return false
	}
	if ev.SubType != "" || ev.BotID != "" {
		return false
	}
	return ev.User != "" && ev.User != b.botUserID
}
