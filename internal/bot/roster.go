package bot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/ebdekock/StaffSlackBot/internal/service"
)

// RosterClient lists workspace members through the Slack Web API. It is
// the bot-side implementation of service.RosterSource.
type RosterClient struct {
	api *slack.Client
}

// NewRosterClient creates a RosterClient over an authenticated API client.
func NewRosterClient(api *slack.Client) *RosterClient {
	return &RosterClient{api: api}
}

// ListUsers fetches the full workspace member list. Pagination is handled
// inside the client; one call returns everyone.
func (c *RosterClient) ListUsers(ctx context.Context) ([]service.RosterEntry, error) {
	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace users: %w", err)
	}

	entries := make([]service.RosterEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, service.RosterEntry{
			SlackID:   u.ID,
			FullName:  u.Profile.RealName,
			PrefName:  u.Profile.DisplayName,
			Email:     u.Profile.Email,
			Phone:     u.Profile.Phone,
			AvatarURL: u.Profile.Image192,
			Deleted:   u.Deleted,
			// Slackbot reports IsBot false but is not staff either.
			IsBot: u.IsBot || u.ID == "USLACKBOT",
		})
	}
	return entries, nil
}
