// Package service provides business logic implementations.
package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ebdekock/StaffSlackBot/internal/model"
)

// DefaultSyncWorkers bounds concurrent avatar downloads/qualifications.
const DefaultSyncWorkers = 4

// RosterEntry is one workspace member as reported by the chat platform.
type RosterEntry struct {
	SlackID   string
	FullName  string
	PrefName  string
	Email     string
	Phone     string
	AvatarURL string
	Deleted   bool
	IsBot     bool
}

// RosterSource lists workspace members; satisfied by the Slack client.
type RosterSource interface {
	ListUsers(ctx context.Context) ([]RosterEntry, error)
}

// AvatarFetcher downloads avatar bytes; satisfied by *fetch.Client.
type AvatarFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// UserStore persists staff users; satisfied by *repository.UserRepository.
type UserStore interface {
	Upsert(ctx context.Context, user *model.StaffUser) error
	Delete(ctx context.Context, slackID string) error
}

// AvatarAdmitter feeds avatar candidates into the pool; satisfied by
// *avatarpool.Pool.
type AvatarAdmitter interface {
	Admit(userID, displayName, imageRef string, imageBytes []byte) model.QualificationStatus
	Remove(userID string)
}

// SyncService mirrors the workspace roster into the user store and the
// avatar pool. Runs on a schedule; every pass is a full upsert sweep,
// last write wins.
type SyncService struct {
	roster      RosterSource
	fetcher     AvatarFetcher
	store       UserStore
	pool        AvatarAdmitter
	emailDomain string
	workers     int
}

// NewSyncService creates a SyncService. An empty emailDomain disables the
// company-email filter; workers <= 0 falls back to the default.
func NewSyncService(roster RosterSource, fetcher AvatarFetcher, store UserStore, pool AvatarAdmitter, emailDomain string, workers int) *SyncService {
	if workers <= 0 {
		workers = DefaultSyncWorkers
	}
	return &SyncService{
		roster:      roster,
		fetcher:     fetcher,
		store:       store,
		pool:        pool,
		emailDomain: emailDomain,
		workers:     workers,
	}
}

// Sync performs one roster pass: active members are upserted and their
// avatars re-admitted, deactivated members and bots are removed. Per-user
// failures are logged and skipped; only a roster listing failure aborts
// the pass.
func (s *SyncService) Sync(ctx context.Context) error {
	entries, err := s.roster.ListUsers(ctx)
	if err != nil {
		return err
	}

	active := make([]RosterEntry, 0, len(entries))
	for _, entry := range entries {
		if !s.isActive(entry) {
			if err := s.store.Delete(ctx, entry.SlackID); err != nil {
				log.Error().Err(err).Str("user_id", entry.SlackID).Msg("Failed to delete user")
			}
			s.pool.Remove(entry.SlackID)
			continue
		}

		if err := s.store.Upsert(ctx, &model.StaffUser{
			SlackID:   entry.SlackID,
			FullName:  entry.FullName,
			PrefName:  entry.PrefName,
			Email:     entry.Email,
			Phone:     entry.Phone,
			AvatarURL: entry.AvatarURL,
		}); err != nil {
			log.Error().Err(err).Str("user_id", entry.SlackID).Msg("Failed to upsert user")
			continue
		}
		active = append(active, entry)
	}

	s.admitAvatars(ctx, active)

	log.Info().
		Int("roster_size", len(entries)).
		Int("active", len(active)).
		Msg("Roster sync complete")
	return nil
}

// admitAvatars downloads and qualifies avatars with bounded concurrency.
// Qualification is CPU-bound, so the limit also keeps guess handling
// responsive while a sync is in flight.
func (s *SyncService) admitAvatars(ctx context.Context, entries []RosterEntry) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, entry := range entries {
		if entry.AvatarURL == "" {
			continue
		}
		g.Go(func() error {
			imageBytes, err := s.fetcher.Fetch(gctx, entry.AvatarURL)
			if err != nil {
				// Transient: the next sync retries.
				log.Warn().Err(err).Str("user_id", entry.SlackID).Msg("Failed to fetch avatar")
				return nil
			}
			s.pool.Admit(entry.SlackID, displayName(entry), entry.AvatarURL, imageBytes)
			return nil
		})
	}
	_ = g.Wait()
}

// isActive reports whether a roster entry belongs in the directory:
// not deleted, not a bot, and on the company email domain when one is
// configured.
func (s *SyncService) isActive(entry RosterEntry) bool {
	if entry.Deleted || entry.IsBot {
		return false
	}
	if s.emailDomain == "" {
		return true
	}
	return strings.Contains(entry.Email, s.emailDomain)
}

// displayName prefers the full name, falling back to the preferred name.
func displayName(entry RosterEntry) string {
	if entry.FullName != "" {
		return entry.FullName
	}
	return entry.PrefName
}
