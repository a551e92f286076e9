// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ebdekock/StaffSlackBot/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository handles staff user persistence. Writes come only from
// the roster synchronizer; last write wins per slack_id.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert creates or replaces a staff user record.
func (r *UserRepository) Upsert(ctx context.Context, user *model.StaffUser) error {
	const query = `
		INSERT INTO staff_users (slack_id, full_name, pref_name, email, phone, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (slack_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			pref_name = EXCLUDED.pref_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		user.SlackID, user.FullName, user.PrefName, user.Email, user.Phone, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.SlackID, err)
	}
	return nil
}

// GetByID retrieves a staff user by Slack id.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, slackID string) (*model.StaffUser, error) {
	const query = `
		SELECT slack_id, full_name, pref_name, email, phone, avatar_url, created_at, updated_at
		FROM staff_users
		WHERE slack_id = $1
	`

	var user model.StaffUser
	err := r.pool.QueryRow(ctx, query, slackID).Scan(
		&user.SlackID,
		&user.FullName,
		&user.PrefName,
		&user.Email,
		&user.Phone,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", slackID, err)
	}

	return &user, nil
}

// List returns all staff users ordered by Slack id.
func (r *UserRepository) List(ctx context.Context) ([]*model.StaffUser, error) {
	const query = `
		SELECT slack_id, full_name, pref_name, email, phone, avatar_url, created_at, updated_at
		FROM staff_users
		ORDER BY slack_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.StaffUser
	for rows.Next() {
		var user model.StaffUser
		if err := rows.Scan(
			&user.SlackID,
			&user.FullName,
			&user.PrefName,
			&user.Email,
			&user.Phone,
			&user.AvatarURL,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// Delete removes a staff user, for members deactivated upstream.
// Deleting an absent user is a no-op.
func (r *UserRepository) Delete(ctx context.Context, slackID string) error {
	const query = `DELETE FROM staff_users WHERE slack_id = $1`

	if _, err := r.pool.Exec(ctx, query, slackID); err != nil {
		return fmt.Errorf("failed to delete user %s: %w", slackID, err)
	}
	return nil
}

// Migrate creates the staff_users table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS staff_users (
			slack_id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			pref_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_staff_users_email ON staff_users(email);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate staff_users: %w", err)
	}
	return nil
}
