// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ebdekock/StaffSlackBot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func testUser(slackID, fullName string) *model.StaffUser {
	return &model.StaffUser{
		SlackID:   slackID,
		FullName:  fullName,
		PrefName:  "Preferred",
		Email:     "someone@example.com",
		Phone:     "+1 555 0100",
		AvatarURL: "https://example.com/avatar_192.png",
	}
}

func TestUserRepository_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, testUser("U001", "Ada Lovelace")))

	user, err := repo.GetByID(ctx, "U001")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.FullName)
	assert.Equal(t, "https://example.com/avatar_192.png", user.AvatarURL)
	assert.False(t, user.CreatedAt.IsZero())
}

// TestUserRepository_UpsertLastWriteWins checks that re-upserting the same
// slack_id replaces the profile fields.
func TestUserRepository_UpsertLastWriteWins(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, testUser("U001", "Ada Lovelace")))

	updated := testUser("U001", "Ada King")
	updated.AvatarURL = "https://example.com/new_192.png"
	require.NoError(t, repo.Upsert(ctx, updated))

	user, err := repo.GetByID(ctx, "U001")
	require.NoError(t, err)
	assert.Equal(t, "Ada King", user.FullName)
	assert.Equal(t, "https://example.com/new_192.png", user.AvatarURL)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUserRepository_GetMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)

	_, err := repo.GetByID(context.Background(), "U404")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_ListOrdered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, testUser("U003", "Carol")))
	require.NoError(t, repo.Upsert(ctx, testUser("U001", "Ada")))
	require.NoError(t, repo.Upsert(ctx, testUser("U002", "Bob")))

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "U001", users[0].SlackID)
	assert.Equal(t, "U002", users[1].SlackID)
	assert.Equal(t, "U003", users[2].SlackID)
}

func TestUserRepository_Delete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, testUser("U001", "Ada")))
	require.NoError(t, repo.Delete(ctx, "U001"))

	_, err := repo.GetByID(ctx, "U001")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Deleting an absent user is a no-op.
	require.NoError(t, repo.Delete(ctx, "U001"))
}
