package impl

import (
	"context"
	"testing"
	"time"

	"readzone/config"
	domainerrors "readzone/internal/domain/errors"
	"readzone/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_ListAndRevoke(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.register(t, "alice", "alice@x.com", "Alice").User.ID
	bob := f.register(t, "bob", "bob@x.com", "Bob").User.ID
	ctx := context.Background()

	f.login(t, "alice", testPassword)
	f.clock.Advance(time.Minute)
	latest := f.login(t, "alice", testPassword)
	f.login(t, "bob", testPassword)

	sessions, err := f.sessions.GetActiveSessions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].CreatedAt.After(sessions[1].CreatedAt), "newest first")

	bobSessions, err := f.sessions.GetActiveSessions(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobSessions, 1)

	_, err = f.sessions.GetSessionInfo(ctx, alice, bobSessions[0].ID)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)

	err = f.sessions.RevokeSession(ctx, alice, bobSessions[0].ID)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)

	err = f.sessions.RevokeSession(ctx, alice, uuid.New())
	require.ErrorIs(t, err, domainerrors.ErrNotFound)

	require.NoError(t, f.sessions.RevokeSession(ctx, alice, sessions[0].ID))

	info, err := f.sessions.GetSessionInfo(ctx, alice, sessions[0].ID)
	require.NoError(t, err)
	assert.False(t, info.IsActive)

	_, err = f.refresh(latest.RefreshToken)
	require.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	sessions, err = f.sessions.GetActiveSessions(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessionService_RevokeAllSessions(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.register(t, "alice", "alice@x.com", "Alice").User.ID
	ctx := context.Background()

	f.login(t, "alice", testPassword)
	f.login(t, "alice", testPassword)
	f.login(t, "alice", testPassword)

	revoked, err := f.sessions.RevokeAllSessions(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, revoked)

	revoked, err = f.sessions.RevokeAllSessions(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, revoked)

	_, err = f.sessions.RevokeAllSessions(ctx, uuid.New())
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestSessionService_CleanupAndStatistics(t *testing.T) {
	f := newAuthFixture(t, withConfig(func(cfg *config.Config) {
		cfg.Token.RefreshTTL = time.Hour
	}))
	f.register(t, "alice", "alice@x.com", "Alice")
	ctx := context.Background()

	expiring := f.login(t, "alice", testPassword)
	revoked := f.login(t, "alice", testPassword)
	require.NoError(t, f.service.Logout(ctx, &usecase.LogoutInput{RefreshToken: revoked.RefreshToken}))

	f.clock.Advance(30 * time.Minute)
	f.login(t, "alice", testPassword)

	f.clock.Advance(45 * time.Minute)
	stats, err := f.sessions.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(1), stats.Revoked)

	deleted, err := f.sessions.CleanupRevokedTokens(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted, "revoked grant is still within retention")

	deleted, err = f.sessions.CleanupRevokedTokens(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = f.sessions.CleanupExpiredTokens(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = f.refresh(expiring.RefreshToken)
	require.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	stats, err = f.sessions.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Active)
}
