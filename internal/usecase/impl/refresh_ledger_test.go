package impl

import (
	"context"
	"testing"
	"time"

	"readzone/internal/domain/entity"
	"readzone/internal/domain/repository"
	"readzone/internal/infra/clock"
	"readzone/internal/infra/persistence/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*refreshTokenLedger, *memory.Store, uuid.UUID) {
	t.Helper()

	clk := clock.NewFixedClock(testNow)
	store := memory.NewStore(clk)

	user := &entity.User{Handle: "alice", Nickname: "Alice", PasswordHash: "hash"}
	require.NoError(t, store.UserRepo().Create(context.Background(), user))

	return newRefreshTokenLedger(store.TransactionManager(), store.RefreshTokenRepo(), clk), store, user.ID
}

func TestRefreshTokenLedger_RecordLookupRevoke(t *testing.T) {
	ledger, _, userID := newTestLedger(t)
	ctx := context.Background()
	expiresAt := testNow.Add(time.Hour)

	require.NoError(t, ledger.Record(ctx, userID, "hash-1", expiresAt))

	grant, err := ledger.Lookup(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, userID, grant.UserID)
	assert.True(t, grant.ExpiresAt.Equal(expiresAt))
	assert.False(t, grant.Revoked)

	require.NoError(t, ledger.Revoke(ctx, "hash-1"))
	require.NoError(t, ledger.Revoke(ctx, "hash-1"))

	grant, err = ledger.Lookup(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, grant.Revoked)

	_, err = ledger.Lookup(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrRefreshTokenNotFound)

	err = ledger.Record(ctx, userID, "hash-1", expiresAt)
	require.ErrorIs(t, err, repository.ErrDuplicateIdentifier)
}

func TestRefreshTokenLedger_Rotate(t *testing.T) {
	ledger, store, userID := newTestLedger(t)
	ctx := context.Background()
	expiresAt := testNow.Add(time.Hour)

	require.NoError(t, ledger.Record(ctx, userID, "old", expiresAt))
	require.NoError(t, ledger.Rotate(ctx, "old", userID, "new", expiresAt))

	old, err := ledger.Lookup(ctx, "old")
	require.NoError(t, err)
	assert.True(t, old.Revoked)

	fresh, err := ledger.Lookup(ctx, "new")
	require.NoError(t, err)
	assert.False(t, fresh.Revoked)

	err = ledger.Rotate(ctx, "old", userID, "newer", expiresAt)
	require.ErrorIs(t, err, repository.ErrRefreshTokenRevoked)

	_, err = store.RefreshTokenRepo().FindRefreshTokenByHash(ctx, "newer")
	require.ErrorIs(t, err, repository.ErrRefreshTokenNotFound, "a failed rotation writes nothing")
}

func TestRefreshTokenLedger_RotateRollsBackOnDuplicate(t *testing.T) {
	ledger, _, userID := newTestLedger(t)
	ctx := context.Background()
	expiresAt := testNow.Add(time.Hour)

	require.NoError(t, ledger.Record(ctx, userID, "old", expiresAt))
	require.NoError(t, ledger.Record(ctx, userID, "taken", expiresAt))

	err := ledger.Rotate(ctx, "old", userID, "taken", expiresAt)
	require.ErrorIs(t, err, repository.ErrDuplicateIdentifier)

	old, err := ledger.Lookup(ctx, "old")
	require.NoError(t, err)
	assert.False(t, old.Revoked, "revocation must roll back with the failed insert")
}

func TestRefreshTokenLedger_RevokeAllForUser(t *testing.T) {
	ledger, _, userID := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, userID, "a", testNow.Add(time.Hour)))
	require.NoError(t, ledger.Record(ctx, userID, "b", testNow.Add(time.Hour)))
	require.NoError(t, ledger.Record(ctx, userID, "c", testNow.Add(time.Hour)))
	require.NoError(t, ledger.Revoke(ctx, "c"))

	revoked, err := ledger.RevokeAllForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	err = ledger.Rotate(ctx, "a", userID, "d", testNow.Add(time.Hour))
	require.ErrorIs(t, err, repository.ErrRefreshTokenRevoked)

	_, err = ledger.RevokeAllForUser(ctx, uuid.New())
	require.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestRefreshTokenLedger_RevokeAllForUserIncludesExpiredGrants(t *testing.T) {
	ledger, _, userID := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, userID, "live", testNow.Add(time.Hour)))
	require.NoError(t, ledger.Record(ctx, userID, "lapsed", testNow.Add(-time.Minute)))

	revoked, err := ledger.RevokeAllForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, revoked, "only the grant that was still usable counts as a session")

	for _, hash := range []string{"live", "lapsed"} {
		grant, err := ledger.Lookup(ctx, hash)
		require.NoError(t, err)
		assert.True(t, grant.Revoked, hash)
		require.NotNil(t, grant.RevokedAt, hash)
	}
}
