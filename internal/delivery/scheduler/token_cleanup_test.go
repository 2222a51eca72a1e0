package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"readzone/config"
	"readzone/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	expiredCalls atomic.Int32
	revokedCalls atomic.Int32
	statsCalls   atomic.Int32
	retentions   chan time.Duration
	failExpired  bool
}

func (f *fakeSessions) GetActiveSessions(context.Context, uuid.UUID) ([]*entity.SessionInfo, error) {
	return nil, nil
}

func (f *fakeSessions) GetSessionInfo(context.Context, uuid.UUID, uuid.UUID) (*entity.SessionInfo, error) {
	return nil, nil
}

func (f *fakeSessions) RevokeSession(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (f *fakeSessions) RevokeAllSessions(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

func (f *fakeSessions) CleanupExpiredTokens(_ context.Context, retention time.Duration) (int, error) {
	f.expiredCalls.Add(1)
	f.record(retention)
	if f.failExpired {
		return 0, errors.New("store unavailable")
	}

	return 2, nil
}

func (f *fakeSessions) CleanupRevokedTokens(_ context.Context, retention time.Duration) (int, error) {
	f.revokedCalls.Add(1)
	f.record(retention)

	return 1, nil
}

func (f *fakeSessions) GetStatistics(context.Context) (*entity.TokenStatistics, error) {
	f.statsCalls.Add(1)

	return &entity.TokenStatistics{Total: 3, Active: 1, Revoked: 1, Expired: 1}, nil
}

func (f *fakeSessions) record(retention time.Duration) {
	select {
	case f.retentions <- retention:
	default:
	}
}

func newTestCleanup(sessions *fakeSessions, enabled bool) *tokenCleanup {
	cfg := config.TokenCleanupConfig{
		Enabled:          enabled,
		ExpiredInterval:  5 * time.Millisecond,
		ExpiredRetention: 7 * 24 * time.Hour,
		RevokedInterval:  7 * time.Millisecond,
		RevokedRetention: 48 * time.Hour,
	}

	return newTokenCleanup(sessions, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTokenCleanupRunsBothJobsUntilStopped(t *testing.T) {
	sessions := &fakeSessions{retentions: make(chan time.Duration, 64)}
	s := newTestCleanup(sessions, true)

	served := make(chan error, 1)
	go func() { served <- s.Serve(context.Background()) }()

	assert.Eventually(t, func() bool {
		return sessions.expiredCalls.Load() > 0 && sessions.revokedCalls.Load() > 0 &&
			sessions.statsCalls.Load() > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, s.stop(context.Background()))
	require.NoError(t, <-served)

	close(sessions.retentions)
	for retention := range sessions.retentions {
		assert.Contains(t, []time.Duration{7 * 24 * time.Hour, 48 * time.Hour}, retention)
	}
}

func TestTokenCleanupStopsWithContext(t *testing.T) {
	sessions := &fakeSessions{retentions: make(chan time.Duration, 64), failExpired: true}
	s := newTestCleanup(sessions, true)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()

	assert.Eventually(t, func() bool { return sessions.expiredCalls.Load() > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}

func TestTokenCleanupDisabledReturnsImmediately(t *testing.T) {
	sessions := &fakeSessions{retentions: make(chan time.Duration, 1)}
	s := newTestCleanup(sessions, false)

	require.NoError(t, s.Serve(context.Background()))
	require.NoError(t, s.stop(context.Background()))
	assert.Zero(t, sessions.expiredCalls.Load())
	assert.Zero(t, sessions.revokedCalls.Load())
}
