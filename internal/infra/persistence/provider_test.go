package persistence

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"readzone/config"
	"readzone/internal/domain/constants"
	"readzone/internal/infra/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func newParams(t *testing.T, storage *config.StorageConfig) Params {
	t.Helper()

	return Params{
		Lc:     fxtest.NewLifecycle(t),
		Config: &config.Config{Storage: storage},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  clock.NewFixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func TestNew_MemoryDriver(t *testing.T) {
	repos, err := New(newParams(t, &config.StorageConfig{Driver: constants.StorageDriverMemory}))

	require.NoError(t, err)
	assert.NotNil(t, repos.TxManager)
	assert.NotNil(t, repos.Users)
	assert.NotNil(t, repos.Accounts)
	assert.NotNil(t, repos.RefreshTokens)
}

func TestNew_PostgresWithoutConfig(t *testing.T) {
	_, err := New(newParams(t, nil))

	assert.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(newParams(t, &config.StorageConfig{Driver: "sqlite"}))

	assert.ErrorContains(t, err, "unsupported storage driver")
}
