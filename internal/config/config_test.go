package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/quota"
)

// setRequired sets the three mandatory variables.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("PHOTOROOM_API_KEY", "sk_test")
	t.Setenv("CHANNEL_ID", "-1003173585559")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(-1003173585559), cfg.ChannelID)
	assert.Equal(t, "https://t.me/resident_room", cfg.ChannelURL)
	assert.Equal(t, quota.DefaultLimits(), cfg.Limits())
	assert.Equal(t, int64(12<<20), cfg.MaxImageBytes())
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "data/bot.db", cfg.DBPath)
	assert.Equal(t, 60*time.Second, cfg.RemoverTimeout)
	assert.Equal(t, 10*time.Second, cfg.SubCheckTimeout)
	assert.Equal(t, 8, cfg.BotWorkers)
	assert.False(t, cfg.HTTPEnabled())
	assert.Zero(t, cfg.AdminID)
}

// unset removes key for the duration of the test. t.Setenv first so the
// original value comes back afterwards.
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	unset(t, "BOT_TOKEN", "PHOTOROOM_API_KEY", "CHANNEL_ID")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConfigMissing))
	assert.Contains(t, err.Error(), "BOT_TOKEN")
	assert.Contains(t, err.Error(), "PHOTOROOM_API_KEY")
	assert.Contains(t, err.Error(), "CHANNEL_ID")
}

func TestLoad_PostgresNeedsURL(t *testing.T) {
	setRequired(t)
	unset(t, "DATABASE_URL")
	t.Setenv("DB_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "DATABASE_URL", appErr.Field)
}

func TestLoad_HTTPNeedsOperatorSecrets(t *testing.T) {
	setRequired(t)
	unset(t, "OPERATOR_JWT_SECRET", "OPERATOR_PASSWORD_HASH")
	t.Setenv("HTTP_ADDR", ":8080")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrConfigMissing)
	assert.Contains(t, err.Error(), "OPERATOR_JWT_SECRET")

	t.Setenv("OPERATOR_JWT_SECRET", "short")
	t.Setenv("OPERATOR_PASSWORD_HASH", "$2a$04$abcdefghijklmnopqrstuv")
	_, err = Load()
	assert.ErrorIs(t, err, apperror.ErrValidation)

	t.Setenv("OPERATOR_JWT_SECRET", "a-secret-that-is-long-enough")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.HTTPEnabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"DB_DRIVER":   "mysql",
		"FREE_USES":   "-1",
		"MAX_MB":      "0",
		"BOT_WORKERS": "0",
		"LOG_LEVEL":   "chatty",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	// godotenv never overrides variables that are already set
	unset(t, "ADMIN_ID")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADMIN_ID=4242\n"), 0o600))

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, int64(4242), cfg.AdminID)
}
