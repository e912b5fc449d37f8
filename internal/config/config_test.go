package config_test

import (
	"testing"
	"time"

	"qchat/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.MatchTimeout)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.Equal(t, 256, cfg.ClientSendBuffer)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("MATCH_TIMEOUT", "12s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("REDIS_DB", "3")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 12*time.Second, cfg.MatchTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate_RejectsNonPositiveDurations(t *testing.T) {
	cfg := config.Config{
		MatchTimeout:     0,
		SweepInterval:    time.Second,
		StorageTimeout:   -time.Second,
		ClientSendBuffer: 1,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATCH_TIMEOUT")
	assert.Contains(t, err.Error(), "STORAGE_TIMEOUT")
}
