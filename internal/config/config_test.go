package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.ReorderInterval)
	assert.Equal(t, 45*time.Minute, cfg.CredentialRefreshInterval)
	assert.Equal(t, time.Minute, cfg.RegistryResyncInterval)
	assert.Equal(t, 6*time.Hour, cfg.SweepInterval)
	assert.Equal(t, 48*time.Hour, cfg.RoomMaxLifetime())
	assert.Equal(t, 20*time.Second, cfg.DriftThreshold)
	assert.Equal(t, 10*time.Second, cfg.NoSyncMargin)
	assert.False(t, cfg.Production())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("SYNC_INTERVAL", "2s")
	t.Setenv("ROOM_MAX_LIFETIME_DAYS", "7")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, 2*time.Second, cfg.SyncInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.RoomMaxLifetime())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "cache:6379", cfg.RedisAddr())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"zero interval", "REORDER_INTERVAL", "0s"},
		{"negative interval", "SWEEP_INTERVAL", "-1m"},
		{"short lifetime", "ROOM_MAX_LIFETIME_DAYS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
