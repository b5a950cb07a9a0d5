package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mongo", cfg.DatastoreType)
	assert.Equal(t, "chat_service", cfg.DBName)
	assert.True(t, cfg.DatastoreMigrateAtStart)
	assert.Equal(t, "none", cfg.CacheType)
	assert.Equal(t, 5*time.Minute, cfg.ProfileCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 20, cfg.DefaultPageSize)
	assert.False(t, cfg.SeenRequiresMembership)
	assert.Equal(t, 8080, cfg.Listener.Port)
	assert.Equal(t, int64(1<<20), cfg.MaxBodySize)
}

func TestConfigContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)

	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, &cfg, got)

	assert.Nil(t, FromContext(context.Background()))
}
