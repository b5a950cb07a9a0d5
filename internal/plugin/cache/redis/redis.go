package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-service/internal/config"
	"chat-service/internal/model"
	registrycache "chat-service/internal/registry/cache"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ProfileCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CHAT_SERVICE_REDIS_URL is required")
	}
	ttl := cfg.ProfileCacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURL creates a ProfileCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.ProfileCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisProfileCache{client: client, ttl: ttl}, nil
}

type redisProfileCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func profileKey(userID uuid.UUID) string {
	return "user-profile:" + userID.String()
}

func (c *redisProfileCache) Available() bool { return true }

func (c *redisProfileCache) Get(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	data, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache: get: %w", err)
	}
	var profile model.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("redis cache: decode profile: %w", err)
	}
	return &profile, nil
}

func (c *redisProfileCache) Set(ctx context.Context, profile model.UserProfile, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("redis cache: encode profile: %w", err)
	}
	if err := c.client.Set(ctx, profileKey(profile.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache: set: %w", err)
	}
	return nil
}

func (c *redisProfileCache) Remove(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, profileKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis cache: del: %w", err)
	}
	return nil
}

var _ registrycache.ProfileCache = (*redisProfileCache)(nil)
