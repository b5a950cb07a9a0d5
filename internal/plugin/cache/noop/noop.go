package noop

import (
	"context"
	"time"

	"chat-service/internal/model"
	"chat-service/internal/registry/cache"

	"github.com/google/uuid"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.ProfileCache, error) {
			return &noopProfileCache{}, nil
		},
	})
}

type noopProfileCache struct{}

func (n *noopProfileCache) Available() bool { return false }
func (n *noopProfileCache) Get(_ context.Context, _ uuid.UUID) (*model.UserProfile, error) {
	return nil, nil
}
func (n *noopProfileCache) Set(_ context.Context, _ model.UserProfile, _ time.Duration) error {
	return nil
}
func (n *noopProfileCache) Remove(_ context.Context, _ uuid.UUID) error { return nil }

var _ cache.ProfileCache = (*noopProfileCache)(nil)
