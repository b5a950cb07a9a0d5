package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network/TLS settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the chat service.
type Config struct {
	// Database
	DBURL  string
	DBName string

	// Datastore backend type: "mongo" or "memory".
	DatastoreType string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type: "redis" or "none".
	CacheType string

	// Redis
	RedisURL        string
	ProfileCacheTTL time.Duration

	// Sessions
	// SessionSecret signs HS256 session tokens issued by /auth/login.
	SessionSecret string
	SessionTTL    time.Duration
	BcryptCost    int

	// OIDC bearer tokens are accepted alongside session tokens when an
	// issuer is configured.
	OIDCIssuer       string
	OIDCDiscoveryURL string

	// SeenRequiresMembership makes MarkSeen verify the caller belongs to the
	// message's chat. The original service recorded receipts without that
	// check, so it defaults off; flip it on to close the gap.
	SeenRequiresMembership bool

	// Pagination
	DefaultPageSize int

	// Server
	Listener            ListenerConfig
	ManagementAccessLog bool
	MaxBodySize         int64

	// CORS for browser clients
	CORSEnabled bool
	CORSOrigins string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DBName:                  "chat_service",
		DatastoreType:           "mongo",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		ProfileCacheTTL:         5 * time.Minute,
		SessionTTL:              24 * time.Hour,
		BcryptCost:              12,
		DefaultPageSize:         20,
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:  1 << 20, // 1 MiB
		DrainTimeout: 30,
	}
}
