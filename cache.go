package gromozeka

import (
	"context"
	"time"
)

// Cache is a TTL- and size-bounded key/value store. Implementations never
// propagate internal failures: Get answers with a miss and Set with false.
//
// TTL semantics are shared by all implementations: a zero ttl means
// "always expired", a negative ttl means "never expires", and the
// namespace default applies when the caller passes no override.
type Cache interface {
	// Get returns the cached value for key using the namespace default TTL.
	Get(ctx context.Context, key any) (any, bool)
	// GetWithTTL returns the cached value for key, overriding the
	// namespace default TTL for this read only.
	GetWithTTL(ctx context.Context, key any, ttl time.Duration) (any, bool)
	// Set stores value under key with the current wall-clock timestamp
	// and enforces the namespace size bound.
	Set(ctx context.Context, key, value any) bool
	// Clear drops all entries in the namespace.
	Clear(ctx context.Context) error
	// Stats describes the namespace.
	Stats(ctx context.Context) CacheStats
}

// CacheStats describes one cache namespace.
type CacheStats struct {
	Enabled    bool
	Entries    int
	MaxSize    int
	DefaultTTL time.Duration
}
