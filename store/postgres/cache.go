package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/cache"
)

// CacheNamespace is a persistent gromozeka.Cache over the cache table,
// shared by every bot instance pointed at the same database. Internal
// failures are swallowed: Get answers with a miss and Set with false.
type CacheNamespace struct {
	store     *Store
	namespace string
	keyFn     cache.KeyFunc
	codec     cache.Codec
	ttl       time.Duration
	maxSize   int
	now       func() time.Time
	logger    *slog.Logger
}

var _ gromozeka.Cache = (*CacheNamespace)(nil)

// CacheOption configures a CacheNamespace.
type CacheOption func(*CacheNamespace)

// WithCacheKeyFunc sets the key generator (default DefaultStructuredKey).
func WithCacheKeyFunc(fn cache.KeyFunc) CacheOption {
	return func(c *CacheNamespace) { c.keyFn = fn }
}

// WithCacheCodec sets the value codec (default JSONCodec).
func WithCacheCodec(cd cache.Codec) CacheOption {
	return func(c *CacheNamespace) { c.codec = cd }
}

// WithCacheClock overrides the wall clock, for TTL tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CacheNamespace) { c.now = now }
}

// WithCacheLogger sets a structured logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *CacheNamespace) { c.logger = l }
}

// Cache returns a persistent cache namespace bounded by maxSize entries
// with the given default TTL. A non-positive maxSize means unbounded.
func (s *Store) Cache(namespace string, maxSize int, defaultTTL time.Duration, opts ...CacheOption) *CacheNamespace {
	c := &CacheNamespace{
		store:     s,
		namespace: namespace,
		keyFn:     cache.DefaultStructuredKey,
		codec:     cache.JSONCodec{},
		ttl:       defaultTTL,
		maxSize:   maxSize,
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get looks up key under the namespace default TTL.
func (c *CacheNamespace) Get(ctx context.Context, key any) (any, bool) {
	return c.GetWithTTL(ctx, key, c.ttl)
}

// GetWithTTL looks up key under an explicit TTL. Expired entries are
// deleted and reported as a miss.
func (c *CacheNamespace) GetWithTTL(ctx context.Context, key any, ttl time.Duration) (any, bool) {
	sk, err := c.keyFn(key)
	if err != nil {
		c.logger.Debug("cache key failed", "namespace", c.namespace, "err", err)
		return nil, false
	}

	var data string
	var updatedAt int64
	err = c.store.pool.QueryRow(ctx,
		`SELECT data, updated_at FROM cache WHERE namespace = $1 AND key = $2`,
		c.namespace, sk).Scan(&data, &updatedAt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			c.logger.Debug("cache read failed", "namespace", c.namespace, "err", err)
		}
		return nil, false
	}
	if cacheExpired(c.now(), time.Unix(updatedAt, 0), ttl) {
		if _, err := c.store.pool.Exec(ctx,
			`DELETE FROM cache WHERE namespace = $1 AND key = $2`, c.namespace, sk); err != nil {
			c.logger.Debug("cache expire delete failed", "namespace", c.namespace, "err", err)
		}
		return nil, false
	}
	v, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Debug("cache decode failed", "namespace", c.namespace, "err", err)
		return nil, false
	}
	return v, true
}

// Set stores value with the current timestamp and enforces the size bound
// by evicting oldest entries, ties broken by key.
func (c *CacheNamespace) Set(ctx context.Context, key, value any) bool {
	sk, err := c.keyFn(key)
	if err != nil {
		c.logger.Debug("cache key failed", "namespace", c.namespace, "err", err)
		return false
	}
	data, err := c.codec.Encode(value)
	if err != nil {
		c.logger.Debug("cache encode failed", "namespace", c.namespace, "err", err)
		return false
	}

	now := c.now().Unix()
	_, err = c.store.pool.Exec(ctx,
		`INSERT INTO cache (namespace, key, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (namespace, key) DO UPDATE SET
			data = EXCLUDED.data,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		c.namespace, sk, data, now, now)
	if err != nil {
		c.logger.Debug("cache write failed", "namespace", c.namespace, "err", err)
		return false
	}
	c.evict(ctx)
	return true
}

func (c *CacheNamespace) evict(ctx context.Context) {
	if c.maxSize <= 0 {
		return
	}
	var n int
	if err := c.store.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cache WHERE namespace = $1`, c.namespace).Scan(&n); err != nil {
		c.logger.Debug("cache count failed", "namespace", c.namespace, "err", err)
		return
	}
	if n <= c.maxSize {
		return
	}
	_, err := c.store.pool.Exec(ctx,
		`DELETE FROM cache WHERE namespace = $1 AND key IN (
			SELECT key FROM cache WHERE namespace = $1
			ORDER BY created_at, key LIMIT $2
		)`, c.namespace, n-c.maxSize)
	if err != nil {
		c.logger.Debug("cache evict failed", "namespace", c.namespace, "err", err)
	}
}

// Clear drops all entries in the namespace.
func (c *CacheNamespace) Clear(ctx context.Context) error {
	_, err := c.store.pool.Exec(ctx,
		`DELETE FROM cache WHERE namespace = $1`, c.namespace)
	return err
}

// Stats describes the namespace.
func (c *CacheNamespace) Stats(ctx context.Context) gromozeka.CacheStats {
	st := gromozeka.CacheStats{
		Enabled:    true,
		MaxSize:    c.maxSize,
		DefaultTTL: c.ttl,
	}
	if err := c.store.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cache WHERE namespace = $1`, c.namespace).Scan(&st.Entries); err != nil {
		c.logger.Debug("cache count failed", "namespace", c.namespace, "err", err)
	}
	return st
}

// cacheExpired applies the shared TTL semantics: ttl==0 is always expired,
// ttl<0 never expires.
func cacheExpired(now, createdAt time.Time, ttl time.Duration) bool {
	if ttl < 0 {
		return false
	}
	return now.Sub(createdAt) > ttl || ttl == 0
}
