package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

type entry struct {
	data      string
	createdAt time.Time
}

// Memory is the in-memory gromozeka.Cache used for tests and ephemeral
// namespaces. All operations are atomic with respect to each other; a
// single mutex per namespace suffices.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry

	keyFn   KeyFunc
	codec   Codec
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithKeyFunc sets the key generator (default DefaultStructuredKey).
func WithKeyFunc(fn KeyFunc) Option {
	return func(m *Memory) { m.keyFn = fn }
}

// WithCodec sets the value codec (default JSONCodec).
func WithCodec(c Codec) Option {
	return func(m *Memory) { m.codec = c }
}

// WithClock overrides the wall clock, for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Memory) { m.logger = l }
}

// NewMemory creates an in-memory cache namespace bounded by maxSize entries
// with the given default TTL. A non-positive maxSize means unbounded.
func NewMemory(maxSize int, defaultTTL time.Duration, opts ...Option) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		keyFn:   DefaultStructuredKey,
		codec:   JSONCodec{},
		ttl:     defaultTTL,
		maxSize: maxSize,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var _ gromozeka.Cache = (*Memory)(nil)

// Get looks up key under the namespace default TTL.
func (m *Memory) Get(ctx context.Context, key any) (any, bool) {
	return m.GetWithTTL(ctx, key, m.ttl)
}

// GetWithTTL looks up key under an explicit TTL. Expired entries are
// deleted and reported as a miss. Any failure is a miss, never an error.
func (m *Memory) GetWithTTL(_ context.Context, key any, ttl time.Duration) (any, bool) {
	sk, err := m.keyFn(key)
	if err != nil {
		m.logger.Debug("cache key failed", "err", err)
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[sk]
	if !ok {
		return nil, false
	}
	if expired(m.now(), e.createdAt, ttl) {
		delete(m.entries, sk)
		return nil, false
	}
	v, err := m.codec.Decode(e.data)
	if err != nil {
		m.logger.Debug("cache decode failed", "err", err)
		return nil, false
	}
	return v, true
}

// Set stores value and enforces the size bound: oldest entries (ties broken
// by key) are evicted until the namespace fits.
func (m *Memory) Set(_ context.Context, key, value any) bool {
	sk, err := m.keyFn(key)
	if err != nil {
		m.logger.Debug("cache key failed", "err", err)
		return false
	}
	data, err := m.codec.Encode(value)
	if err != nil {
		m.logger.Debug("cache encode failed", "err", err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[sk] = entry{data: data, createdAt: m.now()}
	m.evictLocked()
	return true
}

// evictLocked drops entries sorted by (createdAt, key) until the size bound
// holds. Runs inside the write critical section.
func (m *Memory) evictLocked() {
	if m.maxSize <= 0 || len(m.entries) <= m.maxSize {
		return
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, aged{key: k, at: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].at.Equal(all[j].at) {
			return all[i].at.Before(all[j].at)
		}
		return all[i].key < all[j].key
	})
	for _, a := range all[:len(m.entries)-m.maxSize] {
		delete(m.entries, a.key)
	}
}

// Clear drops all entries in the namespace.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
	return nil
}

// Stats describes the namespace.
func (m *Memory) Stats(context.Context) gromozeka.CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gromozeka.CacheStats{
		Enabled:    true,
		Entries:    len(m.entries),
		MaxSize:    m.maxSize,
		DefaultTTL: m.ttl,
	}
}

// expired applies the shared TTL semantics: ttl==0 is always expired,
// ttl<0 never expires.
func expired(now, createdAt time.Time, ttl time.Duration) bool {
	if ttl < 0 {
		return false
	}
	return now.Sub(createdAt) > ttl || ttl == 0
}
