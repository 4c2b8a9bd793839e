package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rebase-analytics/ibreport/pkg/table"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores fetched tables in Redis.
type Manager struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewManager returns a Manager on redisClient, which must not be nil.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:  redisClient,
		logger: log.With().Str("component", "cache").Logger(),
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(key.Source).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(key.Source).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(key.Source).Inc()
	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// Entries that are already expired are not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheStoredBytes.WithLabelValues(key.Source).Observe(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// GetTable returns the cached table for key.
func (m *Manager) GetTable(ctx context.Context, key Key) (*table.Table, error) {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Table(), nil
}

// SetTable caches t under key for ttl.
func (m *Manager) SetTable(ctx context.Context, key Key, t *table.Table, ttl time.Duration) error {
	return m.Set(ctx, key, NewEntry(t, ttl))
}

// LoadFunc produces the table for a key that is not cached.
type LoadFunc func(ctx context.Context) (*table.Table, error)

// GetOrLoad returns the table cached under key or, on a miss, the result of
// load, which is then cached for ttl. hit reports whether the cache answered.
//
// Redis failures are logged and degrade to calling load; errors from load are
// returned unchanged and nothing is stored.
func (m *Manager) GetOrLoad(ctx context.Context, key Key, ttl time.Duration, load LoadFunc) (t *table.Table, hit bool, err error) {
	t, err = m.GetTable(ctx, key)
	switch {
	case err == nil:
		m.logger.Debug().Str("key", key.String()).Msg("Served from cache")
		return t, true, nil
	case !errors.Is(err, ErrCacheMiss):
		m.logger.Warn().Err(err).Str("source", key.Source).Msg("Cache lookup failed")
	}

	t, err = load(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := m.SetTable(ctx, key, t, ttl); err != nil {
		m.logger.Warn().Err(err).Str("source", key.Source).Msg("Cache store failed")
	}
	return t, false, nil
}
