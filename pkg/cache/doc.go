// Package cache stores fetched report tables in Redis.
//
// Entries carry their own expiry; Redis TTLs are derived from it so stale tables
// disappear on their own, and an entry read after its expiry counts as a miss.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Source:   "redash",
//		Resource: "query/42",
//		Params:   url.Values{"date_from": []string{"2024-01-01"}},
//	}
//
//	t, err := manager.GetTable(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch, then
//		err = manager.SetTable(ctx, key, t, 15*time.Minute)
//	}
//
// # Metrics
//
//   - ibreport_cache_hits_total{source} - Cache hits
//   - ibreport_cache_misses_total{source} - Cache misses (including expired entries)
//   - ibreport_cache_stored_bytes{source} - Encoded size of stored tables
//   - ibreport_cache_errors_total{operation} - Cache operation errors
//
// Numbers come back from the cache as float64 since entries are stored as JSON.
package cache
