package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/rebase-analytics/ibreport/internal/googleauth"
	"github.com/rebase-analytics/ibreport/pkg/cache"
	"github.com/rebase-analytics/ibreport/pkg/client"
	"github.com/rebase-analytics/ibreport/pkg/logging"
	"github.com/rebase-analytics/ibreport/pkg/ratelimit"
)

// shared holds the Redis-backed collaborators. Both are nil without Redis.
type shared struct {
	redis    *redis.Client
	throttle client.Throttle
	cache    *cache.Manager
}

func (s *shared) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
}

func newShared(ctx context.Context) (*shared, error) {
	s := &shared{}
	if !cfg.Redis.Enabled() {
		return s, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	s.redis = rdb
	s.throttle = ratelimit.NewTracker(rdb, logging.NewLogger("ratelimit"))
	s.cache = cache.NewManager(rdb)
	return s, nil
}

func googleOptions(ctx context.Context, scopes []string) ([]option.ClientOption, error) {
	return googleauth.ClientOptions(ctx, googleauth.Config{
		CredentialsFile: cfg.Google.CredentialsFile,
		Subject:         cfg.Google.Subject,
		Scopes:          scopes,
	})
}
