package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/slackrelay/dedup"
)

// Guard is a dedup.Guard shared across processes. SET NX with a TTL makes
// check-and-record a single atomic command; expiry is left to Redis, so
// now only stamps the value.
type Guard struct {
	store     *Store
	namespace string
	window    time.Duration
}

// compile-time interface check
var _ dedup.Guard = (*Guard)(nil)

// Guard returns a Redis-backed guard for namespace.
func (s *Store) Guard(namespace string, window time.Duration) dedup.Guard {
	if window <= 0 {
		window = dedup.DefaultWindow
	}
	return &Guard{store: s, namespace: namespace, window: window}
}

// Seen implements dedup.Guard. An empty key is never suppressed nor recorded.
func (g *Guard) Seen(ctx context.Context, key string, now time.Time) (bool, error) {
	if key == "" {
		return false, nil
	}
	ok, err := g.store.rdb.SetNX(ctx, dedupKey(g.namespace, key), now.UnixMilli(), g.window).Result()
	if err != nil {
		return false, fmt.Errorf("slackrelay/redis: dedup %s: %w", g.namespace, err)
	}
	return !ok, nil
}
