// Package redis constructs the shared go-redis client used as the state
// store collaborator: the result-store key_value backend and the saga-store
// Redis backend both dial through the client built here rather than each
// parsing their own URL.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=statestore.redis.NewClient: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ping is the readiness probe used by app.BuildReadinessChecks.
func Ping(ctx context.Context, rdb *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(pingCtx).Err()
}
