// Package cache is a small key-value port used for send_message idempotency keys.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Cache stores string values with a TTL. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key. A non-positive ttl means no expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}
