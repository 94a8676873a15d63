package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss reports that the key holds no value.
var ErrMiss = errors.New("cache: miss")

// Cache is the shared key-value store with per-key TTL that rate limiter
// state lives in. Implementations must be safe for concurrent use; callers
// tolerate read-modify-write races between their own Get and Set.
type Cache interface {
	// Get returns the stored value or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the value, replacing any previous one, with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
