package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not found in cache.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the key-value cache surface used by the relation lookup layer.
// Values are JSON-encoded.
type Cache interface {
	// Get retrieves a value, decoding into dest. Returns ErrCacheMiss when
	// the key is absent.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying connection.
	Close() error
}
