// Package cache provides the shared key/value store used for query result
// caching. Values are opaque bytes; serialization is the caller's concern.
package cache

import (
	"context"
	"time"
)

type Store interface {
	// Read returns the bytes stored under key, or found=false when the key
	// is absent or expired.
	Read(ctx context.Context, key string) (value []byte, found bool, err error)
	// Write stores value under key with the given TTL. A TTL <= 0 is
	// rejected by implementations.
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
