package ports

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KV lookups when the key never existed or
// already expired. Adapters must not distinguish the two.
var ErrKeyNotFound = errors.New("key not found")

// KV is the short-lived keyed storage backing the challenge store and the
// session cache.
type KV interface {
	// Set stores a value with an expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get retrieves a value by key.
	Get(ctx context.Context, key string) (string, error)

	// GetDel retrieves a value and removes it in the same operation. This
	// is the single-use guarantee of the challenge store.
	GetDel(ctx context.Context, key string) (string, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
