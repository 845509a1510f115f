package store

import "context"

// Store is durable, process surviving storage of small blobs by key.
// Each subsystem owns a disjoint key namespace so no cross subsystem
// contention exists.
type Store interface {
	// Get retrieves the value stored under key.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the value stored under key.
	Delete(ctx context.Context, key string) error

	// Keys lists all stored keys that begin with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources used by the store.
	Close() error
}
