// Package store defines the key-value store query surface consumed by queue
// discovery. Implementations live in the backend subpackages.
package store

import "context"

// ScanCount is the enumeration batch size passed to the store's SCAN call.
const ScanCount = 512

// Store is a scoped connection to the shared key-value store.
type Store interface {
	// KeysMatching enumerates every key matching the supplied glob pattern.
	// Enumeration either completes fully or fails as a whole.
	KeysMatching(ctx context.Context, pattern string) ([]string, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
