// Package valkey provides a valkey-go backed store implementation.
package valkey

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/pitabwire/qdash/store"
)

// Options contains connection configuration for the Valkey-backed store.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	UseTLS   bool
}

// Store is a Valkey-backed store implementation using the official Valkey client.
type Store struct {
	client valkey.Client
}

const connectionTimeout = 5 * time.Second

// New creates a new Valkey store and verifies the connection.
func New(opts Options) (store.Store, error) {
	clientOpts := valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		Username:    opts.Username,
		Password:    opts.Password,
		SelectDB:    opts.DB,
	}
	if opts.UseTLS {
		clientOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, err
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if pingErr := client.Do(ctx, client.B().Ping().Build()).Error(); pingErr != nil {
		client.Close()
		return nil, pingErr
	}

	return &Store{client: client}, nil
}

// KeysMatching enumerates keys via SCAN so large key-spaces never block the store.
func (vs *Store) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := vs.client.B().Scan().Cursor(cursor).Match(pattern).Count(store.ScanCount).Build()
		entry, err := vs.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, err
		}
		keys = append(keys, entry.Elements...)

		cursor = entry.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Ping verifies the store is reachable.
func (vs *Store) Ping(ctx context.Context) error {
	return vs.client.Do(ctx, vs.client.B().Ping().Build()).Error()
}

// Close closes the Valkey connection.
func (vs *Store) Close() error {
	vs.client.Close()
	return nil
}
