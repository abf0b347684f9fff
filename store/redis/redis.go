// Package redis provides a go-redis backed store implementation.
package redis

import (
	"context"
	"crypto/tls"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/qdash/store"
)

// Options contains connection configuration for the Redis-backed store.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	UseTLS   bool
}

// Store is a Redis-backed store implementation.
type Store struct {
	client *redis.Client
}

const connectionTimeout = 5 * time.Second

// New creates a new Redis store and verifies the connection.
func New(opts Options) (store.Store, error) {
	// Parse address to handle redis:// scheme
	addr := opts.Addr
	if parsedURL, err := url.Parse(opts.Addr); err == nil && (parsedURL.Scheme == "redis" || parsedURL.Scheme == "rediss") {
		addr = parsedURL.Host
	}

	redisOpts := &redis.Options{
		Addr:     addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.UseTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(redisOpts)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Store{client: client}, nil
}

// KeysMatching enumerates keys via SCAN so large key-spaces never block the store.
func (rs *Store) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		batch, next, err := rs.client.Scan(ctx, cursor, pattern, store.ScanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Ping verifies the store is reachable.
func (rs *Store) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rs *Store) Close() error {
	return rs.client.Close()
}
