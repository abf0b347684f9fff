// Package legacy implements the adapter family for the legacy queue engine.
// Its client expects a flat configuration shape: connection parameters at the
// top level with the namespace prefix attached alongside. Construction with
// the wrong shape silently misroutes the handle, so the mapping in
// BuildOptions is load-bearing and covered by tests.
package legacy

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/qdash/queues"
)

const (
	connectionTimeout = 5 * time.Second
	deleteBatchSize   = 128
)

// Options is the flat configuration shape the legacy client family expects.
// The legacy engine authenticates with a bare password, no username.
type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
	UseTLS   bool

	// Prefix optionally scopes the queue's key namespace.
	Prefix string
}

// BuildOptions maps the shared connection profile onto the legacy family's
// flat options shape.
func BuildOptions(profile queues.ConnectionProfile) Options {
	return Options{
		Host:     profile.Host,
		Port:     profile.Port,
		Password: profile.Password,
		DB:       profile.DB,
		UseTLS:   profile.UseTLS,
		Prefix:   profile.Prefix,
	}
}

// commands is the subset of the client surface the adapter exercises.
// Narrow on purpose so tests can stand in a fake.
type commands interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Adapter binds one queue name to a legacy-family client handle.
type Adapter struct {
	name   string
	prefix string
	client commands
}

// New constructs a legacy-family adapter for the named queue and verifies
// the connection with a bounded timeout.
func New(ctx context.Context, name string, opts Options) (queues.Adapter, error) {
	redisOpts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.UseTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("legacy adapter %q: %w", name, err)
	}

	return newWithClient(name, opts.Prefix, client), nil
}

func newWithClient(name, prefix string, client commands) *Adapter {
	return &Adapter{name: name, prefix: prefix, client: client}
}

// Name returns the queue name the adapter is bound to.
func (a *Adapter) Name() string {
	return a.name
}

// Engine identifies the adapter's client family.
func (a *Adapter) Engine() queues.EngineVersion {
	return queues.EngineLegacy
}

// Counts reports per-state job totals from the engine's conventional keys.
func (a *Adapter) Counts(ctx context.Context) (queues.Counts, error) {
	var counts queues.Counts
	var err error

	listStates := []struct {
		suffix string
		target *int64
	}{
		{"wait", &counts.Waiting},
		{"active", &counts.Active},
		{"paused", &counts.Paused},
	}
	for _, state := range listStates {
		*state.target, err = a.client.LLen(ctx, queues.Key(a.prefix, a.name, state.suffix)).Result()
		if err != nil {
			return queues.Counts{}, fmt.Errorf("queue %q: counting %s: %w", a.name, state.suffix, err)
		}
	}

	setStates := []struct {
		suffix string
		target *int64
	}{
		{"completed", &counts.Completed},
		{"failed", &counts.Failed},
		{"delayed", &counts.Delayed},
	}
	for _, state := range setStates {
		*state.target, err = a.client.ZCard(ctx, queues.Key(a.prefix, a.name, state.suffix)).Result()
		if err != nil {
			return queues.Counts{}, fmt.Errorf("queue %q: counting %s: %w", a.name, state.suffix, err)
		}
	}

	return counts, nil
}

// Obliterate removes every key under the queue's namespace. With force off it
// refuses while jobs are active.
func (a *Adapter) Obliterate(ctx context.Context, force bool) error {
	if !force {
		active, err := a.client.LLen(ctx, queues.Key(a.prefix, a.name, "active")).Result()
		if err != nil {
			return fmt.Errorf("queue %q: checking active jobs: %w", a.name, err)
		}
		if active > 0 {
			return fmt.Errorf("queue %q: %w", a.name, queues.ErrQueueActive)
		}
	}

	pattern := queues.Key(a.prefix, a.name) + ":*"
	var cursor uint64
	for {
		keys, next, err := a.client.Scan(ctx, cursor, pattern, deleteBatchSize).Result()
		if err != nil {
			return fmt.Errorf("queue %q: enumerating keys: %w", a.name, err)
		}

		if len(keys) > 0 {
			if err = a.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("queue %q: deleting keys: %w", a.name, err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	// The marker key carries no suffix and is missed by the pattern above.
	if err := a.client.Del(ctx, queues.Key(a.prefix, a.name)).Err(); err != nil {
		return fmt.Errorf("queue %q: deleting marker key: %w", a.name, err)
	}

	return nil
}

// Close releases the underlying client handle.
func (a *Adapter) Close() error {
	return a.client.Close()
}
