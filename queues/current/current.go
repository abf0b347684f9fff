// Package current implements the adapter family for the current queue
// engine. Its client expects connection parameters nested under a connection
// key, unlike the legacy family's flat shape. Construction with the wrong
// shape silently misroutes the handle, so the mapping here is load-bearing
// and covered by tests.
package current

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/pitabwire/qdash/queues"
)

const (
	connectionTimeout = 5 * time.Second
	deleteBatchSize   = 128
)

// ConnectionOptions carries the connection parameters of the current client
// family. The current engine supports full ACL credentials.
type ConnectionOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	UseTLS   bool
}

// Options is the configuration shape the current client family expects:
// everything connection-related nested under Connection.
type Options struct {
	Connection ConnectionOptions

	// Prefix optionally scopes the queue's key namespace.
	Prefix string
}

// BuildOptions maps the shared connection profile onto the current family's
// nested options shape.
func BuildOptions(profile queues.ConnectionProfile) Options {
	return Options{
		Connection: ConnectionOptions{
			Host:     profile.Host,
			Port:     profile.Port,
			Username: profile.Username,
			Password: profile.Password,
			DB:       profile.DB,
			UseTLS:   profile.UseTLS,
		},
		Prefix: profile.Prefix,
	}
}

// clientOption translates the nested options into the concrete client
// configuration.
func clientOption(opts Options) valkey.ClientOption {
	conn := opts.Connection
	clientOpts := valkey.ClientOption{
		InitAddress: []string{net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))},
		Username:    conn.Username,
		Password:    conn.Password,
		SelectDB:    conn.DB,
	}
	if conn.UseTLS {
		clientOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return clientOpts
}

// Adapter binds one queue name to a current-family client handle.
type Adapter struct {
	name   string
	prefix string
	client valkey.Client
}

// New constructs a current-family adapter for the named queue and verifies
// the connection with a bounded timeout.
func New(ctx context.Context, name string, opts Options) (queues.Adapter, error) {
	client, err := valkey.NewClient(clientOption(opts))
	if err != nil {
		return nil, fmt.Errorf("current adapter %q: %w", name, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if pingErr := client.Do(pingCtx, client.B().Ping().Build()).Error(); pingErr != nil {
		client.Close()
		return nil, fmt.Errorf("current adapter %q: %w", name, pingErr)
	}

	return &Adapter{name: name, prefix: opts.Prefix, client: client}, nil
}

// Name returns the queue name the adapter is bound to.
func (a *Adapter) Name() string {
	return a.name
}

// Engine identifies the adapter's client family.
func (a *Adapter) Engine() queues.EngineVersion {
	return queues.EngineCurrent
}

func (a *Adapter) listLen(ctx context.Context, suffix string) (int64, error) {
	cmd := a.client.B().Llen().Key(queues.Key(a.prefix, a.name, suffix)).Build()
	n, err := a.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("queue %q: counting %s: %w", a.name, suffix, err)
	}
	return n, nil
}

func (a *Adapter) setCard(ctx context.Context, suffix string) (int64, error) {
	cmd := a.client.B().Zcard().Key(queues.Key(a.prefix, a.name, suffix)).Build()
	n, err := a.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("queue %q: counting %s: %w", a.name, suffix, err)
	}
	return n, nil
}

// Counts reports per-state job totals from the engine's conventional keys.
func (a *Adapter) Counts(ctx context.Context) (queues.Counts, error) {
	var counts queues.Counts
	var err error

	if counts.Waiting, err = a.listLen(ctx, "wait"); err != nil {
		return queues.Counts{}, err
	}
	if counts.Active, err = a.listLen(ctx, "active"); err != nil {
		return queues.Counts{}, err
	}
	if counts.Paused, err = a.listLen(ctx, "paused"); err != nil {
		return queues.Counts{}, err
	}
	if counts.Completed, err = a.setCard(ctx, "completed"); err != nil {
		return queues.Counts{}, err
	}
	if counts.Failed, err = a.setCard(ctx, "failed"); err != nil {
		return queues.Counts{}, err
	}
	if counts.Delayed, err = a.setCard(ctx, "delayed"); err != nil {
		return queues.Counts{}, err
	}

	return counts, nil
}

// Obliterate removes every key under the queue's namespace. With force off it
// refuses while jobs are active.
func (a *Adapter) Obliterate(ctx context.Context, force bool) error {
	if !force {
		active, err := a.listLen(ctx, "active")
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("queue %q: %w", a.name, queues.ErrQueueActive)
		}
	}

	pattern := queues.Key(a.prefix, a.name) + ":*"
	var cursor uint64
	for {
		scan := a.client.B().Scan().Cursor(cursor).Match(pattern).Count(deleteBatchSize).Build()
		entry, err := a.client.Do(ctx, scan).AsScanEntry()
		if err != nil {
			return fmt.Errorf("queue %q: enumerating keys: %w", a.name, err)
		}

		if len(entry.Elements) > 0 {
			del := a.client.B().Del().Key(entry.Elements...).Build()
			if delErr := a.client.Do(ctx, del).Error(); delErr != nil {
				return fmt.Errorf("queue %q: deleting keys: %w", a.name, delErr)
			}
		}

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	// The marker key carries no suffix and is missed by the pattern above.
	del := a.client.B().Del().Key(queues.Key(a.prefix, a.name)).Build()
	if err := a.client.Do(ctx, del).Error(); err != nil {
		return fmt.Errorf("queue %q: deleting marker key: %w", a.name, err)
	}

	return nil
}

// Close releases the underlying client handle.
func (a *Adapter) Close() error {
	a.client.Close()
	return nil
}
