// Package queues holds the queue data model shared by the adapter families:
// connection configuration, the engine-version selector, the adapter
// contract and the atomically replaceable registry.
package queues

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrQueueActive is returned by Obliterate when force is off and the queue
// still has jobs in flight.
var ErrQueueActive = errors.New("queue has active jobs")

// Counts summarises a queue's jobs per state for presentation.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    int64 `json:"paused"`
}

// Adapter owns one queue-client handle bound to a single queue name.
//
// An adapter is created once per discovered queue during a discovery pass and
// released only when superseded by a later pass or at process shutdown.
type Adapter interface {
	// Name returns the queue name the adapter is bound to.
	Name() string

	// Engine identifies which client family backs the adapter.
	Engine() EngineVersion

	// Counts reports the queue's per-state job totals.
	Counts(ctx context.Context) (Counts, error)

	// Obliterate removes all jobs and metadata for the queue, irreversibly.
	// With force off it refuses while jobs are active, returning ErrQueueActive.
	Obliterate(ctx context.Context, force bool) error

	// Close releases the underlying client handle.
	Close() error
}

// ConnectionProfile carries the store connection parameters shared read-only
// by every adapter. Immutable for the process lifetime.
type ConnectionProfile struct {
	Host     string
	Port     int
	DB       int
	Username string
	Password string
	UseTLS   bool

	// Prefix is the namespace segment scoping this queueing system's keys.
	Prefix string
}

// Addr returns the host:port dial address of the profile.
func (p ConnectionProfile) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// EngineVersion selects which adapter construction path is used. Chosen once
// at startup and immutable afterwards.
type EngineVersion string

const (
	// EngineLegacy selects the legacy client family, configured with a flat
	// options structure.
	EngineLegacy EngineVersion = "legacy"

	// EngineCurrent selects the current client family, configured with
	// connection parameters nested under a connection key.
	EngineCurrent EngineVersion = "current"
)

// ParseEngineVersion converts a configuration string to an EngineVersion.
// It is case-insensitive and rejects anything it does not recognise.
func ParseEngineVersion(value string) (EngineVersion, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(EngineLegacy):
		return EngineLegacy, nil
	case string(EngineCurrent):
		return EngineCurrent, nil
	default:
		return "", fmt.Errorf("unknown engine version: %q", value)
	}
}

func (e EngineVersion) String() string {
	return string(e)
}

// Key assembles a namespaced queue key of the form prefix:name or
// prefix:name:suffix.
func Key(prefix, name string, suffix ...string) string {
	parts := append([]string{prefix, name}, suffix...)
	return strings.Join(parts, ":")
}
