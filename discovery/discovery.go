// Package discovery inspects the shared store's raw key-space to find which
// queues currently exist and rebuilds the adapter registry from the result.
// Queues never announce themselves; their keys are the only evidence.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pitabwire/util"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel"

	"github.com/pitabwire/qdash/queues"
	"github.com/pitabwire/qdash/queues/factory"
	"github.com/pitabwire/qdash/store"
)

// ErrMissingPrefix is returned when a scan is attempted without a namespace prefix.
var ErrMissingPrefix = errors.New("namespace prefix is required")

// Scan enumerates the store's key-space under the namespace prefix and
// returns the distinct queue names present, sorted ascending. An empty
// key-space yields an empty result, not an error. Enumeration failure fails
// the scan as a whole.
func Scan(ctx context.Context, st store.Store, prefix string) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, ErrMissingPrefix
	}

	keys, err := st.KeysMatching(ctx, prefix+":*")
	if err != nil {
		return nil, fmt.Errorf("enumerating key-space %q: %w", prefix, err)
	}

	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		name, ok := queueNameFromKey(key, prefix)
		if !ok {
			continue
		}
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// queueNameFromKey extracts the queue name segment from a key of the form
// prefix:name or prefix:name:suffix. The prefix match is anchored on the
// separator so a longer unrelated prefix never merges into this namespace.
func queueNameFromKey(key, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(key, prefix+":")
	if !ok {
		return "", false
	}

	name := rest
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		name = rest[:i]
	}
	if name == "" {
		return "", false
	}
	return name, true
}

// NewAdapterFunc constructs one adapter for a discovered queue name.
type NewAdapterFunc func(ctx context.Context, name string, engine queues.EngineVersion, profile queues.ConnectionProfile) (queues.Adapter, error)

// Pass is one full discovery run: scan the key-space, build an adapter per
// queue and atomically replace the registry's contents.
type Pass struct {
	Store    store.Store
	Prefix   string
	Engine   queues.EngineVersion
	Profile  queues.ConnectionProfile
	Registry *queues.Registry

	// NewAdapter overrides adapter construction; nil uses the factory.
	NewAdapter NewAdapterFunc
}

// Result is the explicit outcome of a discovery pass, inspectable by the
// process bootstrap instead of being logged and forgotten.
type Result struct {
	// Names are the queue names the scan produced, sorted.
	Names []string

	// Skipped lists queues whose adapter construction failed and were
	// omitted from the registry.
	Skipped []string

	// Err is set when the scan itself could not complete. The registry is
	// left untouched in that case.
	Err error
}

// Ready reports whether the pass completed and the registry was published.
func (r Result) Ready() bool {
	return r.Err == nil
}

// Run executes the discovery pass. A failed key-space scan fails the whole
// pass; a failed adapter construction only skips that queue so one broken
// queue cannot hide all others. Superseded adapters are closed after the
// registry swap.
func (p *Pass) Run(ctx context.Context) Result {
	ctx, span := otel.Tracer("qdash/discovery").Start(ctx, "discovery.Pass.Run")
	defer span.End()

	log := util.Log(ctx).
		WithField("scan_id", xid.New().String()).
		WithField("prefix", p.Prefix).
		WithField("engine", p.Engine.String())

	names, err := Scan(ctx, p.Store, p.Prefix)
	if err != nil {
		log.WithError(err).Error("key-space scan failed, keeping previous registry")
		return Result{Err: err}
	}

	newAdapter := p.NewAdapter
	if newAdapter == nil {
		newAdapter = factory.New
	}

	adapters := make([]queues.Adapter, 0, len(names))
	var skipped []string
	for _, name := range names {
		adapter, buildErr := newAdapter(ctx, name, p.Engine, p.Profile)
		if buildErr != nil {
			log.WithError(buildErr).WithField("queue", name).
				Warn("adapter construction failed, omitting queue from registry")
			skipped = append(skipped, name)
			continue
		}
		adapters = append(adapters, adapter)
	}

	displaced := p.Registry.Replace(adapters)
	for _, old := range displaced {
		if closeErr := old.Close(); closeErr != nil {
			log.WithError(closeErr).WithField("queue", old.Name()).
				Warn("failed to release superseded adapter")
		}
	}

	log.WithField("queues", len(adapters)).
		WithField("skipped", len(skipped)).
		Info("discovery pass complete")

	return Result{Names: names, Skipped: skipped}
}
