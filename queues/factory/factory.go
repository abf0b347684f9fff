// Package factory constructs queue adapters, dispatching on the engine
// version selector to the appropriate client family.
package factory

import (
	"context"
	"fmt"

	"github.com/pitabwire/qdash/queues"
	"github.com/pitabwire/qdash/queues/current"
	"github.com/pitabwire/qdash/queues/legacy"
)

// New returns an adapter for the named queue, configured from the shared
// connection profile through the construction path the engine version
// selects. Connection failures surface as construction errors.
func New(ctx context.Context, name string, engine queues.EngineVersion, profile queues.ConnectionProfile) (queues.Adapter, error) {
	switch engine {
	case queues.EngineLegacy:
		return legacy.New(ctx, name, legacy.BuildOptions(profile))
	case queues.EngineCurrent:
		return current.New(ctx, name, current.BuildOptions(profile))
	default:
		return nil, fmt.Errorf("no adapter construction path for engine version %q", engine)
	}
}
