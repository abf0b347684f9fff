package qdash

import (
	"context"
	"net/http"

	"github.com/pitabwire/util"

	"github.com/pitabwire/qdash/config"
	"github.com/pitabwire/qdash/discovery"
	"github.com/pitabwire/qdash/queues"
	"github.com/pitabwire/qdash/store"
	"github.com/pitabwire/qdash/workerpool"
)

// WithConfig overrides the configuration loaded from the environment.
func WithConfig(cfg *config.ConfigurationDefault) Option {
	return func(_ context.Context, s *Service) {
		s.cfg = cfg
	}
}

// WithLogger Option that helps with initialization of our internal logger.
func WithLogger(opts ...util.Option) Option {
	return func(ctx context.Context, s *Service) {
		if cfg := s.Config(); cfg != nil {
			if level, err := util.ParseLevel(cfg.LoggingLevel()); err == nil {
				opts = append(opts, util.WithLogLevel(level))
			}
			opts = append(opts,
				util.WithLogTimeFormat(cfg.LoggingTimeFormat()),
				util.WithLogNoColor(!cfg.LoggingColored()))
		}

		s.logger = util.NewLogger(ctx, opts...)
	}
}

// WithStore supplies the key-value store client used for key-space scans.
// When omitted the service dials the store from configuration on Run.
func WithStore(st store.Store) Option {
	return func(_ context.Context, s *Service) {
		s.st = st
	}
}

// WithRegistry supplies the queue registry. Mostly useful in tests where a
// registry is pre-populated with adapters.
func WithRegistry(registry *queues.Registry) Option {
	return func(_ context.Context, s *Service) {
		s.registry = registry
	}
}

// WithWorkerPool supplies the pool that runs discovery and bulk resets.
func WithWorkerPool(pool *workerpool.Pool) Option {
	return func(_ context.Context, s *Service) {
		s.pool = pool
	}
}

// WithAdapterFactory overrides how adapters are built during discovery.
func WithAdapterFactory(fn discovery.NewAdapterFunc) Option {
	return func(_ context.Context, s *Service) {
		s.newAdapter = fn
	}
}

// WithAuthGate wraps every control endpoint with the supplied middleware.
// The surface itself performs no authentication; the gate is where a
// deployment plugs its own in.
func WithAuthGate(gate func(http.Handler) http.Handler) Option {
	return func(_ context.Context, s *Service) {
		s.authGate = gate
	}
}

// WithFacadeHandler mounts the dashboard facade whose root document the
// response transform decorates.
func WithFacadeHandler(h http.Handler) Option {
	return func(_ context.Context, s *Service) {
		s.facade = h
	}
}

// WithHealthCheckPath overrides the path on which the health endpoint is served.
func WithHealthCheckPath(path string) Option {
	return func(_ context.Context, s *Service) {
		s.healthCheckPath = path
	}
}

// WithVersion sets the release version of the service.
func WithVersion(version string) Option {
	return func(_ context.Context, s *Service) {
		s.version = version
	}
}

// WithEnvironment sets the runtime environment of the service.
func WithEnvironment(environment string) Option {
	return func(_ context.Context, s *Service) {
		s.environment = environment
	}
}

// WithDisableTelemetry disables open telemetry setup for the service.
func WithDisableTelemetry() Option {
	return func(_ context.Context, s *Service) {
		s.disableTelemetry = true
	}
}
