// Package qdash presents a live, unified control surface over background job
// queues that exist only as key-value namespaces inside a shared store.
package qdash

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/qdash/config"
	"github.com/pitabwire/qdash/discovery"
	"github.com/pitabwire/qdash/queues"
	"github.com/pitabwire/qdash/store"
	storeredis "github.com/pitabwire/qdash/store/redis"
	storevalkey "github.com/pitabwire/qdash/store/valkey"
	"github.com/pitabwire/qdash/workerpool"
)

const (
	defaultHTTPReadTimeoutSeconds  = 15
	defaultHTTPWriteTimeoutSeconds = 15
	defaultHTTPIdleTimeoutSeconds  = 60
)

// Service holds together the control surface's components for the lifetime
// of the process.
type Service struct {
	name        string
	version     string
	environment string

	logger *util.LogEntry
	cfg    *config.ConfigurationDefault

	registry *queues.Registry
	st       store.Store
	pool     *workerpool.Pool

	// newAdapter overrides adapter construction during discovery; nil uses
	// the factory.
	newAdapter discovery.NewAdapterFunc

	handler         http.Handler
	facade          http.Handler
	authGate        func(http.Handler) http.Handler
	healthCheckPath string

	disableTelemetry bool
	tracerShutdown   func(ctx context.Context) error

	lastDiscovery atomic.Pointer[discovery.Result]

	cancelFunc        context.CancelFunc
	errorChannel      chan error
	errorChannelMutex sync.Mutex
	httpServer        *http.Server
	startOnce         sync.Once
	stopMutex         sync.Mutex
}

// Option configures the service during construction.
type Option func(ctx context.Context, s *Service)

// NewService creates a new service instance with the name and supplied options.
func NewService(name string, opts ...Option) (context.Context, *Service) {
	return NewServiceWithContext(context.Background(), name, opts...)
}

// NewServiceWithContext creates a new service instance bound to a context
// that listens for OS signals for graceful shutdown.
func NewServiceWithContext(ctx context.Context, name string, opts ...Option) (context.Context, *Service) {
	ctx, signalCancelFunc := signal.NotifyContext(ctx,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	defaultCfg, err := config.FromEnv[config.ConfigurationDefault]()
	if err != nil {
		util.Log(ctx).WithError(err).Warn("processing environment configuration")
	}

	s := &Service{
		name:         name,
		cfg:          &defaultCfg,
		registry:     queues.NewRegistry(),
		cancelFunc:   signalCancelFunc,
		errorChannel: make(chan error, 1),
	}

	s.Init(ctx, opts...)

	if s.logger == nil {
		s.logger = newLogger(ctx, s.cfg)
	}
	if s.cfg.ServiceVersion != "" && s.version == "" {
		s.version = s.cfg.ServiceVersion
	}
	if s.cfg.ServiceEnvironment != "" && s.environment == "" {
		s.environment = s.cfg.ServiceEnvironment
	}

	if s.pool == nil {
		pool, poolErr := workerpool.New(ctx, workerpool.Options{
			Capacity:       s.cfg.GetCapacity(),
			ExpiryDuration: s.cfg.GetExpiryDuration(),
			Nonblocking:    false,
			Logger:         s.logger,
		})
		if poolErr != nil {
			s.logger.WithError(poolErr).Panic("could not create the worker pool")
		}
		s.pool = pool
	}

	ctx = config.ToContext(ctx, s.cfg)
	ctx = util.ContextWithLogger(ctx, s.logger)
	return ctx, s
}

func newLogger(ctx context.Context, cfg config.ConfigurationLogLevel) *util.LogEntry {
	var opts []util.Option

	if level, err := util.ParseLevel(cfg.LoggingLevel()); err == nil {
		opts = append(opts, util.WithLogLevel(level))
	}
	opts = append(opts,
		util.WithLogTimeFormat(cfg.LoggingTimeFormat()),
		util.WithLogNoColor(!cfg.LoggingColored()))

	return util.NewLogger(ctx, opts...)
}

// Init evaluates the options provided as arguments and applies them to the service.
func (s *Service) Init(ctx context.Context, opts ...Option) {
	for _, opt := range opts {
		opt(ctx, s)
	}
}

// Name gets the name of the service.
func (s *Service) Name() string {
	return s.name
}

// Version gets the release version of the service.
func (s *Service) Version() string {
	return s.version
}

// Environment gets the runtime environment of the service.
func (s *Service) Environment() string {
	return s.environment
}

// Config returns the service configuration.
func (s *Service) Config() *config.ConfigurationDefault {
	return s.cfg
}

// Registry returns the queue registry read by the dashboard facade and the
// bulk reset executor.
func (s *Service) Registry() *queues.Registry {
	return s.registry
}

// Log returns a contextual log entry for the service.
func (s *Service) Log(ctx context.Context) *util.LogEntry {
	return s.logger.WithContext(ctx)
}

// Handler returns the HTTP handler serving the control surface, building it
// on first use.
func (s *Service) Handler() http.Handler {
	if s.handler == nil {
		s.handler = s.buildHandler()
	}
	return s.handler
}

// DiscoveryResult returns the outcome of the most recent discovery pass, or
// nil when no pass has finished yet.
func (s *Service) DiscoveryResult() *discovery.Result {
	return s.lastDiscovery.Load()
}

// ensureStore builds the store client from configuration when none was
// injected. The engine version decides the client family used for scanning.
func (s *Service) ensureStore(engine queues.EngineVersion) error {
	if s.st != nil {
		return nil
	}

	var st store.Store
	var err error
	if engine == queues.EngineLegacy {
		st, err = storeredis.New(storeredis.Options{
			Addr:     s.cfg.StoreAddress(),
			Username: s.cfg.StoreUser(),
			Password: s.cfg.StoreCredential(),
			DB:       s.cfg.StoreDB(),
			UseTLS:   s.cfg.StoreTLS(),
		})
	} else {
		st, err = storevalkey.New(storevalkey.Options{
			Addr:     s.cfg.StoreAddress(),
			Username: s.cfg.StoreUser(),
			Password: s.cfg.StoreCredential(),
			DB:       s.cfg.StoreDB(),
			UseTLS:   s.cfg.StoreTLS(),
		})
	}
	if err != nil {
		return err
	}

	s.st = st
	return nil
}

// connectionProfile derives the adapter connection profile from configuration.
func (s *Service) connectionProfile() queues.ConnectionProfile {
	return queues.ConnectionProfile{
		Host:     s.cfg.StoreHost,
		Port:     s.cfg.StorePort,
		DB:       s.cfg.StoreDB(),
		Username: s.cfg.StoreUser(),
		Password: s.cfg.StoreCredential(),
		UseTLS:   s.cfg.StoreTLS(),
		Prefix:   s.cfg.NamespacePrefix(),
	}
}

// startDiscovery schedules the startup discovery pass on the worker pool.
// Requests arriving before it completes observe an unpopulated registry,
// which the control surface treats as an empty dashboard, not an error.
func (s *Service) startDiscovery(ctx context.Context, engine queues.EngineVersion) {
	pass := &discovery.Pass{
		Store:      s.st,
		Prefix:     s.cfg.NamespacePrefix(),
		Engine:     engine,
		Profile:    s.connectionProfile(),
		Registry:   s.registry,
		NewAdapter: s.newAdapter,
	}

	submitErr := s.pool.Submit(ctx, func() {
		result := pass.Run(ctx)
		s.lastDiscovery.Store(&result)
	})
	if submitErr != nil {
		s.Log(ctx).WithError(submitErr).Error("could not schedule discovery pass")
	}
}

// Run starts the control surface and blocks until the context is cancelled
// or the server fails.
func (s *Service) Run(ctx context.Context, address string) error {
	engine, err := queues.ParseEngineVersion(s.cfg.EngineVersion())
	if err != nil {
		return err
	}

	if telErr := s.initTelemetry(ctx); telErr != nil {
		return telErr
	}

	// A store that cannot be reached is a DiscoveryFailure: the process
	// still starts with an unpopulated registry so the control surface
	// stays independently useful.
	if storeErr := s.ensureStore(engine); storeErr != nil {
		s.Log(ctx).WithError(storeErr).
			Error("store unreachable, starting with an empty dashboard")
	} else {
		s.startDiscovery(ctx, engine)
	}

	if address == "" {
		address = s.cfg.HTTPPort()
	}

	s.startOnce.Do(func() {
		s.httpServer = &http.Server{
			Addr:    address,
			Handler: s.Handler(),
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
			ReadTimeout:  defaultHTTPReadTimeoutSeconds * time.Second,
			WriteTimeout: defaultHTTPWriteTimeoutSeconds * time.Second,
			IdleTimeout:  defaultHTTPIdleTimeoutSeconds * time.Second,
		}
	})

	go func() {
		srvErr := s.httpServer.ListenAndServe()
		if errors.Is(srvErr, http.ErrServerClosed) {
			srvErr = nil
		}
		s.sendStopError(ctx, srvErr)
	}()

	s.Log(ctx).WithField("address", address).Info("control surface listening")

	select {
	case <-ctx.Done():
		s.Stop(context.WithoutCancel(ctx))
		return ctx.Err()
	case err = <-s.errorChannel:
		if err != nil {
			s.Log(ctx).WithError(err).Error("system exit in error")
		}
		s.Stop(context.WithoutCancel(ctx))
		return err
	}
}

// Stop gracefully releases the service's components.
func (s *Service) Stop(ctx context.Context) {
	if !s.stopMutex.TryLock() {
		return
	}
	defer s.stopMutex.Unlock()

	s.Log(ctx).Info("service stopping")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.Log(ctx).WithError(err).Warn("http server shutdown")
		}
	}

	for _, adapter := range s.registry.Current() {
		if err := adapter.Close(); err != nil {
			s.Log(ctx).WithError(err).WithField("queue", adapter.Name()).
				Warn("releasing adapter")
		}
	}

	if s.st != nil {
		if err := s.st.Close(); err != nil {
			s.Log(ctx).WithError(err).Warn("closing store connection")
		}
	}

	if s.pool != nil {
		s.pool.Shutdown()
	}

	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(ctx); err != nil {
			s.Log(ctx).WithError(err).Warn("shutting down tracer")
		}
	}

	s.errorChannelMutex.Lock()
	defer s.errorChannelMutex.Unlock()
	select {
	case _, ok := <-s.errorChannel:
		if !ok {
			return
		}
	default:
	}
	close(s.errorChannel)
}

func (s *Service) sendStopError(ctx context.Context, err error) {
	s.errorChannelMutex.Lock()
	defer s.errorChannelMutex.Unlock()

	select {
	case <-ctx.Done():
		return
	case <-s.errorChannel:
		// channel is already closed hence avoid
		return
	default:
		s.errorChannel <- err
	}
}
