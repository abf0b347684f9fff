package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type contextKey string

func (c contextKey) String() string {
	return "qdash/config/" + string(c)
}

const ctxKeyConfiguration = contextKey("configurationKey")

// ToContext adds service configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts service configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

// FromFile fills a config object from a YAML file, then lets environment
// variables override whatever the file set.
func FromFile[T any](path string) (T, error) {
	var cfg T

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file %q: %w", path, err)
	}

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err = env.Parse(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

type ConfigurationDefault struct {
	LogLevel      string `envDefault:"info"                      env:"LOG_LEVEL"       yaml:"log_level"`
	LogTimeFormat string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT" yaml:"log_time_format"`
	LogColored    bool   `envDefault:"true"                      env:"LOG_COLORED"     yaml:"log_colored"`

	ServiceName        string `envDefault:"qdash" env:"SERVICE_NAME"        yaml:"service_name"`
	ServiceEnvironment string `envDefault:""      env:"SERVICE_ENVIRONMENT" yaml:"service_environment"`
	ServiceVersion     string `envDefault:""      env:"SERVICE_VERSION"     yaml:"service_version"`

	HTTPServerPort string `envDefault:":8080" env:"HTTP_PORT" yaml:"http_server_port"`
	BasePath       string `envDefault:""      env:"BASE_PATH" yaml:"base_path"`

	OpenTelemetryDisable bool `envDefault:"true" env:"OPENTELEMETRY_DISABLE" yaml:"opentelemetry_disable"`

	StoreHost     string `envDefault:"localhost" env:"STORE_HOST"     yaml:"store_host"`
	StorePort     int    `envDefault:"6379"      env:"STORE_PORT"     yaml:"store_port"`
	StoreDatabase int    `envDefault:"0"         env:"STORE_DATABASE" yaml:"store_database"`
	StoreUsername string `envDefault:""          env:"STORE_USERNAME" yaml:"store_username"`
	StorePassword string `envDefault:""          env:"STORE_PASSWORD" yaml:"store_password"`
	StoreUseTLS   bool   `envDefault:"false"     env:"STORE_USE_TLS"  yaml:"store_use_tls"`

	QueuePrefix        string `envDefault:"bull"    env:"QUEUE_PREFIX"   yaml:"queue_prefix"`
	QueueEngineVersion string `envDefault:"current" env:"ENGINE_VERSION" yaml:"engine_version"`

	// Worker pool settings
	WorkerPoolCapacity       int    `envDefault:"10" env:"WORKER_POOL_CAPACITY"        yaml:"worker_pool_capacity"`
	WorkerPoolExpiryDuration string `envDefault:"1s" env:"WORKER_POOL_EXPIRY_DURATION" yaml:"worker_pool_expiry_duration"`

	ResetConcurrency int `envDefault:"1" env:"RESET_CONCURRENCY" yaml:"reset_concurrency"`
}

type ConfigurationService interface {
	Name() string
	Environment() string
	Version() string
}

var _ ConfigurationService = new(ConfigurationDefault)

func (c *ConfigurationDefault) Name() string {
	return c.ServiceName
}

func (c *ConfigurationDefault) Environment() string {
	return c.ServiceEnvironment
}

func (c *ConfigurationDefault) Version() string {
	return c.ServiceVersion
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingTimeFormat() string
	LoggingColored() bool
}

var _ ConfigurationLogLevel = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoggingLevel() string {
	return c.LogLevel
}

func (c *ConfigurationDefault) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *ConfigurationDefault) LoggingColored() bool {
	return c.LogColored
}

type ConfigurationPorts interface {
	HTTPPort() string
}

var _ ConfigurationPorts = new(ConfigurationDefault)

func (c *ConfigurationDefault) HTTPPort() string {
	if i, err := strconv.Atoi(c.HTTPServerPort); err == nil && i > 0 {
		return fmt.Sprintf(":%s", strings.TrimSpace(c.HTTPServerPort))
	}

	if strings.HasPrefix(c.HTTPServerPort, ":") || strings.Contains(c.HTTPServerPort, ":") {
		return c.HTTPServerPort
	}

	return ":8080"
}

type ConfigurationControlSurface interface {
	ControlBasePath() string
}

var _ ConfigurationControlSurface = new(ConfigurationDefault)

func (c *ConfigurationDefault) ControlBasePath() string {
	base := strings.TrimSuffix(strings.TrimSpace(c.BasePath), "/")
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return base
}

type ConfigurationTelemetry interface {
	DisableOpenTelemetry() bool
}

var _ ConfigurationTelemetry = new(ConfigurationDefault)

func (c *ConfigurationDefault) DisableOpenTelemetry() bool {
	return c.OpenTelemetryDisable
}

type ConfigurationStore interface {
	StoreAddress() string
	StoreDB() int
	StoreUser() string
	StoreCredential() string
	StoreTLS() bool
}

var _ ConfigurationStore = new(ConfigurationDefault)

func (c *ConfigurationDefault) StoreAddress() string {
	return net.JoinHostPort(c.StoreHost, strconv.Itoa(c.StorePort))
}

func (c *ConfigurationDefault) StoreDB() int {
	return c.StoreDatabase
}

func (c *ConfigurationDefault) StoreUser() string {
	return c.StoreUsername
}

func (c *ConfigurationDefault) StoreCredential() string {
	return c.StorePassword
}

func (c *ConfigurationDefault) StoreTLS() bool {
	return c.StoreUseTLS
}

type ConfigurationEngine interface {
	NamespacePrefix() string
	EngineVersion() string
}

var _ ConfigurationEngine = new(ConfigurationDefault)

func (c *ConfigurationDefault) NamespacePrefix() string {
	return strings.Trim(strings.TrimSpace(c.QueuePrefix), ":")
}

func (c *ConfigurationDefault) EngineVersion() string {
	return c.QueueEngineVersion
}

type ConfigurationWorkerPool interface {
	GetCapacity() int
	GetExpiryDuration() time.Duration
	GetResetConcurrency() int
}

var _ ConfigurationWorkerPool = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetCapacity() int {
	return c.WorkerPoolCapacity
}

func (c *ConfigurationDefault) GetExpiryDuration() time.Duration {
	if c.WorkerPoolExpiryDuration != "" {
		duration, err := time.ParseDuration(c.WorkerPoolExpiryDuration)
		if err == nil {
			return duration
		}
	}

	return time.Second
}

func (c *ConfigurationDefault) GetResetConcurrency() int {
	if c.ResetConcurrency < 1 {
		return 1
	}
	return c.ResetConcurrency
}
