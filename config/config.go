package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
)

type contextKey string

func (c contextKey) String() string {
	return "appcore/config/" + string(c)
}

const ctxKeyConfiguration = contextKey("configurationKey")

// ToContext adds the application configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts the application configuration from the supplied context if any exist.
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

type Configuration struct {
	LogLevel string `envDefault:"info" env:"LOG_LEVEL" yaml:"log_level"`

	APIBaseURL string        `envDefault:"http://localhost:5000/api/v1" env:"API_BASE_URL" yaml:"api_base_url"`
	APITimeout time.Duration `envDefault:"30s"                          env:"API_TIMEOUT"  yaml:"api_timeout"`

	TraceRequests bool `envDefault:"false" env:"TRACE_REQUESTS" yaml:"trace_requests"`

	DefaultLanguage string `envDefault:"en" env:"DEFAULT_LANGUAGE" yaml:"default_language"`
	TranslationsDir string `envDefault:""   env:"TRANSLATIONS_DIR" yaml:"translations_dir"`

	// StoragePath points at the device file backing the key value store.
	// When empty state is held in memory only.
	StoragePath string `envDefault:"" env:"STORAGE_PATH" yaml:"storage_path"`

	WorkerPoolCapacity       int           `envDefault:"16" env:"WORKER_POOL_CAPACITY"        yaml:"worker_pool_capacity"`
	WorkerPoolExpiryDuration time.Duration `envDefault:"1s" env:"WORKER_POOL_EXPIRY_DURATION" yaml:"worker_pool_expiry_duration"`
}

// ConfigurationAPI narrows configuration to what the transport layer needs.
type ConfigurationAPI interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
	TraceAPIRequests() bool
}

func (c *Configuration) GetAPIBaseURL() string {
	return c.APIBaseURL
}

func (c *Configuration) GetAPITimeout() time.Duration {
	return c.APITimeout
}

func (c *Configuration) TraceAPIRequests() bool {
	return c.TraceRequests
}

// ConfigurationLocalization narrows configuration to localization concerns.
type ConfigurationLocalization interface {
	GetDefaultLanguage() string
	GetTranslationsDir() string
}

func (c *Configuration) GetDefaultLanguage() string {
	return c.DefaultLanguage
}

func (c *Configuration) GetTranslationsDir() string {
	return c.TranslationsDir
}

// ConfigurationLogLevel narrows configuration to logging concerns.
type ConfigurationLogLevel interface {
	LoggingLevel() string
}

func (c *Configuration) LoggingLevel() string {
	return c.LogLevel
}

// ConfigurationStorage narrows configuration to persistence concerns.
type ConfigurationStorage interface {
	GetStoragePath() string
}

func (c *Configuration) GetStoragePath() string {
	return c.StoragePath
}

// ConfigurationWorkerPool narrows configuration to worker pool sizing.
type ConfigurationWorkerPool interface {
	GetCapacity() int
	GetExpiryDuration() time.Duration
}

func (c *Configuration) GetCapacity() int {
	return c.WorkerPoolCapacity
}

func (c *Configuration) GetExpiryDuration() time.Duration {
	return c.WorkerPoolExpiryDuration
}
