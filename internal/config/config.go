// Package config resolves the settings of a verification service from
// profile defaults, an optional json5 file, an optional .env file and the
// process environment, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"ppbverify/lib/configutil"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
)

const Version = "1.0.0"

// Profiles selected with ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// DefaultPorts per record kind.
var DefaultPorts = map[string]int{
	"facility":   5000,
	"pharmtech":  5001,
	"pharmacist": 5002,
}

type Config struct {
	Env string `json:"env"`

	BaseURL string `json:"ppb_base_url"`
	// RequestTimeout, RetryBackoff and RateLimitDelay are in seconds.
	RequestTimeout float64 `json:"request_timeout"`
	MaxRetries     int     `json:"max_retries"`
	RetryBackoff   float64 `json:"retry_backoff"`
	RateLimitDelay float64 `json:"rate_limit_delay"`

	CacheEnabled *bool  `json:"cache_enabled"`
	CacheBackend string `json:"cache_backend"`
	// CacheTTL is in seconds.
	CacheTTL         int    `json:"cache_ttl"`
	CacheMaxSize     int    `json:"cache_max_size"`
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
	RedisURL         string `json:"redis_url"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	Host             string `json:"host"`
	Port             int    `json:"port"`
	MaxContentLength int64  `json:"max_content_length"`

	// TelemetryConfig is the path of a telemetry.json5 file, empty disables export.
	TelemetryConfig string `json:"telemetry_config"`
	// CaptureDir receives raw portal exchanges when set.
	CaptureDir string `json:"capture_dir"`
}

func boolPtr(b bool) *bool {
	return &b
}

func base(kind string) Config {
	port, ok := DefaultPorts[kind]
	if !ok {
		port = DefaultPorts["facility"]
	}
	return Config{
		Env:              EnvDevelopment,
		BaseURL:          "https://practice.pharmacyboardkenya.org",
		RequestTimeout:   15,
		MaxRetries:       2,
		RetryBackoff:     0.3,
		RateLimitDelay:   1.5,
		CacheEnabled:     boolPtr(true),
		CacheBackend:     "simple",
		CacheTTL:         3600,
		CacheMaxSize:     1000,
		CacheCleanupSpec: "@every 5m",
		RedisURL:         "redis://localhost:6379/1",
		LogLevel:         "INFO",
		LogFormat:        "json",
		Host:             "0.0.0.0",
		Port:             port,
		MaxContentLength: 1 << 20,
	}
}

// Defaults returns the defaults of a profile, unknown profiles fall back to
// development.
func Defaults(env, kind string) Config {
	cfg := base(kind)
	switch env {
	case EnvProduction:
		cfg.Env = EnvProduction
		cfg.CacheTTL = 7200
		cfg.LogLevel = "INFO"
		cfg.LogFormat = "json"
	case EnvTesting:
		cfg.Env = EnvTesting
		cfg.CacheEnabled = boolPtr(false)
		cfg.RateLimitDelay = 0
		cfg.LogLevel = "WARNING"
	default:
		cfg.Env = EnvDevelopment
		cfg.CacheTTL = 300
		cfg.LogLevel = "DEBUG"
		cfg.LogFormat = "text"
	}
	return cfg
}

type LoadOptions struct {
	// Kind picks the default port.
	Kind string
	// File is a json5 config, merged with its .local sibling.
	File string
	// EnvFile is a dotenv file, variables already set in the environment win.
	EnvFile string
	// Lookup reads the environment, os.LookupEnv if nil.
	Lookup func(key string) (string, bool)
}

func Load(opts LoadOptions) (Config, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", opts.EnvFile, err)
		}
		lookup = withFallback(lookup, dotenv)
	}

	env, _ := lookup("ENV")
	cfg := Defaults(strings.ToLower(strings.TrimSpace(env)), opts.Kind)

	if opts.File != "" {
		fileCfg, err := configutil.ReadConfig[Config](opts.File)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", opts.File, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("merge %s: %w", opts.File, err)
		}
		// mergo dereferences pointers and skips a false source value.
		if fileCfg.CacheEnabled != nil {
			cfg.CacheEnabled = boolPtr(*fileCfg.CacheEnabled)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func withFallback(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if value, ok := primary(key); ok {
			return value, true
		}
		value, ok := fallback[key]
		return value, ok
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if value, ok := lookup(key); ok && value != "" {
			*dst = value
		}
	}
	float := func(key string, dst *float64) {
		if value, ok := lookup(key); ok && value != "" {
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	integer := func(key string, dst *int) {
		if value, ok := lookup(key); ok && value != "" {
			parsed, err := strconv.Atoi(value)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}

	str("PPB_BASE_URL", &cfg.BaseURL)
	float("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	integer("MAX_RETRIES", &cfg.MaxRetries)
	float("RETRY_BACKOFF", &cfg.RetryBackoff)
	float("RATE_LIMIT_DELAY", &cfg.RateLimitDelay)
	if value, ok := lookup("CACHE_ENABLED"); ok && value != "" {
		cfg.CacheEnabled = boolPtr(strings.EqualFold(value, "true"))
	}
	str("CACHE_BACKEND", &cfg.CacheBackend)
	integer("CACHE_TTL", &cfg.CacheTTL)
	integer("CACHE_MAX_SIZE", &cfg.CacheMaxSize)
	str("CACHE_CLEANUP_SPEC", &cfg.CacheCleanupSpec)
	str("REDIS_URL", &cfg.RedisURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("HOST", &cfg.Host)
	integer("PORT", &cfg.Port)
	if value, ok := lookup("MAX_CONTENT_LENGTH"); ok && value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_CONTENT_LENGTH: %w", err))
		} else {
			cfg.MaxContentLength = parsed
		}
	}
	str("TELEMETRY_CONFIG", &cfg.TelemetryConfig)
	str("CAPTURE_DIR", &cfg.CaptureDir)

	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	switch c.CacheBackend {
	case "simple", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache_backend: unknown backend %q", c.CacheBackend))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("ppb_base_url: must be set"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout: must not be negative"))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, errors.New("retry_backoff: must not be negative"))
	}
	if c.RateLimitDelay < 0 {
		errs = append(errs, errors.New("rate_limit_delay: must not be negative"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries: must not be negative"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("cache_ttl: must not be negative"))
	}
	if c.CacheMaxSize < 0 {
		errs = append(errs, errors.New("cache_max_size: must not be negative"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: %d out of range", c.Port))
	}
	if c.MaxContentLength <= 0 {
		errs = append(errs, errors.New("max_content_length: must be positive"))
	}
	return errors.Join(errs...)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c Config) Timeout() time.Duration {
	return seconds(c.RequestTimeout)
}

func (c Config) Backoff() time.Duration {
	return seconds(c.RetryBackoff)
}

func (c Config) Delay() time.Duration {
	return seconds(c.RateLimitDelay)
}

func (c Config) TTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

func (c Config) CacheOn() bool {
	return c.CacheEnabled != nil && *c.CacheEnabled
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
