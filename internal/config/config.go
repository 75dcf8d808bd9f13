// Package config loads pipelinecheck server settings.
//
// Settings are resolved in three layers, later layers winning:
//
//  1. an optional TOML file
//  2. PIPELINECHECK_* environment variables
//  3. command-line flags, applied by the caller after [Load]
//
// A minimal file:
//
//	addr = ":8080"
//	log_level = "info"
//
//	[cors]
//	allowed_origins = ["https://app.example.com"]
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/pipelinecheck/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by [Load].
const EnvPrefix = "PIPELINECHECK_"

// Cache backends.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

// Config holds the server configuration.
type Config struct {
	Addr            string        `toml:"addr"`
	LogLevel        string        `toml:"log_level"`
	LogFormat       string        `toml:"log_format"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	CORS      CORS      `toml:"cors"`
	Limits    Limits    `toml:"limits"`
	RateLimit RateLimit `toml:"rate_limit"`
	Cache     Cache     `toml:"cache"`
	Metrics   Metrics   `toml:"metrics"`
}

// CORS configures cross-origin access to the API.
type CORS struct {
	AllowedOrigins   []string `toml:"allowed_origins"`
	AllowCredentials bool     `toml:"allow_credentials"`
}

// Limits bounds accepted request sizes. Zero disables a limit.
type Limits struct {
	MaxNodes     int   `toml:"max_nodes"`
	MaxEdges     int   `toml:"max_edges"`
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// RateLimit configures per-client request throttling. RPS of zero disables it.
type RateLimit struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// Cache selects and configures the result cache.
type Cache struct {
	Backend   string        `toml:"backend"`
	Dir       string        `toml:"dir"`
	RedisAddr string        `toml:"redis_addr"`
	TTL       time.Duration `toml:"ttl"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 10 * time.Second,
		CORS: CORS{
			AllowedOrigins:   []string{"*"},
			AllowCredentials: true,
		},
		Limits: Limits{
			MaxNodes:     100_000,
			MaxEdges:     500_000,
			MaxBodyBytes: 32 << 20,
		},
		RateLimit: RateLimit{RPS: 20, Burst: 40},
		Cache: Cache{
			Backend: CacheNone,
			TTL:     24 * time.Hour,
		},
		Metrics: Metrics{Enabled: true},
	}
}

// Load returns the defaults overlaid with the TOML file at path (skipped
// when path is empty) and then with the environment. The result is not
// validated; call [Config.Validate] after applying flags.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load config file %q", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q in %s", undecoded[0].String(), path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg from the environment. lookup is os.LookupEnv
// outside of tests.
func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("ADDR", &cfg.Addr)
	e.str("LOG_LEVEL", &cfg.LogLevel)
	e.str("LOG_FORMAT", &cfg.LogFormat)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	e.list("CORS_ALLOWED_ORIGINS", &cfg.CORS.AllowedOrigins)
	e.boolean("CORS_ALLOW_CREDENTIALS", &cfg.CORS.AllowCredentials)

	e.integer("MAX_NODES", &cfg.Limits.MaxNodes)
	e.integer("MAX_EDGES", &cfg.Limits.MaxEdges)
	e.int64("MAX_BODY_BYTES", &cfg.Limits.MaxBodyBytes)

	e.float("RATE_LIMIT_RPS", &cfg.RateLimit.RPS)
	e.integer("RATE_LIMIT_BURST", &cfg.RateLimit.Burst)

	e.str("CACHE_BACKEND", &cfg.Cache.Backend)
	e.str("CACHE_DIR", &cfg.Cache.Dir)
	e.str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	e.duration("CACHE_TTL", &cfg.Cache.TTL)

	e.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)

	return e.err
}

// Validate reports the first invalid setting.
func (cfg *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeInvalidConfig, format, args...)
	}

	if cfg.Addr == "" {
		return invalid("addr must not be empty")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level %q: want debug, info, warn or error", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format %q: want text or json", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout < 0 {
		return invalid("shutdown_timeout must not be negative")
	}
	if cfg.Limits.MaxNodes < 0 || cfg.Limits.MaxEdges < 0 || cfg.Limits.MaxBodyBytes < 0 {
		return invalid("limits must not be negative")
	}
	if cfg.RateLimit.RPS < 0 || cfg.RateLimit.Burst < 0 {
		return invalid("rate_limit values must not be negative")
	}
	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst == 0 {
		return invalid("rate_limit.burst must be positive when rate_limit.rps is set")
	}
	if len(cfg.CORS.AllowedOrigins) > 1 && slices.Contains(cfg.CORS.AllowedOrigins, "*") {
		return invalid("cors.allowed_origins: \"*\" cannot be combined with other origins")
	}
	switch cfg.Cache.Backend {
	case CacheNone, CacheFile:
	case CacheRedis:
		if cfg.Cache.RedisAddr == "" {
			return invalid("cache.redis_addr is required for the redis backend")
		}
	default:
		return invalid("cache.backend %q: want none, file or redis", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL < 0 {
		return invalid("cache.ttl must not be negative")
	}
	return nil
}

// envReader applies PIPELINECHECK_* variables and keeps the first parse error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, value string, err error) {
	e.err = errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s%s=%q", EnvPrefix, key, value)
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) int64(key string, dst *int64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, fmt.Errorf("want a duration like 30s: %w", err))
		return
	}
	*dst = d
}
