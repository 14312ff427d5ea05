// Package config builds the immutable deployhook configuration from an
// optional YAML file overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"deployhook/internal/actions"
	"deployhook/internal/auth"
	"deployhook/internal/pipeline"
	"deployhook/internal/security"
	"deployhook/pkg/fileutil"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the default search paths.
const FileName = "deployhook.yaml"

// Rate limit store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config is built once at startup and handed to each component.
type Config struct {
	Enabled           bool     `yaml:"enabled"`
	AppEnv            string   `yaml:"app_env"`
	Token             string   `yaml:"token"`
	WebhookSecret     string   `yaml:"webhook_secret"`
	Prefix            string   `yaml:"prefix"`
	AllowedIPs        []string `yaml:"allowed_ips"`
	TrustProxyHeaders bool     `yaml:"trust_proxy_headers"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	AppRoot           string `yaml:"app_root"`
	Command           string `yaml:"command"`
	MaintenanceSecret string `yaml:"maintenance_secret"`

	SyncEnv     SyncEnvConfig     `yaml:"sync_env"`
	StorageLink StorageLinkConfig `yaml:"storage_link"`

	Steps         pipeline.Steps `yaml:"steps"`
	StopOnFailure bool           `yaml:"stop_on_failure"`
	LogChannel    string         `yaml:"log_channel"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// RateLimitConfig configures the sliding-window limiter and its store.
type RateLimitConfig struct {
	Enabled      bool        `yaml:"enabled"`
	MaxAttempts  int         `yaml:"max_attempts"`
	DecaySeconds int         `yaml:"decay_seconds"`
	Store        string      `yaml:"store"`
	SQLitePath   string      `yaml:"sqlite_path"`
	Redis        RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SyncEnvConfig configures the sync-env step.
type SyncEnvConfig struct {
	Source       string   `yaml:"source"`
	Target       string   `yaml:"target"`
	Backup       bool     `yaml:"backup"`
	RequiredKeys []string `yaml:"required_keys"`
}

// StorageLinkConfig configures the storage-link step.
type StorageLinkConfig struct {
	Source        string `yaml:"source"`
	PublicPath    string `yaml:"public_path"`
	PreferSymlink bool   `yaml:"prefer_symlink"`
	FallbackCopy  bool   `yaml:"fallback_copy"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Enabled: false,
		AppEnv:  "production",
		Prefix:  "deploy",
		RateLimit: RateLimitConfig{
			MaxAttempts:  auth.DefaultMaxAttempts,
			DecaySeconds: auth.DefaultDecaySeconds,
			Store:        StoreMemory,
			SQLitePath:   "./deployhook-ratelimit.db",
			Redis:        RedisConfig{Addr: "127.0.0.1:6379"},
		},
		AppRoot: ".",
		Command: "php artisan",
		SyncEnv: SyncEnvConfig{
			Source:       ".env.server",
			Target:       ".env",
			Backup:       true,
			RequiredKeys: []string{"APP_KEY"},
		},
		StorageLink: StorageLinkConfig{
			Source:        "storage/app/public",
			PublicPath:    "public/storage",
			PreferSymlink: true,
			FallbackCopy:  true,
		},
		StopOnFailure: true,
		LogChannel:    "deploy",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables read through lookup.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := envReader{lookup: lookup}
	if err := env.apply(&cfg); err != nil {
		return nil, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FindFile returns the explicit path when given, otherwise the first
// existing file among the default search paths, or "" if none exists.
func FindFile(explicit string) (string, error) {
	if explicit != "" {
		if !fileutil.FileExists(explicit) {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	return fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths(FileName)), nil
}

func (c *Config) normalize() {
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), "/")
	if c.Prefix == "" {
		c.Prefix = "deploy"
	}

	c.AllowedIPs = auth.ParseAllowedIPs(strings.Join(c.AllowedIPs, ","))

	c.RateLimit.MaxAttempts = max(1, c.RateLimit.MaxAttempts)
	c.RateLimit.DecaySeconds = max(1, c.RateLimit.DecaySeconds)
	c.RateLimit.Store = strings.ToLower(strings.TrimSpace(c.RateLimit.Store))
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = StoreMemory
	}

	if c.AppRoot == "" {
		c.AppRoot = "."
	}
	if strings.TrimSpace(c.LogChannel) == "" {
		c.LogChannel = "deploy"
	}

	keys := c.SyncEnv.RequiredKeys[:0:0]
	for _, k := range c.SyncEnv.RequiredKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.SyncEnv.RequiredKeys = keys
}

// Validate reports configuration errors that prevent startup.
func (c *Config) Validate() error {
	var errs []string

	switch c.RateLimit.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		errs = append(errs, fmt.Sprintf("  - rate_limit.store must be one of memory, sqlite, redis; got '%s'", c.RateLimit.Store))
	}

	if c.RateLimit.Store == StoreSQLite && c.RateLimit.SQLitePath == "" {
		errs = append(errs, "  - rate_limit.sqlite_path is required for the sqlite store")
	}
	if c.RateLimit.Store == StoreRedis && c.RateLimit.Redis.Addr == "" {
		errs = append(errs, "  - rate_limit.redis.addr is required for the redis store")
	}

	if strings.ContainsAny(c.Prefix, " ?#") {
		errs = append(errs, fmt.Sprintf("  - prefix contains invalid characters: '%s'", c.Prefix))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

// Warnings lists non-fatal problems worth logging at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if !c.Enabled {
		return warnings
	}

	if c.Token == "" && c.WebhookSecret == "" {
		warnings = append(warnings, "deploy is enabled but neither a token nor a webhook secret is configured; every request will be rejected")
	}
	if c.Token != "" {
		if err := security.ValidateToken(c.Token); err != nil {
			warnings = append(warnings, fmt.Sprintf("weak deploy token: %v", err))
		}
	}
	if c.WebhookSecret != "" {
		if err := security.ValidateToken(c.WebhookSecret); err != nil {
			warnings = append(warnings, fmt.Sprintf("weak webhook secret: %v", err))
		}
	}
	if c.RateLimit.Enabled && c.RateLimit.Store == StoreMemory {
		warnings = append(warnings, "rate limiting uses the memory store; limits are per process")
	}
	return warnings
}

// GateOptions returns the auth gate's view of the configuration.
func (c *Config) GateOptions() auth.Options {
	return auth.Options{
		Enabled:       c.Enabled,
		Token:         c.Token,
		WebhookSecret: c.WebhookSecret,
		AllowedIPs:    c.AllowedIPs,
		RateLimit: auth.RateLimitOptions{
			Enabled:      c.RateLimit.Enabled,
			MaxAttempts:  c.RateLimit.MaxAttempts,
			DecaySeconds: c.RateLimit.DecaySeconds,
		},
	}
}

// SyncEnvOptions returns the sync-env action options.
func (c *Config) SyncEnvOptions() actions.SyncEnvOptions {
	return actions.SyncEnvOptions{
		AppRoot:      c.AppRoot,
		Source:       c.SyncEnv.Source,
		Target:       c.SyncEnv.Target,
		Backup:       c.SyncEnv.Backup,
		RequiredKeys: c.SyncEnv.RequiredKeys,
	}
}

// StorageLinkOptions returns the storage-link action options.
func (c *Config) StorageLinkOptions() actions.StorageLinkOptions {
	return actions.StorageLinkOptions{
		AppRoot:       c.AppRoot,
		Source:        c.StorageLink.Source,
		PublicPath:    c.StorageLink.PublicPath,
		PreferSymlink: c.StorageLink.PreferSymlink,
		FallbackCopy:  c.StorageLink.FallbackCopy,
	}
}

// PipelineSteps returns the configured steps, or the default sequence.
func (c *Config) PipelineSteps() []pipeline.Step {
	if len(c.Steps) == 0 {
		return pipeline.NamedSteps(pipeline.DefaultSteps)
	}
	return c.Steps
}

// Secrets returns the values that must never appear in command output.
func (c *Config) Secrets() []string {
	var secrets []string
	for _, s := range []string{c.Token, c.WebhookSecret, c.MaintenanceSecret, c.RateLimit.Redis.Password} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

// envReader overlays environment variables, coercing the literal values
// true, false, null and empty (optionally in parentheses).
type envReader struct {
	lookup func(string) (string, bool)
	errs   []string
}

// raw returns the coerced string value. null and empty become "".
func (e *envReader) raw(key string) (string, bool) {
	value, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "null", "(null)", "empty", "(empty)":
		return "", true
	case "true", "(true)":
		return "true", true
	case "false", "(false)":
		return "false", true
	}
	return value, true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.raw(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	if strings.TrimSpace(v) == "" {
		*dst = false
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("  - %s must be a boolean, got '%s'", key, v))
		return
	}
	*dst = b
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.raw(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("  - %s must be an integer, got '%s'", key, v))
		return
	}
	*dst = n
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.raw(key); ok {
		*dst = splitList(v)
	}
}

func (e *envReader) apply(c *Config) error {
	e.boolean("DEPLOY_ENABLED", &c.Enabled)
	e.str("APP_ENV", &c.AppEnv)
	e.str("DEPLOY_TOKEN", &c.Token)
	e.str("DEPLOY_WEBHOOK_SECRET", &c.WebhookSecret)
	e.str("DEPLOY_PREFIX", &c.Prefix)
	e.list("DEPLOY_ALLOWED_IPS", &c.AllowedIPs)
	e.boolean("DEPLOY_TRUST_PROXY_HEADERS", &c.TrustProxyHeaders)

	e.boolean("DEPLOY_RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	e.integer("DEPLOY_RATE_LIMIT_MAX_ATTEMPTS", &c.RateLimit.MaxAttempts)
	e.integer("DEPLOY_RATE_LIMIT_DECAY_SECONDS", &c.RateLimit.DecaySeconds)
	e.str("DEPLOY_RATE_LIMIT_STORE", &c.RateLimit.Store)
	e.str("DEPLOY_RATE_LIMIT_SQLITE_PATH", &c.RateLimit.SQLitePath)
	e.str("DEPLOY_RATE_LIMIT_REDIS_ADDR", &c.RateLimit.Redis.Addr)
	e.str("DEPLOY_RATE_LIMIT_REDIS_PASSWORD", &c.RateLimit.Redis.Password)
	e.integer("DEPLOY_RATE_LIMIT_REDIS_DB", &c.RateLimit.Redis.DB)

	e.str("DEPLOY_APP_ROOT", &c.AppRoot)
	e.str("DEPLOY_COMMAND", &c.Command)
	e.str("APP_MAINTENANCE_SECRET", &c.MaintenanceSecret)

	e.str("SYNC_ENV_SOURCE", &c.SyncEnv.Source)
	e.str("SYNC_ENV_TARGET", &c.SyncEnv.Target)
	e.boolean("SYNC_ENV_BACKUP", &c.SyncEnv.Backup)
	e.list("SYNC_ENV_REQUIRED_KEYS", &c.SyncEnv.RequiredKeys)

	e.str("STORAGE_LINK_SOURCE", &c.StorageLink.Source)
	e.str("STORAGE_LINK_PUBLIC_PATH", &c.StorageLink.PublicPath)
	e.boolean("STORAGE_LINK_PREFER_SYMLINK", &c.StorageLink.PreferSymlink)
	e.boolean("STORAGE_LINK_FALLBACK_COPY", &c.StorageLink.FallbackCopy)

	if v, ok := e.raw("DEPLOY_STEPS"); ok {
		c.Steps = pipeline.NamedSteps(splitList(v))
	}
	e.boolean("DEPLOY_STOP_ON_FAILURE", &c.StopOnFailure)
	e.str("DEPLOY_LOG_CHANNEL", &c.LogChannel)
	e.boolean("DEPLOY_METRICS_ENABLED", &c.MetricsEnabled)

	if len(e.errs) > 0 {
		return fmt.Errorf("invalid environment:\n%s", strings.Join(e.errs, "\n"))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
