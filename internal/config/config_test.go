package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"deployhook/internal/pipeline"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", envMap(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Enabled {
		t.Error("Enabled should default to false")
	}
	if cfg.Prefix != "deploy" {
		t.Errorf("Prefix = %q, want deploy", cfg.Prefix)
	}
	if cfg.RateLimit.MaxAttempts != 30 || cfg.RateLimit.DecaySeconds != 60 {
		t.Errorf("rate limit = %d/%d, want 30/60", cfg.RateLimit.MaxAttempts, cfg.RateLimit.DecaySeconds)
	}
	if cfg.RateLimit.Store != StoreMemory {
		t.Errorf("Store = %q, want memory", cfg.RateLimit.Store)
	}
	if !cfg.StopOnFailure {
		t.Error("StopOnFailure should default to true")
	}
	if cfg.Command != "php artisan" {
		t.Errorf("Command = %q", cfg.Command)
	}
	if !reflect.DeepEqual(cfg.SyncEnv.RequiredKeys, []string{"APP_KEY"}) {
		t.Errorf("RequiredKeys = %v", cfg.SyncEnv.RequiredKeys)
	}
	if got := pipeline.DisplayNames(cfg.PipelineSteps()); !reflect.DeepEqual(got, pipeline.DefaultSteps) {
		t.Errorf("PipelineSteps() = %v, want defaults", got)
	}
}

func TestLoad_EnvLiteralCoercion(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(*testing.T, *Config)
	}{
		{
			name: "true literal",
			env:  map[string]string{"DEPLOY_ENABLED": "true"},
			check: func(t *testing.T, c *Config) {
				if !c.Enabled {
					t.Error("Enabled = false")
				}
			},
		},
		{
			name: "parenthesized true",
			env:  map[string]string{"DEPLOY_ENABLED": " (TRUE) "},
			check: func(t *testing.T, c *Config) {
				if !c.Enabled {
					t.Error("Enabled = false")
				}
			},
		},
		{
			name: "parenthesized false overrides default true",
			env:  map[string]string{"DEPLOY_STOP_ON_FAILURE": "(false)"},
			check: func(t *testing.T, c *Config) {
				if c.StopOnFailure {
					t.Error("StopOnFailure = true")
				}
			},
		},
		{
			name: "null clears a string",
			env:  map[string]string{"DEPLOY_TOKEN": "null"},
			check: func(t *testing.T, c *Config) {
				if c.Token != "" {
					t.Errorf("Token = %q", c.Token)
				}
			},
		},
		{
			name: "empty clears a list",
			env:  map[string]string{"SYNC_ENV_REQUIRED_KEYS": "(empty)"},
			check: func(t *testing.T, c *Config) {
				if len(c.SyncEnv.RequiredKeys) != 0 {
					t.Errorf("RequiredKeys = %v", c.SyncEnv.RequiredKeys)
				}
			},
		},
		{
			name: "plain value kept verbatim",
			env:  map[string]string{"DEPLOY_TOKEN": "Secret-Value"},
			check: func(t *testing.T, c *Config) {
				if c.Token != "Secret-Value" {
					t.Errorf("Token = %q", c.Token)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("", envMap(tt.env))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_EnvLists(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		"DEPLOY_ALLOWED_IPS":     " 10.0.0.1 , ,192.168.1.5",
		"DEPLOY_STEPS":           "clear, migrate,,cache",
		"SYNC_ENV_REQUIRED_KEYS": "APP_KEY,DB_HOST",
		"DEPLOY_PREFIX":          "/hooks/deploy/",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.AllowedIPs, []string{"10.0.0.1", "192.168.1.5"}) {
		t.Errorf("AllowedIPs = %v", cfg.AllowedIPs)
	}
	if got := pipeline.DisplayNames(cfg.PipelineSteps()); !reflect.DeepEqual(got, []string{"clear", "migrate", "cache"}) {
		t.Errorf("steps = %v", got)
	}
	if !reflect.DeepEqual(cfg.SyncEnv.RequiredKeys, []string{"APP_KEY", "DB_HOST"}) {
		t.Errorf("RequiredKeys = %v", cfg.SyncEnv.RequiredKeys)
	}
	if cfg.Prefix != "hooks/deploy" {
		t.Errorf("Prefix = %q", cfg.Prefix)
	}
}

func TestLoad_ClampsRateLimit(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		"DEPLOY_RATE_LIMIT_MAX_ATTEMPTS":  "0",
		"DEPLOY_RATE_LIMIT_DECAY_SECONDS": "-5",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimit.MaxAttempts != 1 || cfg.RateLimit.DecaySeconds != 1 {
		t.Errorf("rate limit = %d/%d, want 1/1", cfg.RateLimit.MaxAttempts, cfg.RateLimit.DecaySeconds)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	_, err := Load("", envMap(map[string]string{
		"DEPLOY_ENABLED":                 "maybe",
		"DEPLOY_RATE_LIMIT_MAX_ATTEMPTS": "lots",
	}))
	if err == nil {
		t.Fatal("Load() should fail")
	}
	for _, want := range []string{"DEPLOY_ENABLED", "DEPLOY_RATE_LIMIT_MAX_ATTEMPTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoad_InvalidStore(t *testing.T) {
	_, err := Load("", envMap(map[string]string{"DEPLOY_RATE_LIMIT_STORE": "memcached"}))
	if err == nil || !strings.Contains(err.Error(), "rate_limit.store") {
		t.Fatalf("Load() error = %v, want store validation error", err)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `
enabled: true
prefix: hooks
token: file-token
stop_on_failure: false
rate_limit:
  enabled: true
  store: sqlite
  sqlite_path: /tmp/rl.db
steps:
  - sync-env
  - command: db:seed
    parameters:
      --class: DemoSeeder
  - clear
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, envMap(map[string]string{"DEPLOY_TOKEN": "env-token"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Enabled || cfg.Prefix != "hooks" || cfg.StopOnFailure {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, env should override file", cfg.Token)
	}
	if cfg.RateLimit.Store != StoreSQLite || cfg.RateLimit.MaxAttempts != 30 {
		t.Errorf("rate limit = %+v, want sqlite with default max", cfg.RateLimit)
	}
	// Fields absent from the file keep their defaults.
	if cfg.SyncEnv.Source != ".env.server" {
		t.Errorf("SyncEnv.Source = %q", cfg.SyncEnv.Source)
	}

	want := []string{"sync-env", "db:seed", "clear"}
	if got := pipeline.DisplayNames(cfg.PipelineSteps()); !reflect.DeepEqual(got, want) {
		t.Errorf("steps = %v, want %v", got, want)
	}
	cmd, ok := cfg.Steps[1].(pipeline.Command)
	if !ok || cmd.Parameters["--class"] != "DemoSeeder" {
		t.Errorf("Steps[1] = %#v", cfg.Steps[1])
	}
}

func TestLoad_YAMLErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil)); err == nil {
		t.Error("Load() should fail for a missing file")
	}

	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("steps: clear\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, envMap(nil)); err == nil {
		t.Error("Load() should fail when steps is not a list")
	}
}

func TestFindFile(t *testing.T) {
	if _, err := FindFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("FindFile() should fail for a missing explicit path")
	}

	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("enabled: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := FindFile(path)
	if err != nil || got != path {
		t.Errorf("FindFile() = %q, %v", got, err)
	}
}

func TestWarnings(t *testing.T) {
	cfg := Default()
	if w := cfg.Warnings(); len(w) != 0 {
		t.Errorf("disabled config should not warn: %v", w)
	}

	cfg.Enabled = true
	if w := cfg.Warnings(); len(w) != 1 || !strings.Contains(w[0], "neither a token") {
		t.Errorf("Warnings() = %v", w)
	}

	cfg.Token = "short"
	cfg.RateLimit.Enabled = true
	w := cfg.Warnings()
	if len(w) != 2 {
		t.Fatalf("Warnings() = %v, want weak token and memory store", w)
	}
	if !strings.Contains(w[0], "weak deploy token") {
		t.Errorf("Warnings()[0] = %q", w[0])
	}
}

func TestComponentOptions(t *testing.T) {
	cfg := Default()
	cfg.Enabled = true
	cfg.Token = "tok"
	cfg.WebhookSecret = "hook"
	cfg.MaintenanceSecret = "bypass"
	cfg.AllowedIPs = []string{"10.0.0.1"}
	cfg.AppRoot = "/srv/app"

	gate := cfg.GateOptions()
	if !gate.Enabled || gate.Token != "tok" || gate.WebhookSecret != "hook" || gate.RateLimit.MaxAttempts != 30 {
		t.Errorf("GateOptions() = %+v", gate)
	}

	sync := cfg.SyncEnvOptions()
	if sync.AppRoot != "/srv/app" || sync.Source != ".env.server" || !sync.Backup {
		t.Errorf("SyncEnvOptions() = %+v", sync)
	}

	link := cfg.StorageLinkOptions()
	if link.PublicPath != "public/storage" || !link.FallbackCopy {
		t.Errorf("StorageLinkOptions() = %+v", link)
	}

	if got := cfg.Secrets(); !reflect.DeepEqual(got, []string{"tok", "hook", "bypass"}) {
		t.Errorf("Secrets() = %v", got)
	}
}
