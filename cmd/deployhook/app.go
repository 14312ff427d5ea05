package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"deployhook/internal/actions"
	"deployhook/internal/auth"
	"deployhook/internal/config"
	"deployhook/internal/metrics"
	"deployhook/internal/pipeline"
	"deployhook/internal/runner"
	"deployhook/internal/security"
	"deployhook/pkg/fileutil"

	"github.com/joho/godotenv"
)

// app holds the components shared by serve and run.
type app struct {
	cfg          *config.Config
	gate         *auth.Gate
	store        auth.Store
	orchestrator *pipeline.Orchestrator
	metrics      *metrics.Collector
	channel      *pipeline.ChannelLog
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing default file is ignored.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if !fileutil.FileExists(path) {
		if explicit {
			return fmt.Errorf("env file not found: %s", path)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// loadConfig resolves the config file and builds the configuration from it
// and the environment.
func loadConfig(explicitPath string) (*config.Config, string, error) {
	path, err := config.FindFile(explicitPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path, os.LookupEnv)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// newStore returns the rate-limit store selected by the configuration. When
// rate limiting is off no external store is opened.
func newStore(ctx context.Context, cfg *config.Config) (auth.Store, error) {
	if !cfg.RateLimit.Enabled {
		return auth.NewMemoryStore(), nil
	}

	switch cfg.RateLimit.Store {
	case config.StoreSQLite:
		return auth.NewSQLiteStore(cfg.RateLimit.SQLitePath)
	case config.StoreRedis:
		return auth.NewRedisStore(ctx, auth.RedisConfig{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
	default:
		return auth.NewMemoryStore(), nil
	}
}

// buildApp wires the gate, runner, actions and orchestrator. Step entries
// go to <logDir>/<channel>.log.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, logDir string) (*app, error) {
	faults := pipeline.LogFaultReporter{Logger: logger}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open rate limit store: %w", err)
	}

	r, err := runner.NewExecRunner(runner.Options{
		AppRoot:     cfg.AppRoot,
		BaseCommand: cfg.Command,
		Secrets:     cfg.Secrets(),
		Logger:      logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	channel, err := pipeline.OpenChannelLog(logDir, cfg.LogChannel)
	if err != nil {
		store.Close()
		return nil, err
	}

	executor := pipeline.NewExecutor(r, pipeline.ExecutorOptions{
		MaintenanceSecret: cfg.MaintenanceSecret,
		SyncEnv:           actions.NewSyncEnv(cfg.SyncEnvOptions(), faults),
		StorageLink:       actions.NewStorageLink(cfg.StorageLinkOptions(), faults),
	}, faults)

	observers := pipeline.Observers{pipeline.LogObserver{Logger: logger}}
	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
		observers = append(observers, collector)
	}

	orch := pipeline.NewOrchestrator(executor,
		pipeline.Options{StopOnFailure: cfg.StopOnFailure},
		observers,
		pipeline.NewSlogStepLogger(channel.Handler),
		faults)

	return &app{
		cfg:          cfg,
		gate:         auth.NewGate(cfg.GateOptions(), store),
		store:        store,
		orchestrator: orch,
		metrics:      collector,
		channel:      channel,
	}, nil
}

// Close releases the store and the log channel.
func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.channel.Close())
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string, console io.Writer) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := security.OpenSecureAppend(logPath, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Log to both file and console
	handler := slog.NewJSONHandler(io.MultiWriter(console, file), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}
