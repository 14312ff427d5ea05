package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"deployhook/internal/server"
	"deployhook/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	logFile string
	host    string
	port    int
	tracing bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deploy webhook server",
	Long: `Start the HTTP server that exposes the deploy routes under the configured
prefix. Every request passes the auth gate (feature flag, IP allowlist, rate
limit, credentials) before any step runs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("DEPLOYHOOK_LOG_FILE", "./deployhook.log"), "Path to log file (the deploy log channel is written next to it)")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("DEPLOYHOOK_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("DEPLOYHOOK_PORT", 8080), "Port to listen on")
	serveCmd.Flags().BoolVar(&tracing, "trace", os.Getenv("DEPLOYHOOK_TRACE") == "1", "Export OpenTelemetry spans to stderr")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	logger, logFileHandle, err := setupLogging(logFile, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting deployhook", "version", version)

	cfg, path, err := loadConfig(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if path != "" {
		logger.Info("Loaded configuration file", "config", path)
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}
	if !cfg.Enabled {
		logger.Warn("Deploy routes are disabled; every request will receive 404")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tracing {
		shutdown, err := telemetry.InitTracer(os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer shutdown(context.Background())
	}

	a, err := buildApp(ctx, cfg, logger, filepath.Dir(logFile))
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}
	defer a.Close()

	logger.Info("Rate limiting", "enabled", cfg.RateLimit.Enabled, "store", cfg.RateLimit.Store)

	srv := server.NewServer(a.gate, a.orchestrator, a.metrics, server.Options{
		Prefix:            cfg.Prefix,
		AppEnv:            cfg.AppEnv,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Steps:             cfg.PipelineSteps(),
		Tracing:           tracing,
	}, logger)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if err := srv.Start(ctx, addr); err != nil {
		logger.Error("Server failed", "error", err)
		return err
	}

	logger.Info("Server stopped")
	return nil
}
