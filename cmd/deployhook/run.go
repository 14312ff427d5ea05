package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"deployhook/internal/pipeline"
	"deployhook/internal/server"

	"github.com/spf13/cobra"
)

var runLogFile string

var runCmd = &cobra.Command{
	Use:   "run [step...]",
	Short: "Run the deploy pipeline once without HTTP",
	Long: `Run the deploy pipeline in the foreground and print the JSON envelope the
HTTP endpoint would return. Without arguments the configured steps run;
otherwise the given step names run in order. Exits non-zero on failure.`,
	Example: `  deployhook run
  deployhook run optimize-clear migrate cache
  deployhook run external-command:db:seed`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runLogFile, "log", getEnvOrDefault("DEPLOYHOOK_LOG_FILE", "./deployhook.log"), "Path to log file (the deploy log channel is written next to it)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	logger, logFileHandle, err := setupLogging(runLogFile, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	cfg, _, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger, filepath.Dir(runLogFile))
	if err != nil {
		return err
	}
	defer a.Close()

	steps := cfg.PipelineSteps()
	if len(args) > 0 {
		steps = pipeline.NamedSteps(args)
	}

	run := a.orchestrator.Run(ctx, steps, "cli")
	_, envelope := server.FromRun(run)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if !run.Success {
		return errors.New(server.MessagePipelineFailed)
	}
	return nil
}
