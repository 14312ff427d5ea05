// Package actions implements the file-system deploy steps: environment file
// sync and public storage linking.
package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deployhook/internal/pipeline"
	"deployhook/pkg/fileutil"

	"github.com/joho/godotenv"
)

// BackupTimeFormat is appended to the target name of env backups.
const BackupTimeFormat = "20060102150405"

// SyncEnvOptions configures SyncEnv. Relative paths resolve against AppRoot.
type SyncEnvOptions struct {
	AppRoot      string
	Source       string
	Target       string
	Backup       bool
	RequiredKeys []string
}

// SyncEnv copies the server-side env file over the application env file.
type SyncEnv struct {
	opts   SyncEnvOptions
	faults pipeline.FaultReporter
	now    func() time.Time
}

// NewSyncEnv creates a SyncEnv action.
func NewSyncEnv(opts SyncEnvOptions, faults pipeline.FaultReporter) *SyncEnv {
	return &SyncEnv{opts: opts, faults: faults, now: time.Now}
}

// Execute implements pipeline.Action.
func (a *SyncEnv) Execute(ctx context.Context) pipeline.StepResult {
	source := fileutil.ResolvePath(a.opts.AppRoot, a.opts.Source)
	target := fileutil.ResolvePath(a.opts.AppRoot, a.opts.Target)

	if !fileutil.FileExists(source) {
		return pipeline.Failed(fmt.Sprintf("Source env file not found: %s", source), nil)
	}

	targetDir := filepath.Dir(target)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return a.fault(ctx, err, source, target)
	}

	targetExists := fileutil.FileExists(target)
	if targetExists && !fileWritable(target) {
		return pipeline.Failed(fmt.Sprintf("Target env file is not writable: %s", target), nil)
	}
	if !targetExists && !dirWritable(targetDir) {
		return pipeline.Failed(fmt.Sprintf("Target directory is not writable: %s", targetDir), nil)
	}

	var backup any
	if a.opts.Backup && targetExists {
		backupPath := target + ".backup." + a.now().Format(BackupTimeFormat)
		if err := fileutil.CopyFile(target, backupPath); err != nil {
			return a.fault(ctx, err, source, target)
		}
		backup = backupPath
	}

	if err := fileutil.CopyFile(source, target); err != nil {
		return a.fault(ctx, err, source, target)
	}

	missing, err := missingKeys(target, a.opts.RequiredKeys)
	if err != nil {
		return a.fault(ctx, err, source, target)
	}
	if len(missing) > 0 {
		return pipeline.Failed("Required env keys are missing after sync.",
			map[string]any{
				"source":       source,
				"target":       target,
				"backup":       backup,
				"missing_keys": missing,
			},
			"Missing keys: "+strings.Join(missing, ", "))
	}

	return pipeline.Succeeded("Environment file synchronized.", map[string]any{
		"source": source,
		"target": target,
		"backup": backup,
	})
}

func (a *SyncEnv) fault(ctx context.Context, err error, source, target string) pipeline.StepResult {
	if a.faults != nil {
		a.faults.ReportFault(ctx, err, "step", pipeline.StepSyncEnv)
	}
	return pipeline.Failed("Failed to synchronize environment file.", map[string]any{
		"source": source,
		"target": target,
	})
}

// missingKeys returns the required keys not defined in the env file at path.
func missingKeys(path string, required []string) ([]string, error) {
	if len(required) == 0 {
		return nil, nil
	}

	available, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file: %w", err)
	}

	var missing []string
	for _, key := range required {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := available[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing, nil
}

func fileWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func dirWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".deployhook-write-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
