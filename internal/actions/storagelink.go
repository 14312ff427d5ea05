package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"deployhook/internal/pipeline"
	"deployhook/internal/security"
	"deployhook/pkg/fileutil"
)

// StorageLinkOptions configures StorageLink. Relative paths resolve against
// AppRoot.
type StorageLinkOptions struct {
	AppRoot       string
	Source        string
	PublicPath    string
	PreferSymlink bool
	FallbackCopy  bool
}

// StorageLink exposes the public storage directory under the web root,
// by symlink when the host allows it and by copy otherwise.
type StorageLink struct {
	opts   StorageLinkOptions
	faults pipeline.FaultReporter
}

// NewStorageLink creates a StorageLink action.
func NewStorageLink(opts StorageLinkOptions, faults pipeline.FaultReporter) *StorageLink {
	return &StorageLink{opts: opts, faults: faults}
}

// Execute implements pipeline.Action.
func (a *StorageLink) Execute(ctx context.Context) pipeline.StepResult {
	source := fileutil.ResolvePath(a.opts.AppRoot, a.opts.Source)
	target := fileutil.ResolvePath(a.opts.AppRoot, a.opts.PublicPath)
	paths := map[string]any{"source": source, "target": target}

	if !fileutil.DirExists(source) {
		return pipeline.Failed(fmt.Sprintf("Storage source directory does not exist: %s", source), nil)
	}

	var symlinkErr error
	if a.opts.PreferSymlink {
		if symlinkErr = linkStorage(source, target); symlinkErr == nil {
			return pipeline.Succeeded("Storage linked using symlink.", map[string]any{
				"mode":   "symlink",
				"source": source,
				"target": target,
			})
		}
	}

	if !a.opts.FallbackCopy {
		var errs []string
		if symlinkErr != nil {
			errs = append(errs, symlinkErr.Error())
		}
		return pipeline.Failed("Symlink creation failed and copy fallback is disabled.", paths, errs...)
	}

	if err := copyStorage(source, target); err != nil {
		if a.faults != nil {
			a.faults.ReportFault(ctx, err, "step", pipeline.StepStorageLink)
		}
		return pipeline.Failed("Storage link action failed.", paths)
	}

	result := pipeline.Succeeded("Storage mirrored by directory copy fallback.", map[string]any{
		"mode":   "copy",
		"source": source,
		"target": target,
	})
	if symlinkErr != nil {
		result.Errors = []string{symlinkErr.Error()}
	}
	return result
}

// linkStorage points target at source, keeping an existing correct link and
// replacing anything else.
func linkStorage(source, target string) error {
	if fileutil.SymlinkPointsTo(target, source) {
		return nil
	}

	if fileutil.PathExists(target) && !fileutil.IsSymlink(target) {
		if err := fileutil.RemovePath(target); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), security.PermPublicDir); err != nil {
		return fmt.Errorf("failed to create public directory: %w", err)
	}

	return fileutil.UpdateSymlinkAtomic(target, source)
}

func copyStorage(source, target string) error {
	if err := fileutil.RemovePath(target); err != nil {
		return err
	}
	if err := os.MkdirAll(target, security.PermPublicDir); err != nil {
		return fmt.Errorf("failed to create storage copy: %w", err)
	}
	if err := fileutil.CopyDir(source, target); err != nil {
		return fmt.Errorf("failed to copy storage directory: %w", err)
	}
	return security.NormalizeTree(target, security.PermPublicDir, security.PermPublicFile)
}
