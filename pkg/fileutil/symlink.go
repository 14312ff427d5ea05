package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// UpdateSymlinkAtomic atomically updates a symlink to point to a new target.
// This uses the "create temp, then rename" pattern so the link is never
// observed missing or half-written.
//
// The rename only succeeds over an existing symlink or file, not over a
// non-empty directory; callers must clear real directories first.
func UpdateSymlinkAtomic(linkPath, targetPath string) error {
	tmpLink := linkPath + ".tmp"

	// Remove temp link if it exists from a previous failed attempt
	_ = os.Remove(tmpLink)

	if err := os.Symlink(targetPath, tmpLink); err != nil {
		return fmt.Errorf("failed to create temporary symlink: %w", err)
	}

	if err := os.Rename(tmpLink, linkPath); err != nil {
		_ = os.Remove(tmpLink)
		return fmt.Errorf("failed to rename symlink atomically: %w", err)
	}

	return nil
}

// IsSymlink checks if a path is a symlink.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

// ResolveSymlink resolves a symlink to its final target.
// If the path is not a symlink, returns the path itself (cleaned).
func ResolveSymlink(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlink: %w", err)
	}
	return resolved, nil
}

// SymlinkPointsTo reports whether linkPath is a symlink whose resolved
// destination is the same directory as target.
func SymlinkPointsTo(linkPath, target string) bool {
	if !IsSymlink(linkPath) {
		return false
	}

	linked, err := ResolveSymlink(linkPath)
	if err != nil {
		return false
	}

	wanted, err := ResolveSymlink(target)
	if err != nil {
		return false
	}

	return linked == wanted
}
