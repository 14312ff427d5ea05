package security

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// PermLogFile is for log files that may contain deployment output.
	// rw-r----- (0640): owner can read/write, group can read, others have no access.
	PermLogFile os.FileMode = 0640

	// PermDBFile is for the shared rate-limit database.
	PermDBFile os.FileMode = 0640

	// PermEnvFile is for .env files written by the init command.
	PermEnvFile os.FileMode = 0640

	// PermPublicDir is for directories served by the web server.
	// rwxr-xr-x (0755)
	PermPublicDir os.FileMode = 0755

	// PermPublicFile is for files served by the web server.
	// rw-r--r-- (0644)
	PermPublicFile os.FileMode = 0644
)

// OpenSecureAppend opens (creating if needed) a file for appending with the
// given permissions, creating the parent directory as well.
func OpenSecureAppend(path string, perm os.FileMode) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// NormalizeTree walks root and applies dirPerm to every directory and
// filePerm to every regular file. Symlinks are left alone. All chmod failures
// are attempted and the first one is returned.
func NormalizeTree(root string, dirPerm, filePerm os.FileMode) error {
	var firstErr error

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		var perm os.FileMode
		switch {
		case d.IsDir():
			perm = dirPerm
		case d.Type().IsRegular():
			perm = filePerm
		default:
			return nil
		}

		if err := os.Chmod(path, perm); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to chmod %s: %w", path, err)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("failed to walk %s: %w", root, walkErr)
	}

	return firstErr
}
