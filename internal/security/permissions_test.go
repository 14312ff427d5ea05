package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPermissionConstants(t *testing.T) {
	tests := []struct {
		name     string
		perm     os.FileMode
		expected os.FileMode
	}{
		{"PermLogFile", PermLogFile, 0640},
		{"PermDBFile", PermDBFile, 0640},
		{"PermEnvFile", PermEnvFile, 0640},
		{"PermPublicDir", PermPublicDir, 0755},
		{"PermPublicFile", PermPublicFile, 0644},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.perm != tt.expected {
				t.Errorf("%s = %04o, want %04o", tt.name, tt.perm, tt.expected)
			}
		})
	}
}

func TestOpenSecureAppend(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "logs", "deploy.log")

	file, err := OpenSecureAppend(path, PermLogFile)
	if err != nil {
		t.Fatalf("OpenSecureAppend() error = %v", err)
	}
	file.WriteString("first\n")
	file.Close()

	file, err = OpenSecureAppend(path, PermLogFile)
	if err != nil {
		t.Fatalf("OpenSecureAppend() reopen error = %v", err)
	}
	file.WriteString("second\n")
	file.Close()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if string(content) != "first\nsecond\n" {
		t.Errorf("content = %q, want appended lines", content)
	}
}

func TestNormalizeTree(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatalf("Failed to create dirs: %v", err)
	}
	file := filepath.Join(nested, "asset.txt")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	if err := NormalizeTree(tmpDir, PermPublicDir, PermPublicFile); err != nil {
		t.Fatalf("NormalizeTree() error = %v", err)
	}

	info, _ := os.Stat(nested)
	if info.Mode().Perm() != PermPublicDir {
		t.Errorf("dir perm = %04o, want %04o", info.Mode().Perm(), PermPublicDir)
	}
	info, _ = os.Stat(file)
	if info.Mode().Perm() != PermPublicFile {
		t.Errorf("file perm = %04o, want %04o", info.Mode().Perm(), PermPublicFile)
	}

	if err := NormalizeTree(filepath.Join(tmpDir, "missing"), PermPublicDir, PermPublicFile); err == nil {
		t.Error("NormalizeTree() should fail for a missing root")
	}
}
