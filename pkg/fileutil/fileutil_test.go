package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Tests for search.go

func TestSearchPaths(t *testing.T) {
	tmpDir := t.TempDir()

	file1 := filepath.Join(tmpDir, "file1.txt")
	file2 := filepath.Join(tmpDir, "file2.txt")
	if err := os.WriteFile(file1, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	tests := []struct {
		name    string
		paths   []string
		want    string
		wantErr bool
	}{
		{
			"finds first existing file",
			[]string{file1, file2},
			file1,
			false,
		},
		{
			"returns error when no files exist",
			[]string{file2, filepath.Join(tmpDir, "nonexistent.txt")},
			"",
			true,
		},
		{
			"handles empty path list",
			[]string{},
			"",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SearchPaths(tt.paths)
			if (err != nil) != tt.wantErr {
				t.Errorf("SearchPaths() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SearchPaths() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := SearchPathsOptional([]string{file2}); got != "" {
		t.Errorf("SearchPathsOptional() = %v, want empty string", got)
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	paths := DefaultConfigPaths("deployhook.yaml")

	if len(paths) != 3 {
		t.Errorf("DefaultConfigPaths() returned %d paths, want 3", len(paths))
	}

	for i, path := range paths {
		if !strings.Contains(path, "deployhook.yaml") {
			t.Errorf("DefaultConfigPaths()[%d] = %v, should contain 'deployhook.yaml'", i, path)
		}
	}

	if !strings.HasPrefix(paths[2], "/etc/deployhook") {
		t.Errorf("DefaultConfigPaths()[2] should start with /etc/deployhook, got %v", paths[2])
	}
}

func TestExistenceChecks(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	broken := filepath.Join(tmpDir, "broken")
	if err := os.Symlink(filepath.Join(tmpDir, "missing"), broken); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	if !FileExists(file) || FileExists(tmpDir) {
		t.Error("FileExists() should be true for files only")
	}
	if !DirExists(tmpDir) || DirExists(file) {
		t.Error("DirExists() should be true for directories only")
	}
	if !PathExists(broken) {
		t.Error("PathExists() should report broken symlinks as existing")
	}
	if PathExists(filepath.Join(tmpDir, "nope")) {
		t.Error("PathExists() should be false for missing paths")
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/srv/app", ".env"); got != "/srv/app/.env" {
		t.Errorf("ResolvePath() = %v, want /srv/app/.env", got)
	}
	if got := ResolvePath("/srv/app", "/etc/app.env"); got != "/etc/app.env" {
		t.Errorf("ResolvePath() = %v, want /etc/app.env", got)
	}
}

// Tests for symlink.go

func TestUpdateSymlinkAtomic(t *testing.T) {
	tmpDir := t.TempDir()

	target1 := filepath.Join(tmpDir, "target1")
	target2 := filepath.Join(tmpDir, "target2")
	for _, dir := range []string{target1, target2} {
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatalf("Failed to create target directory: %v", err)
		}
	}

	link := filepath.Join(tmpDir, "storage")

	if err := UpdateSymlinkAtomic(link, target1); err != nil {
		t.Fatalf("UpdateSymlinkAtomic() initial error = %v", err)
	}
	if !SymlinkPointsTo(link, target1) {
		t.Error("link should point to target1")
	}

	if err := UpdateSymlinkAtomic(link, target2); err != nil {
		t.Fatalf("UpdateSymlinkAtomic() update error = %v", err)
	}
	if !SymlinkPointsTo(link, target2) {
		t.Error("link should point to target2 after update")
	}

	if PathExists(link + ".tmp") {
		t.Error("temporary link should not be left behind")
	}
}

func TestIsSymlink(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "file")
	link := filepath.Join(tmpDir, "link")

	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := os.Symlink(file, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	if !IsSymlink(link) {
		t.Error("IsSymlink() = false for a symlink")
	}
	if IsSymlink(file) {
		t.Error("IsSymlink() = true for a regular file")
	}
}

func TestSymlinkPointsTo(t *testing.T) {
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "source")
	other := filepath.Join(tmpDir, "other")
	os.Mkdir(source, 0755)
	os.Mkdir(other, 0755)

	link := filepath.Join(tmpDir, "link")
	if err := os.Symlink(source, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	if !SymlinkPointsTo(link, source) {
		t.Error("SymlinkPointsTo() = false for the linked directory")
	}
	if SymlinkPointsTo(link, other) {
		t.Error("SymlinkPointsTo() = true for a different directory")
	}
	if SymlinkPointsTo(source, source) {
		t.Error("SymlinkPointsTo() = true for a non-symlink")
	}
}

// Tests for copy.go

func TestCopyFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, ".env.server")
	dst := filepath.Join(tmpDir, ".env")

	if err := os.WriteFile(src, []byte("APP_KEY=abc\n"), 0600); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}
	if err := os.WriteFile(dst, []byte("OLD=value-that-is-longer\n"), 0640); err != nil {
		t.Fatalf("Failed to write destination: %v", err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}

	content, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Failed to read destination: %v", err)
	}
	if string(content) != "APP_KEY=abc\n" {
		t.Errorf("destination content = %q, want %q", content, "APP_KEY=abc\n")
	}

	if err := CopyFile(filepath.Join(tmpDir, "missing"), dst); err == nil {
		t.Error("CopyFile() should fail for a missing source")
	}
}

func TestCopyDir(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src")
	dst := filepath.Join(tmpDir, "dst")

	if err := os.MkdirAll(filepath.Join(src, "avatars"), 0755); err != nil {
		t.Fatalf("Failed to create source tree: %v", err)
	}
	os.WriteFile(filepath.Join(src, "asset.txt"), []byte("content"), 0644)
	os.WriteFile(filepath.Join(src, "avatars", "me.png"), []byte("png"), 0600)
	os.Symlink("asset.txt", filepath.Join(src, "alias.txt"))

	if err := CopyDir(src, dst); err != nil {
		t.Fatalf("CopyDir() error = %v", err)
	}

	for _, rel := range []string{"asset.txt", filepath.Join("avatars", "me.png")} {
		if !FileExists(filepath.Join(dst, rel)) {
			t.Errorf("expected %s to be copied", rel)
		}
	}
	if !IsSymlink(filepath.Join(dst, "alias.txt")) {
		t.Error("expected nested symlink to be recreated as a symlink")
	}
}

func TestRemovePath(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "dir")
	os.MkdirAll(filepath.Join(dir, "nested"), 0755)
	os.WriteFile(filepath.Join(dir, "nested", "f"), []byte("x"), 0644)

	link := filepath.Join(tmpDir, "link")
	os.Symlink(dir, link)

	if err := RemovePath(link); err != nil {
		t.Fatalf("RemovePath(link) error = %v", err)
	}
	if PathExists(link) {
		t.Error("symlink should be removed")
	}
	if !DirExists(dir) {
		t.Error("removing a symlink must not remove its target")
	}

	if err := RemovePath(dir); err != nil {
		t.Fatalf("RemovePath(dir) error = %v", err)
	}
	if PathExists(dir) {
		t.Error("directory should be removed")
	}

	if err := RemovePath(filepath.Join(tmpDir, "missing")); err != nil {
		t.Errorf("RemovePath() on missing path error = %v, want nil", err)
	}
}
