// Package envfile edits dotenv files in place, preserving comments and
// ordering.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Upsert sets key to value in the dotenv file at path, replacing an existing
// assignment or appending a new one. The file is created when missing.
func Upsert(path, key, value string, perm os.FileMode) error {
	line, err := formatLine(key, value)
	if err != nil {
		return err
	}

	content, err := readOptional(path)
	if err != nil {
		return err
	}

	lines := splitLines(content)
	replaced := false
	for i, l := range lines {
		if assigns(l, key) {
			lines[i] = line
			replaced = true
		}
	}
	if !replaced {
		lines = append(lines, line)
	}

	return write(path, lines, perm)
}

// AppendMissing appends every KEY=value line whose key is not assigned in
// the file yet. It returns the keys that were added.
func AppendMissing(path string, entries []string, perm os.FileMode) ([]string, error) {
	content, err := readOptional(path)
	if err != nil {
		return nil, err
	}

	lines := splitLines(content)
	var added []string
	for _, entry := range entries {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		key = strings.TrimSpace(key)
		if hasKey(lines, key) {
			continue
		}
		lines = append(lines, entry)
		added = append(added, key)
	}

	if len(added) == 0 {
		return nil, nil
	}
	return added, write(path, lines, perm)
}

// Read parses the dotenv file at path.
func Read(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
	}
	return values, nil
}

// formatLine renders one assignment with the value quoted and escaped the
// way godotenv reads it back.
func formatLine(key, value string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "= \t\n") {
		return "", fmt.Errorf("invalid env key: %q", key)
	}
	line, err := godotenv.Marshal(map[string]string{key: value})
	if err != nil {
		return "", fmt.Errorf("failed to format env value: %w", err)
	}
	return line, nil
}

func assigns(line, key string) bool {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "export ")
	name, _, ok := strings.Cut(line, "=")
	return ok && strings.TrimSpace(name) == key
}

func hasKey(lines []string, key string) bool {
	for _, l := range lines {
		if assigns(l, key) {
			return true
		}
	}
	return false
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func splitLines(content string) []string {
	content = strings.TrimRight(content, "\r\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

func write(path string, lines []string, perm os.FileMode) error {
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
