package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Storage implements ports.FlowStorage on the local filesystem.
// Paths are slash-separated and relative to BasePath.
type Storage struct {
	BasePath string
}

// New creates a Storage rooted at basePath.
// If basePath is empty, it defaults to "flows".
func New(basePath string) *Storage {
	if basePath == "" {
		basePath = "flows"
	}
	return &Storage{BasePath: basePath}
}

func (s *Storage) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if path == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid flow path %q", path)
	}
	return filepath.Join(s.BasePath, clean), nil
}

// List returns the sorted paths under BasePath matching the pattern.
func (s *Storage) List(ctx context.Context, pattern string) ([]string, error) {
	if _, err := os.Stat(s.BasePath); errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(s.BasePath), pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Read returns the file contents, or nil if the file does not exist.
func (s *Storage) Read(ctx context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	return data, nil
}

// Write replaces the file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Storage) Write(ctx context.Context, path string, data []byte) error {
	destPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure flow directory: %w", err)
	}

	// Same directory as the destination: rename is only atomic within a filesystem.
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing flow file for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to flow file: %w", err)
	}
	return nil
}

// Delete removes the file. Missing files are ignored.
func (s *Storage) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete flow file: %w", err)
	}
	return nil
}
