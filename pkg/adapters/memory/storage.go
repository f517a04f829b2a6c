package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// FlowStorage implements ports.FlowStorage over an in-memory file map.
type FlowStorage struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewFlowStorage creates a storage seeded with the given files (path -> JSON text).
func NewFlowStorage(files map[string]string) *FlowStorage {
	s := &FlowStorage{files: make(map[string][]byte, len(files))}
	for path, content := range files {
		s.files[path] = []byte(content)
	}
	return s
}

// List returns the sorted paths matching the pattern.
func (s *FlowStorage) List(ctx context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		ok, err := doublestar.Match(pattern, path)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Read returns a copy of the file, or nil if absent.
func (s *FlowStorage) Read(ctx context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[path]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data under path.
func (s *FlowStorage) Write(ctx context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = append([]byte(nil), data...)
	return nil
}

// Delete removes the file.
func (s *FlowStorage) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	return nil
}
