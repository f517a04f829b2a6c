package loam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/bmatcuk/doublestar/v4"
)

// Document is the shape flows take inside Loam: the JSON object's keys are the metadata.
type Document = map[string]any

// Storage adapts a Loam repository to ports.FlowStorage.
// Loam owns versioning; pending revisions are invisible here.
type Storage struct {
	Repo *loam.TypedRepository[Document]
}

// New creates a new Loam flow storage.
func New(repo *loam.TypedRepository[Document]) *Storage {
	return &Storage{Repo: repo}
}

// normalizeID maps Loam document ids back to flow paths.
// Depending on the serializer, ids may or may not carry the ".json" extension.
func normalizeID(id string) string {
	id = filepath.ToSlash(id)
	if filepath.Ext(id) != ".json" {
		id += ".json"
	}
	return id
}

// List returns the sorted flow paths matching the pattern.
func (s *Storage) List(ctx context.Context, pattern string) ([]string, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		path := normalizeID(doc.ID)
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

// Read returns the document metadata re-encoded as JSON, or nil if absent.
func (s *Storage) Read(ctx context.Context, path string) ([]byte, error) {
	doc, err := s.Repo.Get(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		exists, listErr := s.exists(ctx, path)
		if listErr == nil && !exists {
			return nil, nil
		}
		return nil, fmt.Errorf("loam get failed for %s: %w", path, err)
	}

	data, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return data, nil
}

func (s *Storage) exists(ctx context.Context, path string) (bool, error) {
	paths, err := s.List(ctx, "**/*.json")
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(paths, path)
	return i < len(paths) && paths[i] == path, nil
}

// Write saves the JSON object as a Loam document.
func (s *Storage) Write(ctx context.Context, path string, data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("flow file %s must be a JSON object: %w", path, err)
	}

	err := s.Repo.Save(ctx, &loam.DocumentModel[Document]{
		ID:   path,
		Data: doc,
	})
	if err != nil {
		return fmt.Errorf("loam save failed for %s: %w", path, err)
	}
	return nil
}

// Delete removes the document. Missing documents are ignored.
func (s *Storage) Delete(ctx context.Context, path string) error {
	exists, err := s.exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := s.Repo.Delete(ctx, path); err != nil {
		return fmt.Errorf("loam delete failed for %s: %w", path, err)
	}
	return nil
}

// Watch implements ports.Watchable.
func (s *Storage) Watch(ctx context.Context) (<-chan string, error) {
	events, err := s.Repo.Watch(ctx, "**/*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				path := normalizeID(evt.ID)
				if !strings.HasSuffix(path, ".json") {
					continue
				}
				select {
				case ch <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
