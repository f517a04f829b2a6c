package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

type record struct {
	blob       []byte
	modifiedOn time.Time
}

// Store implements ports.RecordStore and ports.ActivityIndex in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]record
	mu   sync.RWMutex
	now  func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory record store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		data: make(map[string]record),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert stores a copy of the blob.
func (s *Store) Upsert(ctx context.Context, id string, blob []byte) error {
	cp := append([]byte(nil), blob...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = record{blob: cp, modifiedOn: s.now()}
	return nil
}

// Get returns a copy so callers can't mutate the stored record.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return append([]byte(nil), rec.blob...), nil
}

// Delete removes the given ids.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.data, id)
	}
	return nil
}

// ListInactive returns ids modified before the cutoff.
func (s *Store) ListInactive(ctx context.Context, before time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id, rec := range s.data {
		if rec.modifiedOn.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
