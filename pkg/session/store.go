package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Store reads and writes conversation State and Context.
type Store struct {
	records ports.RecordStore
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store over the given record store.
func NewStore(records ports.RecordStore, opts ...Option) *Store {
	s := &Store{
		records: records,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Records returns the underlying record store.
func (s *Store) Records() ports.RecordStore {
	return s.records
}

// GetState returns the stored state, creating and persisting an empty one if absent.
func (s *Store) GetState(ctx context.Context, id string) (domain.State, error) {
	blob, err := s.records.Get(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		state := domain.NewState()
		if err := s.SetState(ctx, id, state); err != nil {
			return nil, err
		}
		s.logger.Debug("State created", "conversation", id)
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state domain.State
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state of %s: %w", id, err)
	}
	if state == nil {
		state = domain.NewState()
	}
	return state, nil
}

// SetState persists state. It must be nil or a plain mapping.
func (s *Store) SetState(ctx context.Context, id string, state any) error {
	var m map[string]any
	switch v := state.(type) {
	case nil:
		m = map[string]any{}
	case domain.State:
		m = v
	case map[string]any:
		m = v
	case *domain.StateView:
		m = v.Clone()
	default:
		return &domain.InvalidStateError{Got: fmt.Sprintf("%T", state)}
	}
	if m == nil {
		m = map[string]any{}
	}

	blob, err := json.Marshal(m)
	if err != nil {
		return &domain.InvalidStateError{Got: err.Error()}
	}
	if err := s.records.Upsert(ctx, id, blob); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}

// DeleteState removes the primary record and its companions.
// Without subkeys, only the context companion is removed alongside it.
func (s *Store) DeleteState(ctx context.Context, id string, subkeys ...string) error {
	if len(subkeys) == 0 {
		subkeys = []string{domain.ContextSubkey}
	}

	ids := make([]string, 0, len(subkeys)+1)
	ids = append(ids, id)
	for _, sub := range subkeys {
		ids = append(ids, domain.SubkeyID(id, sub))
	}

	if err := s.records.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// GetContext returns the execution context, or nil if the conversation has none.
func (s *Store) GetContext(ctx context.Context, id string) (*domain.Context, error) {
	blob, err := s.records.Get(ctx, domain.SubkeyID(id, domain.ContextSubkey))
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}

	var c domain.Context
	if err := json.Unmarshal(blob, &c); err != nil {
		return nil, fmt.Errorf("failed to decode context of %s: %w", id, err)
	}
	if c.CurrentFlow == nil {
		return nil, nil
	}
	return &c, nil
}

// SetContext persists the execution context.
func (s *Store) SetContext(ctx context.Context, id string, c *domain.Context) error {
	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}
	if err := s.records.Upsert(ctx, domain.SubkeyID(id, domain.ContextSubkey), blob); err != nil {
		return fmt.Errorf("failed to persist context: %w", err)
	}
	return nil
}

// DeleteContext removes only the context companion, leaving State intact.
func (s *Store) DeleteContext(ctx context.Context, id string) error {
	if err := s.records.Delete(ctx, domain.SubkeyID(id, domain.ContextSubkey)); err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	return nil
}
