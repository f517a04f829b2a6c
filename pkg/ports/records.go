package ports

import (
	"context"
	"time"
)

// RecordStore persists opaque conversation records keyed by id.
// The store stamps each record with its modification time.
type RecordStore interface {
	// Upsert creates or replaces the record. Last writer wins.
	Upsert(ctx context.Context, id string, blob []byte) error

	// Get returns the record, or domain.ErrRecordNotFound.
	Get(ctx context.Context, id string) ([]byte, error)

	// Delete removes every given id. Missing ids are ignored.
	Delete(ctx context.Context, ids ...string) error
}

// ActivityIndex is implemented by record stores that can find stale records.
type ActivityIndex interface {
	// ListInactive returns the ids of records last modified before the cutoff.
	ListInactive(ctx context.Context, before time.Time) ([]string, error)
}
