// Package postgres persists conversation records in a PostgreSQL table.
//
// The table is expected to exist (schema management is left to the operator):
//
//	CREATE TABLE dialog_sessions (
//	    id          TEXT PRIMARY KEY,
//	    modified_on TIMESTAMPTZ NOT NULL,
//	    state       TEXT NOT NULL
//	);
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/lib/pq"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "dialog_sessions"

// Store implements ports.RecordStore and ports.ActivityIndex on PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(s *Store) {
		s.table = table
	}
}

// WithClock overrides the time source used for modified_on.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open connects with the lib/pq driver and pings the server.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		table: DefaultTable,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) quotedTable() string {
	return pq.QuoteIdentifier(s.table)
}

// Upsert inserts or replaces the record.
func (s *Store) Upsert(ctx context.Context, id string, blob []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, modified_on, state) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET modified_on = EXCLUDED.modified_on, state = EXCLUDED.state`, s.quotedTable())

	if _, err := s.db.ExecContext(ctx, query, id, s.now().UTC(), string(blob)); err != nil {
		return fmt.Errorf("failed to upsert record %q: %w", id, err)
	}
	return nil
}

// Get returns the stored blob.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE id = $1`, s.quotedTable())

	var blob string
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read record %q: %w", id, err)
	}
	return []byte(blob), nil
}

// Delete removes every given id in one statement.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.quotedTable())

	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// ListInactive returns ids whose modified_on is older than the cutoff.
func (s *Store) ListInactive(ctx context.Context, before time.Time) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE modified_on < $1`, s.quotedTable())

	rows, err := s.db.QueryContext(ctx, query, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to scan inactive records: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
