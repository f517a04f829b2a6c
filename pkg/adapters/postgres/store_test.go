package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/postgres"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// Set PARLEY_TEST_POSTGRES_DSN (e.g. "postgres://localhost/parley_test?sslmode=disable") to run.
func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("PARLEY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARLEY_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	table := fmt.Sprintf("parley_contract_%d", time.Now().UnixNano())

	store, err := postgres.Open(ctx, dsn, postgres.WithTable(table))
	require.NoError(t, err)
	defer store.Close()

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE %s (id TEXT PRIMARY KEY, modified_on TIMESTAMPTZ NOT NULL, state TEXT NOT NULL)`,
		pq.QuoteIdentifier(table)))
	require.NoError(t, err)
	defer func() {
		_, _ = db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, pq.QuoteIdentifier(table)))
	}()

	ports.RunRecordStoreContract(t, store)
}
