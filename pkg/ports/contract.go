package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecordStoreContract runs a suite of tests to verify that a RecordStore implementation
// adheres to the defined interface contract.
func RunRecordStoreContract(t *testing.T, store RecordStore) {
	ctx := context.Background()
	id := "contract-test-" + time.Now().Format("20060102150405.000000")

	t.Run("Upsert and Get", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, id, []byte(`{"foo":"bar"}`)))

		blob, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"foo":"bar"}`, string(blob))
	})

	t.Run("Upsert replaces", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, id, []byte(`{"count":1}`)))
		require.NoError(t, store.Upsert(ctx, id, []byte(`{"count":2}`)))

		blob, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"count":2}`, string(blob))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+id)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})

	t.Run("Delete many", func(t *testing.T) {
		companion := domain.SubkeyID(id, domain.ContextSubkey)
		require.NoError(t, store.Upsert(ctx, id, []byte(`{}`)))
		require.NoError(t, store.Upsert(ctx, companion, []byte(`{}`)))

		require.NoError(t, store.Delete(ctx, id, companion, "never-existed-"+id))

		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
		_, err = store.Get(ctx, companion)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})

	if index, ok := store.(ActivityIndex); ok {
		t.Run("ListInactive", func(t *testing.T) {
			stale := id + "-stale"
			require.NoError(t, store.Upsert(ctx, stale, []byte(`{}`)))
			defer func() { _ = store.Delete(ctx, stale) }()

			ids, err := index.ListInactive(ctx, time.Now().Add(time.Hour))
			require.NoError(t, err)
			assert.Contains(t, ids, stale)

			ids, err = index.ListInactive(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.NotContains(t, ids, stale)
		})
	}
}
