package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunRecordStoreContract(t, store)
}

func TestMemoryFlowStorage_Contract(t *testing.T) {
	tests.FlowStorageContractTest(t, memory.NewFlowStorage(nil))
}

func TestMemoryStore_ListInactiveUsesClock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(memory.WithClock(func() time.Time { return now }))

	require.NoError(t, store.Upsert(ctx, "old", []byte(`{}`)))
	now = now.Add(10 * time.Minute)
	require.NoError(t, store.Upsert(ctx, "fresh", []byte(`{}`)))

	ids, err := store.ListInactive(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)
}
