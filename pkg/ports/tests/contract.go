package tests

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FlowStorageContractTest is a reusable test suite that verifies if an adapter complies with ports.FlowStorage.
func FlowStorageContractTest(t *testing.T, storage ports.FlowStorage) {
	t.Helper()
	ctx := context.Background()

	t.Run("Write_Read", func(t *testing.T) {
		require.NoError(t, storage.Write(ctx, "main.flow.json", []byte(`{"startNode":"a","nodes":[{"name":"a"}]}`)))

		data, err := storage.Read(ctx, "main.flow.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"startNode":"a","nodes":[{"name":"a"}]}`, string(data))
	})

	t.Run("Read_Missing", func(t *testing.T) {
		data, err := storage.Read(ctx, "missing.flow.json")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("List_Pattern", func(t *testing.T) {
		require.NoError(t, storage.Write(ctx, "skills/choice.flow.json", []byte(`{"startNode":"x","nodes":[{"name":"x"}]}`)))
		require.NoError(t, storage.Write(ctx, "main.ui.json", []byte(`{"nodes":[]}`)))

		paths, err := storage.List(ctx, "**/*.flow.json")
		require.NoError(t, err)
		assert.Contains(t, paths, "main.flow.json")
		assert.Contains(t, paths, "skills/choice.flow.json")
		assert.NotContains(t, paths, "main.ui.json")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, storage.Delete(ctx, "skills/choice.flow.json"))
		require.NoError(t, storage.Delete(ctx, "skills/choice.flow.json"), "deleting twice is not an error")

		data, err := storage.Read(ctx, "skills/choice.flow.json")
		require.NoError(t, err)
		assert.Nil(t, data)
	})
}
