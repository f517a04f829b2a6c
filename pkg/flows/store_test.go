package flows_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/parley/internal/testutils"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/flows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainFlow = `{
  "startNode": "greet",
  "nodes": [
    {"id": "n1", "name": "greet", "onEnter": ["say #text hi"], "next": [{"condition": "true", "node": "end"}]}
  ]
}`

func TestStore_LoadAll_DropsInvalidFlows(t *testing.T) {
	storage := memory.NewFlowStorage(map[string]string{
		"main.flow.json":          mainFlow,
		"no-start.flow.json":      `{"nodes":[{"name":"a"}]}`,
		"empty.flow.json":         `{"startNode":"a","nodes":[]}`,
		"dupes.flow.json":         `{"startNode":"a","nodes":[{"name":"a"},{"name":"a"}]}`,
		"broken.flow.json":        `{not json`,
		"skills/choice.flow.json": `{"startNode":"entry","nodes":[{"name":"entry"}]}`,
		"notes.txt":               `ignored`,
	})
	logger, logs := testutils.NewCaptureLogger()
	store := flows.New(storage, flows.WithLogger(logger))

	loaded, err := store.LoadAll(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(loaded))
	for _, f := range loaded {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"main.flow.json", "skills/choice.flow.json"}, names)
	assert.Contains(t, logs.String(), "no-start.flow.json")
	assert.Contains(t, logs.String(), "dupes.flow.json")
	assert.Contains(t, logs.String(), "broken.flow.json")
}

func TestStore_LoadAll_MergesLayout(t *testing.T) {
	storage := memory.NewFlowStorage(map[string]string{
		"main.flow.json": mainFlow,
		"main.ui.json":   `{"nodes":[{"id":"n1","position":{"x":10,"y":20}}]}`,
	})
	store := flows.New(storage)

	loaded, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.NotNil(t, loaded[0].Nodes[0].Position)
	assert.Equal(t, domain.Position2D{X: 10, Y: 20}, *loaded[0].Nodes[0].Position)
}

func TestStore_LoadAll_PreservesEmptyOnReceive(t *testing.T) {
	storage := memory.NewFlowStorage(map[string]string{
		"main.flow.json": `{"startNode":"a","nodes":[{"name":"a","onReceive":[]},{"name":"b"}]}`,
	})
	loaded, err := flows.New(storage).LoadAll(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, loaded[0].FindNode("a").OnReceive, "declared-but-empty onReceive must survive decoding")
	assert.Nil(t, loaded[0].FindNode("b").OnReceive)
}

func TestStore_SaveFlows(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewFlowStorage(map[string]string{
		"main.flow.json": mainFlow,
		"old.flow.json":  `{"startNode":"a","nodes":[{"name":"a"}]}`,
		"old.ui.json":    `{"nodes":[]}`,
	})
	store := flows.New(storage)

	signals := 0
	store.OnFlowsChanged(func() { signals++ })

	edits := []domain.FlowEdit{
		{Name: "main.flow.json", Flow: domain.Flow{
			StartNode: "start",
			Nodes: []domain.Node{
				{Name: "start", Position: &domain.Position2D{X: 1, Y: 2}, Next: []domain.Transition{{Condition: "true", Node: "login.flow.json"}}},
			},
		}},
		{Name: "login.flow.json", Flow: domain.Flow{StartNode: "ask", Nodes: []domain.Node{{Name: "ask", OnReceive: []string{}}}}},
	}
	require.NoError(t, store.SaveFlows(ctx, edits))
	assert.Equal(t, 1, signals)

	paths, err := storage.List(ctx, "**/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"login.flow.json", "login.ui.json", "main.flow.json", "main.ui.json"}, paths)

	raw, err := storage.Read(ctx, "main.flow.json")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "position", "layout must live in the companion file")

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, &domain.Position2D{X: 1, Y: 2}, loaded[1].Nodes[0].Position)
}

func TestStore_SaveFlows_Rejections(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewFlowStorage(map[string]string{"main.flow.json": mainFlow})
	store := flows.New(storage)

	signals := 0
	store.OnFlowsChanged(func() { signals++ })

	t.Run("missing entry flow", func(t *testing.T) {
		err := store.SaveFlows(ctx, []domain.FlowEdit{
			{Name: "other.flow.json", Flow: domain.Flow{StartNode: "a", Nodes: []domain.Node{{Name: "a"}}}},
		})
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Error(), domain.DefaultFlow)
	})

	t.Run("invalid flow", func(t *testing.T) {
		err := store.SaveFlows(ctx, []domain.FlowEdit{
			{Name: "main.flow.json", Flow: domain.Flow{StartNode: "a"}},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	assert.Zero(t, signals)
	raw, err := storage.Read(ctx, "main.flow.json")
	require.NoError(t, err)
	assert.JSONEq(t, mainFlow, string(raw), "rejected saves must not touch storage")
}

// brokenWrites fails every write to the given path.
type brokenWrites struct {
	*memory.FlowStorage
	path string
}

func (b brokenWrites) Write(ctx context.Context, path string, data []byte) error {
	if path == b.path {
		return errors.New("disk full")
	}
	return b.FlowStorage.Write(ctx, path, data)
}

func TestStore_SaveFlows_PartialWriteNotifies(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewFlowStorage(map[string]string{"main.flow.json": mainFlow})
	store := flows.New(brokenWrites{FlowStorage: storage, path: "login.flow.json"})

	signals := 0
	store.OnFlowsChanged(func() { signals++ })

	err := store.SaveFlows(ctx, []domain.FlowEdit{
		{Name: "main.flow.json", Flow: domain.Flow{StartNode: "start", Nodes: []domain.Node{{Name: "start"}}}},
		{Name: "login.flow.json", Flow: domain.Flow{StartNode: "ask", Nodes: []domain.Node{{Name: "ask"}}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, signals, "listeners must see the flows that were written")

	raw, err := storage.Read(ctx, "main.flow.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"start"`)
}

func TestStore_Watch_Unsupported(t *testing.T) {
	store := flows.New(memory.NewFlowStorage(nil))
	assert.ErrorIs(t, store.Watch(context.Background()), flows.ErrWatchUnsupported)
}
