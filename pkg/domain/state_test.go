package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CloneIsDeep(t *testing.T) {
	orig := State{
		"user": map[string]any{"name": "ana"},
		"tags": []any{"a", "b"},
	}

	cp := orig.Clone()
	cp["user"].(map[string]any)["name"] = "bia"
	cp["tags"].([]any)[0] = "z"

	assert.Equal(t, "ana", orig["user"].(map[string]any)["name"])
	assert.Equal(t, "a", orig["tags"].([]any)[0])
}

func TestStateView_ReadOnly(t *testing.T) {
	src := State{"profile": map[string]any{"age": 30}}
	view := NewStateView(src)

	got, ok := view.Get("profile")
	require.True(t, ok)
	got.(map[string]any)["age"] = 99

	assert.Equal(t, 30, view.Value("profile").(map[string]any)["age"])
	assert.Equal(t, 30, src["profile"].(map[string]any)["age"], "view must not alias the source")

	src["extra"] = true
	assert.Equal(t, 1, view.Len())
	assert.Equal(t, []string{"profile"}, view.Keys())
}

func TestStateView_MarshalJSON(t *testing.T) {
	view := NewStateView(State{"a": 1})
	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	var nilView *StateView
	data, err = json.Marshal(nilView)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
