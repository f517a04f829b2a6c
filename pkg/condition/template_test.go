package condition_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	bindings := map[string]any{
		"state": map[string]any{"name": "Ana", "tags": []any{"a", "b"}},
		"event": map[string]any{"text": "hello"},
	}

	tests := []struct {
		tmpl string
		want string
	}{
		{"Hi {{state.name}}!", "Hi Ana!"},
		{"{{ event.text }} / {{state.name}}", "hello / Ana"},
		{"{{state.missing}}", ""},
		{"{{state.tags}}", `["a","b"]`},
		{"{{ len(state.tags) }} tags", "2 tags"},
		{"no markup", "no markup"},
	}
	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			got, err := condition.Render(tt.tmpl, bindings)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_ErrorKeepsTemplate(t *testing.T) {
	got, err := condition.Render("x {{ state.name + }}", map[string]any{"state": map[string]any{}})
	assert.Error(t, err)
	assert.Equal(t, "x {{ state.name + }}", got)
	assert.True(t, condition.HasTemplate(got))
}
