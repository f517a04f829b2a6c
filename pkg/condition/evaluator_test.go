package condition_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, e *condition.Evaluator, source string, bindings map[string]any) (bool, error) {
	t.Helper()
	compiled, err := e.Compile(source)
	require.NoError(t, err)
	assert.Equal(t, source, compiled.Source())
	return e.Run(context.Background(), compiled, bindings, time.Second)
}

func TestEvaluator_Bindings(t *testing.T) {
	e := condition.New()
	bindings := map[string]any{
		"state": map[string]any{"count": 3.0, "name": "ana"},
		"event": map[string]any{"text": "yes please", "type": "text"},
	}
	bindings["s"] = bindings["state"]
	bindings["e"] = bindings["event"]

	tests := []struct {
		source string
		want   bool
	}{
		{`state.count > 2`, true},
		{`s.count > 5`, false},
		{`event.text contains "yes"`, true},
		{`e.type == "text" && s.name == "ana"`, true},
		{`state.missing`, false},
		{`state.name`, true},
		{`state.count - 3`, false},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := run(t, e, tt.source, bindings)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_CallsBoundFunctions(t *testing.T) {
	e := condition.New()
	calls := 0
	bindings := map[string]any{
		"isVip": func(params ...any) (any, error) {
			calls++
			return len(params) == 1 && params[0] == "ana", nil
		},
	}

	got, err := run(t, e, `isVip("ana")`, bindings)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, 1, calls)
}

func TestEvaluator_Errors(t *testing.T) {
	e := condition.New()

	_, err := e.Compile(`state.count >`)
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = run(t, e, `explode()`, map[string]any{
		"explode": func(params ...any) (any, error) { return nil, boom },
	})
	assert.Error(t, err)
}

func TestEvaluator_Timeout(t *testing.T) {
	e := condition.New()
	compiled, err := e.Compile(`slow()`)
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	bindings := map[string]any{
		"slow": func(params ...any) (any, error) {
			<-release
			return true, nil
		},
	}

	start := time.Now()
	_, err = e.Run(context.Background(), compiled, bindings, 50*time.Millisecond)
	assert.ErrorIs(t, err, condition.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEvaluator_CustomFunction(t *testing.T) {
	e := condition.New(condition.WithFunction("double", func(params ...any) (any, error) {
		return params[0].(int) * 2, nil
	}))
	got, err := run(t, e, `double(2) == 4`, nil)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestTruthy(t *testing.T) {
	var nilMap map[string]any
	var nilPtr *int
	assert.False(t, condition.Truthy(nil))
	assert.False(t, condition.Truthy(false))
	assert.False(t, condition.Truthy(""))
	assert.False(t, condition.Truthy(0))
	assert.False(t, condition.Truthy(0.0))
	assert.False(t, condition.Truthy(nilPtr))
	assert.True(t, condition.Truthy(nilMap), "objects are truthy even when empty")
	assert.True(t, condition.Truthy("x"))
	assert.True(t, condition.Truthy(1.5))
	assert.True(t, condition.Truthy(map[string]any{}))
}
