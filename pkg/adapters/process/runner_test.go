package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/adapters/process"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(t *testing.T, name, script string) process.Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests use sh")
	}
	return process.Config{Name: name, Command: "sh", Args: []string{"-c", script}}
}

func call(state domain.State, args map[string]any) actions.Call {
	return actions.Call{ConversationID: "u1", State: domain.NewStateView(state), Args: args}
}

func TestRunner_MergesJSONObject(t *testing.T) {
	r := process.NewRunner(process.WithRegistry([]process.Config{
		shell(t, "lookup", `echo "{\"plan\": \"$PARLEY_ARG_PLAN\", \"user\": \"$PARLEY_CONVERSATION_ID\"}"`),
	}))

	out, err := r.Run(context.Background(), "lookup", call(domain.State{"name": "Ada"}, map[string]any{"plan": "pro"}))
	require.NoError(t, err)
	assert.Equal(t, domain.State{"name": "Ada", "plan": "pro", "user": "u1"}, out)
}

func TestRunner_SaveTo(t *testing.T) {
	r := process.NewRunner()
	r.Register(shell(t, "count", `cat | wc -c | tr -d ' '`))

	out, err := r.Run(context.Background(), "count", call(domain.State{"a": 1.0}, map[string]any{"saveTo": "bytes"}))
	require.NoError(t, err)
	assert.Equal(t, domain.State{"a": 1.0, "bytes": "7"}, out, `stdin carries the state as {"a":1}`)
}

func TestRunner_PlainOutputLeavesStateAlone(t *testing.T) {
	r := process.NewRunner()
	r.Register(shell(t, "hello", "echo hello"))

	out, err := r.Run(context.Background(), "hello", call(domain.State{}, nil))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunner_Failures(t *testing.T) {
	r := process.NewRunner()
	r.Register(shell(t, "fail", "echo broken >&2; exit 3"))
	slow := shell(t, "slow", "sleep 5")
	slow.Timeout = 50 * time.Millisecond
	r.Register(slow)

	_, err := r.Run(context.Background(), "fail", call(nil, nil))
	assert.ErrorContains(t, err, "broken")

	_, err = r.Run(context.Background(), "slow", call(nil, nil))
	assert.Error(t, err)

	_, err = r.Run(context.Background(), "hacker_script", call(nil, nil))
	assert.ErrorContains(t, err, "not registered")
}

func TestRunner_DefinitionsRegister(t *testing.T) {
	r := process.NewRunner(process.WithRegistry([]process.Config{
		{Name: "lookup", Command: "true", Description: "Looks things up"},
	}))

	reg := actions.NewRegistry()
	require.NoError(t, reg.RegisterAll(r.Definitions(), false))

	a, ok := reg.Lookup("lookup")
	require.True(t, ok)
	assert.Equal(t, process.Category, a.Metadata.Category)
	assert.Equal(t, "Looks things up", a.Metadata.Description)
}

func TestLoadConfigs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
actions:
  - name: lookup
    command: ./lookup.sh
    args: [--fast]
    timeout: 2s
  - command: nameless
`), 0o644))

	configs, err := process.LoadConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "lookup", configs[0].Name)
	assert.Equal(t, []string{"--fast"}, configs[0].Args)
	assert.Equal(t, 2*time.Second, configs[0].Timeout)

	jsonPath := filepath.Join(dir, "actions.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"actions": [{"name": "a", "command": "b"}]}`), 0o644))
	configs, err = process.LoadConfigs(jsonPath)
	require.NoError(t, err)
	assert.Len(t, configs, 1)

	configs, err = process.LoadConfigs(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, configs)
}
