package cli_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/adapters/process"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainFlow = `{
  "startNode": "ask",
  "nodes": [
    {"name": "ask", "onEnter": ["say text Name?"],
     "onReceive": ["setVariable {\"name\": \"name\", \"value\": \"{{ event.text }}\"}"],
     "next": [{"condition": "true", "node": "greet"}]},
    {"name": "greet", "onEnter": ["say text Done"]}
  ]
}`

func writeFlows(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.flow.json"), []byte(mainFlow), 0o644))
	return dir
}

func textEvent(text string) domain.Event {
	return domain.Event{Type: "text", Text: text}
}

func build(t *testing.T, cfg *config.Config, extra ...parley.Option) *cli.Runtime {
	t.Helper()
	rt, err := cli.Build(context.Background(), cfg, logging.NewNop(), extra...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestBuild_FileFlowsMemorySessions(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Dir = writeFlows(t)

	var out bytes.Buffer
	rt := build(t, cfg, parley.WithOutput(output.NewWriter("test", &out)))

	require.NotNil(t, rt.Bot.Janitor())
	require.NotNil(t, rt.Bot.Metrics())

	err = cli.Chat(context.Background(), rt.Bot, strings.NewReader("hi\nAda\n/state\n/position\n/quit\nignored\n"), &out,
		cli.ChatOptions{ConversationID: "local"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Name?\nDone\n")
	assert.Contains(t, out.String(), "map[name:Ada]")
	assert.Contains(t, out.String(), ">>> No active flow.")
	assert.NotContains(t, out.String(), "ignored")

	families, err := rt.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "parley_messages_total")
	assert.Contains(t, names, "go_goroutines")
}

func TestBuild_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Dir = writeFlows(t)
	cfg.Sessions.Driver = "redis"
	cfg.Sessions.Redis.Addr = mr.Addr()

	rt := build(t, cfg)
	ctx := context.Background()

	require.NoError(t, rt.Bot.Send(ctx, "u1", textEvent("hi")))
	rt.Bot.Wait()

	pos, err := rt.Bot.Position(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ask", pos.Node)
	assert.NotEmpty(t, mr.Keys())
}

func TestBuild_EncryptedRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Dir = writeFlows(t)
	cfg.Sessions.Driver = "redis"
	cfg.Sessions.Redis.Addr = mr.Addr()
	cfg.Sessions.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

	rt := build(t, cfg)
	ctx := context.Background()

	require.NoError(t, rt.Bot.Send(ctx, "u1", textEvent("hi")))
	require.NoError(t, rt.Bot.Send(ctx, "u1", textEvent("Ada")))
	rt.Bot.Wait()

	state, err := rt.Bot.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", state["name"])

	raw, err := mr.Get("parley:record:u1")
	require.NoError(t, err)
	assert.Contains(t, raw, "__encrypted__")
	assert.NotContains(t, raw, "Ada")
}

func TestBuild_InvalidEncryptionKey(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Driver = "memory"
	cfg.Sessions.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("too short"))

	_, err = cli.Build(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "encryptionKey")
}

func TestBuild_ProcessActions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.flow.json"), []byte(`{
  "startNode": "lookup",
  "nodes": [
    {"name": "lookup", "onEnter": ["plan {\"tier\": \"{{ event.text }}\"}", "say text Plan set"]}
  ]
}`), 0o644))

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Dir = dir
	cfg.Actions.File = filepath.Join(dir, "actions.yaml")
	cfg.Actions.Process = []process.Config{
		{Name: "plan", Command: "sh", Args: []string{"-c", `echo "{\"plan\": \"$PARLEY_ARG_TIER\"}"`}},
	}

	var out bytes.Buffer
	rt := build(t, cfg, parley.WithOutput(output.NewWriter("test", &out)))
	ctx := context.Background()

	a, ok := rt.Bot.Actions().Lookup("plan")
	require.True(t, ok)
	assert.Equal(t, process.Category, a.Metadata.Category)

	require.NoError(t, rt.Bot.Send(ctx, "u1", textEvent("gold")))
	rt.Bot.Wait()

	assert.Equal(t, "Plan set\n", out.String())
	state, err := rt.Bot.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "gold", state["plan"])
}

func TestBuild_UnreachableRedis(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Sessions.Driver = "redis"
	cfg.Sessions.Redis.Addr = "127.0.0.1:1"

	_, err = cli.Build(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestBuild_MemoryFlowsWithoutJanitor(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Driver = "memory"
	cfg.Janitor.Enabled = false

	rt := build(t, cfg)
	assert.Nil(t, rt.Bot.Janitor())

	set, err := rt.Bot.Flows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestChat_StopsWithContext(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Driver = "memory"
	rt := build(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()
	defer r.Close()

	var out bytes.Buffer
	err = cli.Chat(ctx, rt.Bot, r, &out, cli.ChatOptions{ConversationID: "u1", Prompt: true})
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "you> "))
}

func TestValidate(t *testing.T) {
	dir := writeFlows(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.flow.json"), []byte(`{"nodes":[]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dangling.flow.json"), []byte(`{
	  "startNode": "a",
	  "nodes": [{"name": "a", "next": [{"condition": "true", "node": "missing.flow.json"}]}]
	}`), 0o644))

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Dir = dir

	report, err := cli.Validate(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, []string{"broken.flow.json"}, report.Dropped)
	require.Len(t, report.Issues, 2)
	assert.Equal(t, "dangling.flow.json", report.Issues[0].Flow)
	assert.Contains(t, report.Issues[0].Message, `flow "missing.flow.json" does not exist`)
}

func TestValidate_MissingEntryFlow(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Flows.Dir = t.TempDir()

	report, err := cli.Validate(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "main.flow.json", report.Issues[0].Flow)
}
