// Package process exposes allow-listed local commands as actions.
//
// Action arguments reach the command as PARLEY_ARG_<NAME> environment
// variables, never as flags. The conversation state is written to stdin as
// JSON. A JSON object on stdout is merged into the state; with a "saveTo"
// argument the whole output is stored under that key instead.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/actions"
)

// Category is the action metadata category of process actions.
const Category = "process"

// waitDelay bounds how long a killed command may hold its output pipes open.
const waitDelay = time.Second

// SaveToArg names the argument that stores the output under a state key.
const SaveToArg = "saveTo"

// Runner executes the registered commands.
type Runner struct {
	registry map[string]Config
	baseDir  string
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry registers every config.
func WithRegistry(configs []Config) RunnerOption {
	return func(r *Runner) {
		for _, c := range configs {
			r.Register(c)
		}
	}
}

// WithBaseDir sets the working directory of executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner with an empty allow-list.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]Config),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a command to the allow-list, replacing one of the same name.
func (r *Runner) Register(c Config) {
	r.registry[c.Name] = c
}

// Definitions returns one action per registered command, for actions.Registry.RegisterAll.
func (r *Runner) Definitions() map[string]actions.Definition {
	defs := make(map[string]actions.Definition, len(r.registry))
	for name, c := range r.registry {
		name, c := name, c
		defs[name] = actions.Definition{
			Handler: func(ctx context.Context, call actions.Call) (any, error) {
				return r.Run(ctx, name, call)
			},
			Metadata: &actions.Metadata{Title: name, Description: c.Description, Category: Category},
		}
	}
	return defs
}

// Run executes the named command for an action call and returns the new state,
// or nil when the output carries nothing to store.
func (r *Runner) Run(ctx context.Context, name string, call actions.Call) (any, error) {
	proc, ok := r.registry[name]
	if !ok {
		return nil, fmt.Errorf("process action not registered: %s", name)
	}
	if proc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proc.Timeout)
		defer cancel()
	}

	var stdin []byte
	if call.State != nil {
		data, err := json.Marshal(call.State)
		if err != nil {
			return nil, fmt.Errorf("failed to encode state: %w", err)
		}
		stdin = data
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(cmd.Environ(), environment(proc, call)...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("Process action finished", "action", name, "conversation", call.ConversationID,
		"duration", time.Since(start), "ok", err == nil)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return merge(call, decode(stdout.String())), nil
}

func environment(proc Config, call actions.Call) []string {
	env := make([]string, 0, len(proc.Environment)+len(call.Args)+1)
	for k, v := range proc.Environment {
		env = append(env, k+"="+v)
	}
	env = append(env, "PARLEY_CONVERSATION_ID="+call.ConversationID)
	for k, v := range call.Args {
		if k == SaveToArg {
			continue
		}
		env = append(env, fmt.Sprintf("PARLEY_ARG_%s=%s", strings.ToUpper(k), stringify(v)))
	}
	return env
}

// stringify renders scalars plainly and everything else as JSON.
func stringify(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64:
		return fmt.Sprintf("%v", v)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

// decode returns the parsed JSON output, or the trimmed text.
func decode(output string) any {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil
	}
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return trimmed
}

func merge(call actions.Call, result any) any {
	state := call.State.Clone()

	if key, ok := call.Args[SaveToArg].(string); ok && key != "" {
		state[key] = result
		return state
	}
	fields, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	for k, v := range fields {
		state[k] = v
	}
	return state
}
