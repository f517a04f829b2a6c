package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jeffail/gabs/v2"
	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/condition"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// processInstructions runs instructions in order. Actions may replace t.state.
func (e *Engine) processInstructions(ctx context.Context, t *turn, instructions []string) error {
	for _, raw := range instructions {
		in := domain.ParseInstruction(raw)
		switch in.Kind {
		case domain.InstructionSay:
			if err := e.dispatchOutput(ctx, t, in); err != nil {
				return err
			}
		default:
			if err := e.invokeAction(ctx, t, in); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) dispatchOutput(ctx context.Context, t *turn, in domain.Instruction) error {
	if in.OutputType == "" {
		e.logger.Error("Invalid say instruction, expected \"say <type> [value]\"", "conversation", t.id, "instruction", in.Raw)
		return nil
	}
	if e.output == nil {
		e.logger.Warn("No output configured, dropping message", "conversation", t.id, "type", in.OutputType)
		return nil
	}

	e.trace(t, "SEND", "type", in.OutputType, "value", truncate(in.Value, 20))
	req := ports.OutputRequest{
		ConversationID: t.id,
		Message:        ports.OutputMessage{Type: in.OutputType, Value: in.Value},
		State:          domain.NewStateView(t.state),
		OriginalEvent:  t.event,
		FlowContext:    t.flowCtx.Clone(),
	}
	if err := e.output.Dispatch(ctx, req); err != nil {
		return fmt.Errorf("failed to dispatch %s output: %w", in.OutputType, err)
	}
	return nil
}

// invokeAction calls a registered action. Unknown actions are logged and skipped.
//
// The handler sees a read-only view of the state. Returning a different State,
// map or view replaces the state; returning the same view or nil leaves it unchanged.
func (e *Engine) invokeAction(ctx context.Context, t *turn, in domain.Instruction) error {
	args, err := e.parseArgs(t, in)
	if err != nil {
		return err
	}

	if !e.registry.Has(in.Name) {
		e.logger.Error("Action not found", "conversation", t.id, "action", in.Name, "flow", t.flowCtx.FlowName(), "node", t.flowCtx.Node)
		return nil
	}

	e.trace(t, "EXEC", "action", in.Name)
	view := domain.NewStateView(t.state)
	out, err := e.registry.Invoke(ctx, in.Name, actions.Call{
		ConversationID: t.id,
		State:          view,
		Event:          t.event,
		Args:           args,
	})
	if err != nil {
		return &domain.ActionError{Action: in.Name, Err: err}
	}

	switch next := out.(type) {
	case nil:
	case *domain.StateView:
		if next == view {
			e.logger.Warn("Action returned the state view it was given, state unchanged; return a new state instead",
				"conversation", t.id, "action", in.Name)
			return nil
		}
		t.state = next.Clone()
		e.trace(t, "SSET", "action", in.Name)
	case domain.State:
		t.state = next
		e.trace(t, "SSET", "action", in.Name)
	case map[string]any:
		t.state = domain.State(next)
		e.trace(t, "SSET", "action", in.Name)
	default:
		e.logger.Debug("Ignoring non-mapping action result", "action", in.Name, "type", fmt.Sprintf("%T", out))
	}
	return nil
}

// parseArgs decodes the JSON arguments first, then interpolates string leaves
// containing "{{" against the state and event. Rendering never touches the JSON syntax.
func (e *Engine) parseArgs(t *turn, in domain.Instruction) (map[string]any, error) {
	if in.Args == "" {
		return map[string]any{}, nil
	}

	container, err := gabs.ParseJSON([]byte(in.Args))
	if err != nil {
		return nil, &domain.ActionError{Action: in.Name, Err: fmt.Errorf("invalid arguments (not a valid JSON string): %s", in.Args)}
	}
	if _, ok := container.Data().(map[string]any); !ok {
		return nil, &domain.ActionError{Action: in.Name, Err: errors.New("arguments must be a JSON object")}
	}

	e.interpolateLeaves(t, container, templateBindings(t))
	return container.Data().(map[string]any), nil
}

func (e *Engine) interpolateLeaves(t *turn, node *gabs.Container, bindings map[string]any) {
	switch node.Data().(type) {
	case map[string]any:
		for key, child := range node.ChildrenMap() {
			if s, ok := child.Data().(string); ok {
				if rendered, changed := e.render(t, s, bindings); changed {
					_, _ = node.Set(rendered, key)
				}
				continue
			}
			e.interpolateLeaves(t, child, bindings)
		}
	case []any:
		for i, child := range node.Children() {
			if s, ok := child.Data().(string); ok {
				if rendered, changed := e.render(t, s, bindings); changed {
					_, _ = node.SetIndex(rendered, i)
				}
				continue
			}
			e.interpolateLeaves(t, child, bindings)
		}
	}
}

func (e *Engine) render(t *turn, s string, bindings map[string]any) (string, bool) {
	if !condition.HasTemplate(s) {
		return s, false
	}
	out, err := e.interpolator(s, bindings)
	if err != nil {
		e.logger.Error("Failed to render argument", "conversation", t.id, "template", s, "err", err)
		return s, false
	}
	return out, true
}
