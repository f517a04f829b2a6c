package runtime

import (
	"context"

	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/domain"
)

var truthyWords = map[string]bool{
	"":       true,
	"true":   true,
	"always": true,
	"yes":    true,
}

// evaluateCondition reports whether a transition condition holds.
func (e *Engine) evaluateCondition(ctx context.Context, t *turn, source string) (bool, error) {
	if truthyWords[source] {
		return true, nil
	}

	compiled, err := e.compile(source)
	if err != nil {
		return false, &domain.ConditionEvaluationError{Condition: source, Err: err}
	}
	ok, err := e.evaluator.Run(ctx, compiled, e.conditionBindings(ctx, t), e.conditionTimeout)
	if err != nil {
		return false, &domain.ConditionEvaluationError{Condition: source, Err: err}
	}
	return ok, nil
}

// conditionBindings exposes every action as a function plus state, s, event and e.
// The four reserved names win over actions of the same name.
func (e *Engine) conditionBindings(ctx context.Context, t *turn) map[string]any {
	bindings := make(map[string]any)
	view := domain.NewStateView(t.state)

	for _, name := range e.registry.Names() {
		bindings[name] = func(params ...any) (any, error) {
			args := map[string]any{}
			if len(params) > 0 {
				if m, ok := params[0].(map[string]any); ok {
					args = m
				}
			}
			return e.registry.Invoke(ctx, name, actions.Call{
				ConversationID: t.id,
				State:          view,
				Event:          t.event,
				Args:           args,
			})
		}
	}

	for k, v := range templateBindings(t) {
		bindings[k] = v
	}
	return bindings
}

func templateBindings(t *turn) map[string]any {
	state := map[string]any(t.state.Clone())
	event := t.event.Bindings()
	return map[string]any{
		"state": state,
		"s":     state,
		"event": event,
		"e":     event,
	}
}
