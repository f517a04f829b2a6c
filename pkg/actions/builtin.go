package actions

import (
	"context"
	"fmt"
)

// setVariableArgs are the arguments of the "setVariable" builtin.
type setVariableArgs struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// SetVariable stores args.value under args.name and returns the new state.
func SetVariable(ctx context.Context, call Call) (any, error) {
	var args setVariableArgs
	if err := DecodeArgs(call.Args, &args); err != nil {
		return nil, err
	}
	if args.Name == "" {
		return nil, fmt.Errorf("setVariable: name is required")
	}

	next := call.State.Clone()
	next[args.Name] = args.Value
	return next, nil
}

// UnsetVariable removes args.name from the state.
func UnsetVariable(ctx context.Context, call Call) (any, error) {
	var args setVariableArgs
	if err := DecodeArgs(call.Args, &args); err != nil {
		return nil, err
	}

	next := call.State.Clone()
	delete(next, args.Name)
	return next, nil
}

// ResetState clears the whole state.
func ResetState(ctx context.Context, call Call) (any, error) {
	return map[string]any{}, nil
}

// RegisterBuiltins installs the builtin actions.
func RegisterBuiltins(r *Registry) error {
	return r.RegisterAll(map[string]Definition{
		"setVariable": {
			Handler:  SetVariable,
			Metadata: &Metadata{Title: "Set variable", Category: "State", Description: "Stores a value in the conversation state"},
		},
		"unsetVariable": {
			Handler:  UnsetVariable,
			Metadata: &Metadata{Title: "Unset variable", Category: "State"},
		},
		"__resetState": {
			Handler: ResetState,
		},
	}, false)
}
