package domain

import (
	"encoding/json"
	"sort"
)

// State is free-form conversation data owned by actions.
type State map[string]any

// NewState returns an empty state.
func NewState() State {
	return State{}
}

// Clone returns a deep copy of the state. Nested maps and slices are copied;
// other values are shared.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return cloneValue(map[string]any(s)).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = cloneValue(sub)
		}
		return out
	case State:
		return State(cloneValue(map[string]any(val)).(map[string]any))
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = cloneValue(sub)
		}
		return out
	default:
		return v
	}
}

// StateView is the read-only state handed to actions and output processors.
//
// An action that wants to change state returns a new State (or map). Returning
// the view it was given is treated as "no change".
type StateView struct {
	data State
}

// NewStateView snapshots s into a read-only view.
func NewStateView(s State) *StateView {
	return &StateView{data: s.Clone()}
}

// Get returns a copy of the value stored under key.
func (v *StateView) Get(key string) (any, bool) {
	if v == nil {
		return nil, false
	}
	val, ok := v.data[key]
	return cloneValue(val), ok
}

// Value is Get without the presence flag.
func (v *StateView) Value(key string) any {
	val, _ := v.Get(key)
	return val
}

// Keys returns the top-level keys in sorted order.
func (v *StateView) Keys() []string {
	if v == nil {
		return nil
	}
	keys := make([]string, 0, len(v.data))
	for k := range v.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of top-level keys.
func (v *StateView) Len() int {
	if v == nil {
		return 0
	}
	return len(v.data)
}

// Clone returns a mutable deep copy, the usual starting point for an action's new state.
func (v *StateView) Clone() State {
	if v == nil {
		return State{}
	}
	return v.data.Clone()
}

// MarshalJSON encodes the underlying data.
func (v *StateView) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v.data)
}
