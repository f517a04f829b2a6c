package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every rejected-input error (bad flow schema, bad state shape).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches every LookupError.
	ErrNotFound = errors.New("not found")

	// ErrRecordNotFound is returned by record stores when an id has no record.
	ErrRecordNotFound = errors.New("record not found")
)

// ValidationError reports a flow set or flow that failed schema validation.
type ValidationError struct {
	Flow string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Flow == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed for flow %q: %v", e.Flow, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStateError is returned when a state is not a plain mapping.
type InvalidStateError struct {
	Got string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: expected a mapping, got %s", e.Got)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrValidation }

// LookupError reports a flow or node that could not be resolved.
type LookupError struct {
	Kind string // "flow" or "node"
	Name string
	Flow string // owning flow, for node lookups
}

func (e *LookupError) Error() string {
	if e.Kind == "node" && e.Flow != "" {
		return fmt.Sprintf("node %q not found in flow %q", e.Name, e.Flow)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *LookupError) Is(target error) bool { return target == ErrNotFound }

// StackOverflowError aborts a message whose flow stack reached MaxStackSize.
type StackOverflowError struct {
	Depth int
	Flow  string
	Node  string
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("flow stack overflow (depth %d) entering %s#%s", e.Depth, e.Flow, e.Node)
}

// LoopError aborts a message that visited too many nodes without waiting.
type LoopError struct {
	Visits int
	Flow   string
	Node   string
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("node visit limit (%d) exceeded at %s#%s", e.Visits, e.Flow, e.Node)
}

// ConditionEvaluationError wraps a failure while compiling or running a condition.
type ConditionEvaluationError struct {
	Condition string
	Err       error
}

func (e *ConditionEvaluationError) Error() string {
	return fmt.Sprintf("condition %q: %v", e.Condition, e.Err)
}

func (e *ConditionEvaluationError) Unwrap() error { return e.Err }

// ActionError wraps a failure raised by, or while preparing, an action.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// DuplicateActionError is returned when registering an existing name without overwrite.
type DuplicateActionError struct {
	Name string
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action %q is already registered", e.Name)
}
