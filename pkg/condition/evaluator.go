// Package condition evaluates flow conditions and template segments with expr-lang.
//
// Expressions are compiled once without a typed environment, so any binding
// (state, event, registered actions) is resolved at run time.
package condition

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/aretw0/parley/pkg/ports"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultTimeout bounds a single evaluation when the caller passes none.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when an evaluation exceeds its time slice.
var ErrTimeout = errors.New("expression evaluation timed out")

// Evaluator implements ports.ExpressionEvaluator on top of expr-lang.
type Evaluator struct {
	options []expr.Option
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFunction exposes a helper function to every expression.
func WithFunction(name string, fn func(params ...any) (any, error)) Option {
	return func(e *Evaluator) {
		e.options = append(e.options, expr.Function(name, fn))
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		options: []expr.Option{
			expr.AllowUndefinedVariables(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type program struct {
	source string
	prog   *vm.Program
}

func (p *program) Source() string { return p.source }

// Compile parses and type-checks the source.
func (e *Evaluator) Compile(source string) (ports.CompiledExpr, error) {
	prog, err := expr.Compile(source, e.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", source, err)
	}
	return &program{source: source, prog: prog}, nil
}

// Run evaluates the program against bindings and returns its truthiness.
//
// expr programs cannot be interrupted: on timeout the evaluation goroutine is
// abandoned and finishes in the background.
func (e *Evaluator) Run(ctx context.Context, compiled ports.CompiledExpr, bindings map[string]any, timeout time.Duration) (bool, error) {
	p, ok := compiled.(*program)
	if !ok {
		return false, fmt.Errorf("expression %q was not compiled by this evaluator", compiled.Source())
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		out, err := expr.Run(p.prog, bindings)
		done <- result{value: out, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return false, res.err
		}
		return Truthy(res.value), nil
	case <-timer.C:
		return false, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Truthy converts an expression result to a boolean the way a scripting language would:
// nil, false, zero numbers and empty strings are false; everything else is true.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && f == f
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
