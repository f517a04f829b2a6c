package ports

import (
	"context"
	"time"
)

// CompiledExpr is an expression prepared by an ExpressionEvaluator.
type CompiledExpr interface {
	Source() string
}

// ExpressionEvaluator compiles and runs condition expressions in a sandbox.
type ExpressionEvaluator interface {
	Compile(source string) (CompiledExpr, error)

	// Run evaluates the expression against the bindings and reports its truthiness.
	// Exceeding the timeout is an error.
	Run(ctx context.Context, expr CompiledExpr, bindings map[string]any, timeout time.Duration) (bool, error)
}
