// Package runtime is the conversation flow engine.
//
// The Engine advances a conversation through its flows one event at a time:
// it loads (or creates) the conversation Context, runs node instructions,
// evaluates transitions and persists the resulting Context and State.
// It assumes a single in-flight call per conversation id; pkg/queue provides that.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/condition"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// FlowSource provides the full flow set. *flows.Store implements it.
type FlowSource interface {
	LoadAll(ctx context.Context) ([]domain.Flow, error)
}

// OutputDispatcher delivers "say" instructions. *output.Dispatcher implements it.
type OutputDispatcher interface {
	Dispatch(ctx context.Context, req ports.OutputRequest) error
}

// Interpolator renders a template string against bindings.
type Interpolator func(tmpl string, bindings map[string]any) (string, error)

// ErrorHandler receives failures of ProcessMessage.
type ErrorHandler func(ctx context.Context, conversationID string, event domain.Event, err error)

// Engine is the flow execution engine.
type Engine struct {
	source   FlowSource
	sessions *session.Store
	registry *actions.Registry
	output   OutputDispatcher
	pipeline *hooks.Pipeline

	evaluator        ports.ExpressionEvaluator
	conditionTimeout time.Duration
	interpolator     Interpolator
	defaultFlow      string

	logger *slog.Logger
	tracer trace.Tracer

	// Flow cache. A load that races InvalidateFlows is used once and not stored.
	flowSet atomic.Pointer[flowSet]
	cacheMu sync.Mutex
	version uint64
	loadMu  sync.Mutex

	condMu     sync.Mutex
	conditions map[string]ports.CompiledExpr

	errMu    sync.RWMutex
	handlers []ErrorHandler
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger configures the logger. Engine traces are emitted at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEvaluator replaces the expression evaluator used for conditions.
func WithEvaluator(ev ports.ExpressionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithConditionTimeout bounds each condition evaluation.
func WithConditionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.conditionTimeout = d
	}
}

// WithInterpolator replaces the renderer of "{{ }}" segments in action arguments.
func WithInterpolator(fn Interpolator) Option {
	return func(e *Engine) {
		e.interpolator = fn
	}
}

// WithOutput configures where "say" instructions are sent.
func WithOutput(d OutputDispatcher) Option {
	return func(e *Engine) {
		e.output = d
	}
}

// WithHooks shares a hook pipeline with the Engine.
func WithHooks(p *hooks.Pipeline) Option {
	return func(e *Engine) {
		e.pipeline = p
	}
}

// WithTracer configures the OpenTelemetry tracer for message spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithDefaultFlow changes the flow new conversations start in.
func WithDefaultFlow(name string) Option {
	return func(e *Engine) {
		e.defaultFlow = name
	}
}

// NewEngine creates an Engine. The registry may be nil, in which case every
// action is reported as unknown.
func NewEngine(source FlowSource, sessions *session.Store, registry *actions.Registry, opts ...Option) *Engine {
	e := &Engine{
		source:           source,
		sessions:         sessions,
		registry:         registry,
		pipeline:         hooks.NewPipeline(),
		evaluator:        condition.New(),
		conditionTimeout: condition.DefaultTimeout,
		interpolator:     condition.Render,
		defaultFlow:      domain.DefaultFlow,
		logger:           logging.NewNop(),
		tracer:           otel.Tracer("github.com/aretw0/parley/internal/runtime"),
		conditions:       make(map[string]ports.CompiledExpr),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = actions.NewRegistry()
	}
	return e
}

// Hooks returns the lifecycle pipeline so callers can register middleware.
func (e *Engine) Hooks() *hooks.Pipeline {
	return e.pipeline
}

// hookView copies c for the middleware of stage. Nothing is copied when the
// stage has no middleware; Run never reads the context then.
func (e *Engine) hookView(stage hooks.Stage, c *domain.Context) *domain.Context {
	if e.pipeline.Len(stage) == 0 {
		return nil
	}
	return c.Snapshot()
}

// Actions returns the action registry.
func (e *Engine) Actions() *actions.Registry {
	return e.registry
}

// OnError registers a handler for ProcessMessage failures.
func (e *Engine) OnError(fn ErrorHandler) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.handlers = append(e.handlers, fn)
}

func (e *Engine) handleError(ctx context.Context, id string, event domain.Event, err error) {
	e.logger.Error("Failed to process message", "conversation", id, "event", event.Type, "err", err)

	e.errMu.RLock()
	handlers := append([]ErrorHandler(nil), e.handlers...)
	e.errMu.RUnlock()
	for _, h := range handlers {
		h(ctx, id, event, err)
	}
}
