package parley

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/condition"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/flows"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/aretw0/parley/pkg/janitor"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/output"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/queue"
	"github.com/aretw0/parley/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is the current release.
const Version = "0.1.0"

// ErrorHandler receives failures of ProcessMessage.
type ErrorHandler = runtime.ErrorHandler

// JumpOption configures JumpTo.
type JumpOption = runtime.JumpOption

// WithResetState makes JumpTo clear the conversation state.
var WithResetState = runtime.WithResetState

// Bot is a fully wired engine: flows, sessions, actions, outputs, the
// per-conversation queue and the inactivity janitor.
type Bot struct {
	flows    *flows.Store
	sessions *session.Store
	registry *actions.Registry
	output   *output.Dispatcher
	engine   *runtime.Engine
	queue    *queue.Queue
	janitor  *janitor.Janitor
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires a Bot. Without options it runs on in-memory storage with no flows.
func New(opts ...Option) (*Bot, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.flowStorage == nil {
		o.flowStorage = memory.NewFlowStorage(nil)
	}
	if o.records == nil {
		o.records = memory.NewStore()
	}

	b := &Bot{logger: o.logger}
	b.flows = flows.New(o.flowStorage, flows.WithLogger(o.logger))
	b.sessions = session.NewStore(o.records, session.WithLogger(o.logger))

	b.registry = actions.NewRegistry()
	if err := actions.RegisterBuiltins(b.registry); err != nil {
		return nil, fmt.Errorf("failed to register builtin actions: %w", err)
	}
	if err := b.registry.RegisterAll(o.actions, false); err != nil {
		return nil, fmt.Errorf("failed to register actions: %w", err)
	}

	b.output = output.NewDispatcher(output.WithLogger(o.logger))
	for _, p := range o.processors {
		if err := b.output.Register(p); err != nil {
			return nil, err
		}
	}

	engineOpts := []runtime.Option{
		runtime.WithLogger(o.logger),
		runtime.WithOutput(b.output),
		runtime.WithConditionTimeout(o.conditionTimeout),
		runtime.WithDefaultFlow(o.defaultFlow),
	}
	if o.evaluator != nil {
		engineOpts = append(engineOpts, runtime.WithEvaluator(o.evaluator))
	}
	if o.interpolator != nil {
		engineOpts = append(engineOpts, runtime.WithInterpolator(o.interpolator))
	}
	b.engine = runtime.NewEngine(b.flows, b.sessions, b.registry, engineOpts...)
	b.flows.OnFlowsChanged(b.engine.InvalidateFlows)

	queueOpts := []queue.Option{
		queue.WithLogger(o.logger),
		queue.WithMaxRetries(o.maxRetries),
		queue.WithRetryDelay(o.retryDelay),
	}
	if o.locker != nil {
		queueOpts = append(queueOpts, queue.WithLocker(o.locker, o.lockTTL))
	}

	handler := b.handleJob
	if o.registerer != nil {
		b.metrics = observability.NewMetrics(o.registerer)
		b.metrics.Install(b.engine.Hooks())
		b.engine.OnError(b.metrics.RecordError)
		queueOpts = append(queueOpts, queue.WithDropHandler(b.metrics.RecordDrop))
		handler = b.metrics.InstrumentJobs(handler)
	}
	b.queue = queue.New(queueOpts...)
	b.queue.Subscribe(handler)

	if index, ok := b.sessions.Records().(ports.ActivityIndex); ok && !o.janitorDisabled {
		b.janitor = janitor.New(index, b.sessions, b.queue,
			janitor.WithLogger(o.logger),
			janitor.WithInterval(o.janitorInterval),
			janitor.WithInactivity(o.inactivity),
		)
	}

	return b, nil
}

// handleJob runs one queued event. Engine failures go to the error handlers and
// are not retried: instructions that ran before the failure are not idempotent.
func (b *Bot) handleJob(ctx context.Context, job ports.Job) error {
	b.engine.ProcessMessage(ctx, job.Key, job.Event)
	return nil
}

// Start begins the background work: flow watching (when the storage supports
// it) and the janitor. It returns immediately; Close stops it.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return errors.New("bot already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := b.flows.Watch(ctx); err != nil && !errors.Is(err, flows.ErrWatchUnsupported) {
		cancel()
		return fmt.Errorf("failed to watch flows: %w", err)
	}

	b.cancel = cancel
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		if b.janitor == nil {
			<-ctx.Done()
			return
		}
		if err := b.janitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("Janitor stopped", "err", err)
		}
	}()
	return nil
}

// Close stops the background work and waits for queued events until ctx is done.
func (b *Bot) Close(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return b.queue.Close(ctx)
}

// Send queues an event for the conversation.
func (b *Bot) Send(ctx context.Context, conversationID string, event domain.Event) error {
	return b.queue.Enqueue(ctx, ports.Job{Key: conversationID, Event: event})
}

// Wait blocks until every queued event has been processed.
func (b *Bot) Wait() {
	b.queue.Wait()
}

// ProcessMessage runs an event synchronously, bypassing the queue. Callers
// must not process the same conversation concurrently.
func (b *Bot) ProcessMessage(ctx context.Context, conversationID string, event domain.Event) {
	b.engine.ProcessMessage(ctx, conversationID, event)
}

// JumpTo moves a conversation to a flow and node; it takes effect on the next event.
// It runs on the conversation's queue lane, after the events already queued.
func (b *Bot) JumpTo(ctx context.Context, conversationID, flowName, nodeName string, opts ...JumpOption) error {
	return b.queue.Do(ctx, conversationID, func(ctx context.Context) error {
		return b.engine.JumpTo(ctx, conversationID, flowName, nodeName, opts...)
	})
}

// EndFlow terminates the conversation's flow. Its state is kept.
// Like JumpTo it is serialized with the conversation's events.
func (b *Bot) EndFlow(ctx context.Context, conversationID string) error {
	return b.queue.Do(ctx, conversationID, func(ctx context.Context) error {
		return b.engine.EndFlow(ctx, conversationID)
	})
}

// Position returns where a conversation currently is.
func (b *Bot) Position(ctx context.Context, conversationID string) (domain.Position, error) {
	return b.engine.GetCurrentPosition(ctx, conversationID)
}

// State returns a conversation's state.
func (b *Bot) State(ctx context.Context, conversationID string) (domain.State, error) {
	return b.sessions.GetState(ctx, conversationID)
}

// Flows returns the loaded flow set.
func (b *Bot) Flows(ctx context.Context) ([]domain.Flow, error) {
	return b.engine.Flows(ctx)
}

// SaveFlows replaces the flow set. The engine reloads on the next event.
func (b *Bot) SaveFlows(ctx context.Context, edits []domain.FlowEdit) error {
	return b.flows.SaveFlows(ctx, edits)
}

// OnError registers a handler for processing failures.
func (b *Bot) OnError(fn ErrorHandler) {
	b.engine.OnError(fn)
}

// Hooks returns the lifecycle middleware pipeline.
func (b *Bot) Hooks() *hooks.Pipeline {
	return b.engine.Hooks()
}

// Actions returns the action registry.
func (b *Bot) Actions() *actions.Registry {
	return b.registry
}

// Output returns the output dispatcher.
func (b *Bot) Output() *output.Dispatcher {
	return b.output
}

// Janitor returns the inactivity janitor, or nil when the record store
// cannot list inactive records or the janitor was disabled.
func (b *Bot) Janitor() *janitor.Janitor {
	return b.janitor
}

// Metrics returns the collectors, or nil when WithMetrics was not used.
func (b *Bot) Metrics() *observability.Metrics {
	return b.metrics
}

// options collects what New wires.
type options struct {
	logger           *slog.Logger
	flowStorage      ports.FlowStorage
	records          ports.RecordStore
	locker           ports.DistributedLocker
	lockTTL          time.Duration
	evaluator        ports.ExpressionEvaluator
	interpolator     runtime.Interpolator
	conditionTimeout time.Duration
	defaultFlow      string
	maxRetries       int
	retryDelay       time.Duration
	janitorInterval  time.Duration
	inactivity       time.Duration
	janitorDisabled  bool
	registerer       prometheus.Registerer
	processors       []ports.OutputProcessor
	actions          map[string]actions.Definition
}

func defaultOptions() *options {
	return &options{
		logger:           logging.NewNop(),
		lockTTL:          30 * time.Second,
		conditionTimeout: condition.DefaultTimeout,
		defaultFlow:      domain.DefaultFlow,
		maxRetries:       queue.DefaultMaxRetries,
		janitorInterval:  janitor.DefaultInterval,
		inactivity:       janitor.DefaultInactivity,
		actions:          make(map[string]actions.Definition),
	}
}
