package parley

import (
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures New.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFlowStorage sets where flows are loaded from and saved to.
func WithFlowStorage(storage ports.FlowStorage) Option {
	return func(o *options) {
		o.flowStorage = storage
	}
}

// WithRecordStore sets where conversation state and context are persisted.
// The janitor only runs when the store also implements ports.ActivityIndex.
func WithRecordStore(records ports.RecordStore) Option {
	return func(o *options) {
		o.records = records
	}
}

// WithLocker serializes conversations across processes sharing the record store.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(o *options) {
		o.locker = locker
		o.lockTTL = ttl
	}
}

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(ev ports.ExpressionEvaluator) Option {
	return func(o *options) {
		o.evaluator = ev
	}
}

// WithInterpolator replaces the renderer of "{{ }}" segments in action arguments.
func WithInterpolator(fn func(tmpl string, bindings map[string]any) (string, error)) Option {
	return func(o *options) {
		o.interpolator = runtime.Interpolator(fn)
	}
}

// WithConditionTimeout bounds each condition evaluation.
func WithConditionTimeout(d time.Duration) Option {
	return func(o *options) {
		o.conditionTimeout = d
	}
}

// WithDefaultFlow changes the flow new conversations start in.
func WithDefaultFlow(name string) Option {
	return func(o *options) {
		o.defaultFlow = name
	}
}

// WithRetries sets how often a failed job is retried and the pause between attempts.
func WithRetries(n int, delay time.Duration) Option {
	return func(o *options) {
		o.maxRetries = n
		o.retryDelay = delay
	}
}

// WithJanitor sets how often inactive conversations are swept and after how
// long a conversation counts as inactive.
func WithJanitor(interval, inactivity time.Duration) Option {
	return func(o *options) {
		o.janitorInterval = interval
		o.inactivity = inactivity
	}
}

// WithoutJanitor disables inactivity timeouts.
func WithoutJanitor() Option {
	return func(o *options) {
		o.janitorDisabled = true
	}
}

// WithMetrics registers Prometheus collectors with reg and instruments the engine.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithOutput registers an output processor.
func WithOutput(p ports.OutputProcessor) Option {
	return func(o *options) {
		o.processors = append(o.processors, p)
	}
}

// WithAction registers a custom action.
func WithAction(name string, fn actions.Handler) Option {
	return func(o *options) {
		o.actions[name] = actions.Definition{Handler: fn}
	}
}

// WithActions registers several custom actions with their metadata.
func WithActions(defs map[string]actions.Definition) Option {
	return func(o *options) {
		for name, def := range defs {
			o.actions[name] = def
		}
	}
}
