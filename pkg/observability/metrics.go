package observability

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine collectors.
type Metrics struct {
	Messages        *prometheus.CounterVec
	MessageDuration *prometheus.HistogramVec
	FlowsStarted    *prometheus.CounterVec
	FlowsEnded      *prometheus.CounterVec
	NodeEntries     *prometheus.CounterVec
	Timeouts        prometheus.Counter
	Errors          *prometheus.CounterVec
	JobsDropped     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer in production, a fresh registry in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_total",
			Help: "Events processed, by event type and handler status",
		}, []string{"event_type", "status"}),
		MessageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parley_message_duration_seconds",
			Help:    "Time spent processing one event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"event_type"}),
		FlowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_flows_started_total",
			Help: "Conversations started, by initial flow",
		}, []string{"flow"}),
		FlowsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_flows_ended_total",
			Help: "Flows ended, by the flow active at the end",
		}, []string{"flow"}),
		NodeEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_node_entries_total",
			Help: "Node entries, by flow and node",
		}, []string{"flow", "node"}),
		Timeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_session_timeouts_total",
			Help: "Timeout events processed",
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_errors_total",
			Help: "Engine failures, by kind",
		}, []string{"kind"}),
		JobsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_jobs_dropped_total",
			Help: "Jobs dropped after exhausting their retries",
		}),
	}
}

// Install registers counting middleware on every lifecycle stage it observes.
func (m *Metrics) Install(p *hooks.Pipeline) {
	p.Use(hooks.AfterCreated, func(ctx context.Context, hc *hooks.Context, next hooks.Next) error {
		m.FlowsStarted.WithLabelValues(hc.FlowName).Inc()
		return next()
	})
	p.Use(hooks.BeforeNodeEnter, func(ctx context.Context, hc *hooks.Context, next hooks.Next) error {
		m.NodeEntries.WithLabelValues(hc.Flow.FlowName(), hc.Node.Name).Inc()
		return next()
	})
	p.Use(hooks.BeforeSessionTimeout, func(ctx context.Context, hc *hooks.Context, next hooks.Next) error {
		m.Timeouts.Inc()
		return next()
	})
	p.Use(hooks.BeforeEnd, func(ctx context.Context, hc *hooks.Context, next hooks.Next) error {
		m.FlowsEnded.WithLabelValues(hc.Flow.FlowName()).Inc()
		return next()
	})
}

// RecordError counts an engine failure. Its signature matches the engine's error handlers.
func (m *Metrics) RecordError(ctx context.Context, conversationID string, event domain.Event, err error) {
	m.Errors.WithLabelValues(ErrorKind(err)).Inc()
}

// RecordDrop counts a dropped job. Its signature matches the queue's drop handler.
func (m *Metrics) RecordDrop(job ports.Job, err error) {
	m.JobsDropped.Inc()
}

// InstrumentJobs wraps a job handler with message count and duration metrics.
func (m *Metrics) InstrumentJobs(next ports.JobHandler) ports.JobHandler {
	return func(ctx context.Context, job ports.Job) error {
		start := time.Now()
		err := next(ctx, job)

		status := "ok"
		if err != nil {
			status = "error"
		}
		m.Messages.WithLabelValues(job.Event.Type, status).Inc()
		m.MessageDuration.WithLabelValues(job.Event.Type).Observe(time.Since(start).Seconds())
		return err
	}
}

// ErrorKind classifies an error by the domain error it wraps.
func ErrorKind(err error) string {
	var (
		overflow *domain.StackOverflowError
		loop     *domain.LoopError
		cond     *domain.ConditionEvaluationError
		action   *domain.ActionError
	)
	switch {
	case errors.As(err, &overflow):
		return "stack_overflow"
	case errors.As(err, &loop):
		return "loop"
	case errors.As(err, &cond):
		return "condition"
	case errors.As(err, &action):
		return "action"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
