package observability_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/flows"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const mainFlow = `{
  "startNode": "ask",
  "nodes": [
    {"name": "ask", "onReceive": [], "next": [{"condition": "event.text == \"bye\"", "node": "end"}]}
  ]
}`

func newEngine(t *testing.T, opts ...runtime.Option) *runtime.Engine {
	t.Helper()
	store := flows.New(memory.NewFlowStorage(map[string]string{"main.flow.json": mainFlow}))
	return runtime.NewEngine(store, session.NewStore(memory.NewStore()), nil, opts...)
}

func TestMetrics_EngineLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	engine := newEngine(t)
	m.Install(engine.Hooks())
	engine.OnError(m.RecordError)
	ctx := context.Background()

	engine.ProcessMessage(ctx, "u1", domain.Event{Type: "text", Text: "hi"})
	engine.ProcessMessage(ctx, "u1", domain.Event{Type: "text", Text: "bye"})
	engine.ProcessMessage(ctx, "u2", domain.Event{Type: "text", Text: "hi"})
	engine.ProcessMessage(ctx, "u2", domain.Event{Type: domain.EventTypeTimeout})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlowsStarted.WithLabelValues("main.flow.json")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodeEntries.WithLabelValues("main.flow.json", "ask")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlowsEnded.WithLabelValues("main.flow.json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Timeouts))
	assert.Zero(t, testutil.CollectAndCount(m.Errors))
}

func TestMetrics_Errors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.RecordError(context.Background(), "u1", domain.Event{}, fmt.Errorf("wrapped: %w", &domain.StackOverflowError{Depth: 100}))
	m.RecordError(context.Background(), "u1", domain.Event{}, &domain.ActionError{Action: "x", Err: errors.New("boom")})
	m.RecordError(context.Background(), "u1", domain.Event{}, &domain.LookupError{Kind: "flow", Name: "x"})
	m.RecordError(context.Background(), "u1", domain.Event{}, errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("stack_overflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("action")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("internal")))
	assert.Equal(t, "condition", observability.ErrorKind(&domain.ConditionEvaluationError{Condition: "x", Err: errors.New("y")}))
	assert.Equal(t, "validation", observability.ErrorKind(&domain.InvalidStateError{Got: "int"}))
	assert.Equal(t, "loop", observability.ErrorKind(&domain.LoopError{Visits: 1001}))
}

func TestMetrics_Jobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	handler := m.InstrumentJobs(func(ctx context.Context, job ports.Job) error {
		if job.Event.Text == "fail" {
			return errors.New("nope")
		}
		return nil
	})
	ctx := context.Background()
	require.NoError(t, handler(ctx, ports.Job{Key: "u1", Event: domain.Event{Type: "text"}}))
	require.Error(t, handler(ctx, ports.Job{Key: "u1", Event: domain.Event{Type: "text", Text: "fail"}}))
	m.RecordDrop(ports.Job{}, errors.New("nope"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("text", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("text", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MessageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsDropped))
}

func TestMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.NewMetrics(reg)
	assert.Panics(t, func() { observability.NewMetrics(reg) })
}

func TestTracing_EngineSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	engine := runtime.NewEngine(
		flows.New(memory.NewFlowStorage(map[string]string{})),
		session.NewStore(memory.NewStore()),
		nil,
		runtime.WithTracer(tp.Tracer("test")),
	)
	engine.ProcessMessage(context.Background(), "u1", domain.Event{Type: "text", Text: "hi"})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "parley.ProcessMessage", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1, "the missing default flow is recorded on the span")
}
