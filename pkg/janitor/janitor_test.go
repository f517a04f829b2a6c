package janitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/janitor"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobSink struct {
	mu   sync.Mutex
	jobs []ports.Job
}

func (s *jobSink) Enqueue(ctx context.Context, job ports.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *jobSink) Subscribe(handler ports.JobHandler) {}

func (s *jobSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestJanitor_Sweep(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clk := &clock{now: t0}

	records := memory.NewStore(memory.WithClock(clk.Now))
	sessions := session.NewStore(records)
	flow := &domain.Flow{Name: "main.flow.json", StartNode: "a", Nodes: []domain.Node{{Name: "a"}}}

	// u1: active flow, silent. u2: no flow. u3: active flow, recently touched.
	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, sessions.SetState(ctx, id, nil))
	}
	require.NoError(t, sessions.SetContext(ctx, "u1", &domain.Context{CurrentFlow: flow, Node: "a"}))
	require.NoError(t, sessions.SetContext(ctx, "u3", &domain.Context{CurrentFlow: flow, Node: "a"}))

	clk.Set(t0.Add(150 * time.Second))
	require.NoError(t, sessions.SetState(ctx, "u3", map[string]any{"touched": true}))

	clk.Set(t0.Add(3 * time.Minute))
	sink := &jobSink{}
	j := janitor.New(records, sessions, sink, janitor.WithInactivity(2*time.Minute), janitor.WithClock(clk.Now))

	fired, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, fired)
	require.Equal(t, 1, sink.len())
	assert.Equal(t, "u1", sink.jobs[0].Key)
	assert.True(t, sink.jobs[0].Event.IsTimeout())
	assert.NotEmpty(t, sink.jobs[0].Event.ID)

	fired, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, fired, "not fired twice within the window")

	clk.Set(t0.Add(10 * time.Minute))
	fired, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u3"}, fired)
}

func TestJanitor_RunStopsWithContext(t *testing.T) {
	records := memory.NewStore()
	j := janitor.New(records, session.NewStore(records), &jobSink{}, janitor.WithInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, j.Run(ctx), context.DeadlineExceeded)
}
