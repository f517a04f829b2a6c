// Package janitor finds inactive conversations and enqueues timeout events for them.
package janitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/google/uuid"
)

const (
	// DefaultInterval is how often Run sweeps.
	DefaultInterval = 10 * time.Second
	// DefaultInactivity is how long a conversation may stay silent before it times out.
	DefaultInactivity = 2 * time.Minute
)

// Janitor sweeps an ActivityIndex for conversations with an active flow that
// have not been touched for the inactivity period.
type Janitor struct {
	index    ports.ActivityIndex
	sessions *session.Store
	queue    ports.JobQueue

	interval   time.Duration
	inactivity time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu    sync.Mutex
	fired map[string]time.Time
}

// Option configures the Janitor.
type Option func(*Janitor)

// WithLogger configures a logger for the Janitor.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithInterval sets the sweep period of Run.
func WithInterval(d time.Duration) Option {
	return func(j *Janitor) {
		j.interval = d
	}
}

// WithInactivity sets the silence after which a conversation times out.
func WithInactivity(d time.Duration) Option {
	return func(j *Janitor) {
		j.inactivity = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// New creates a Janitor.
func New(index ports.ActivityIndex, sessions *session.Store, queue ports.JobQueue, opts ...Option) *Janitor {
	j := &Janitor{
		index:      index,
		sessions:   sessions,
		queue:      queue,
		interval:   DefaultInterval,
		inactivity: DefaultInactivity,
		now:        time.Now,
		logger:     logging.NewNop(),
		fired:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.Error("Janitor sweep failed", "err", err)
			}
		}
	}
}

// Sweep enqueues one timeout event per inactive conversation and returns their ids.
// A conversation is not fired again within the same inactivity window.
func (j *Janitor) Sweep(ctx context.Context) ([]string, error) {
	now := j.now()
	cutoff := now.Add(-j.inactivity)

	ids, err := j.index.ListInactive(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for id, at := range j.fired {
		if at.Before(cutoff) {
			delete(j.fired, id)
		}
	}

	var enqueued []string
	for _, id := range ids {
		if strings.Contains(id, domain.SubkeySeparator) {
			continue
		}
		if _, recent := j.fired[id]; recent {
			continue
		}

		c, err := j.sessions.GetContext(ctx, id)
		if err != nil {
			j.logger.Warn("Failed to read context", "conversation", id, "err", err)
			continue
		}
		if c == nil {
			continue
		}

		job := ports.Job{
			Key:   id,
			Event: domain.Event{ID: uuid.NewString(), Type: domain.EventTypeTimeout},
		}
		if err := j.queue.Enqueue(ctx, job); err != nil {
			return enqueued, err
		}
		j.fired[id] = now
		enqueued = append(enqueued, id)
		j.logger.Debug("Conversation timed out", "conversation", id, "flow", c.FlowName(), "node", c.Node)
	}
	return enqueued, nil
}
