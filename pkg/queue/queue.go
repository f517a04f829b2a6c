// Package queue delivers conversation events one at a time per conversation.
//
// Jobs with the same Key run strictly in order on a dedicated lane; different
// keys run concurrently. A failed job goes back to the front of its lane until
// it exhausts its retries. An optional DistributedLocker extends the per-key
// guarantee across processes sharing the same session storage.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/google/uuid"
)

// DefaultMaxRetries is how many times a failed job is retried before it is dropped.
const DefaultMaxRetries = 2

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue is closed")

// lane holds the pending jobs of one key. It exists only while it has work.
type lane struct {
	jobs    []entry
	running bool
}

// entry is a queued event job, or a call submitted through Do.
type entry struct {
	job ports.Job

	call    func(ctx context.Context) error
	callCtx context.Context
	done    chan error
}

// Queue is an in-process ports.JobQueue.
type Queue struct {
	mu      sync.Mutex
	idle    *sync.Cond
	lanes   map[string]*lane
	pending int
	closed  bool

	handler    ports.JobHandler
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	maxRetries int
	retryDelay time.Duration
	onDrop     func(job ports.Job, err error)

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// Option configures the Queue.
type Option func(*Queue)

// WithLogger configures a logger for the Queue.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithMaxRetries sets how many times a failed job is retried.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		q.maxRetries = n
	}
}

// WithRetryDelay waits between a failure and its retry.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) {
		q.retryDelay = d
	}
}

// WithLocker serializes each key through a distributed lock held for at most ttl.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(q *Queue) {
		q.locker = locker
		q.lockTTL = ttl
	}
}

// WithDropHandler is called for every job dropped after its last retry.
func WithDropHandler(fn func(job ports.Job, err error)) Option {
	return func(q *Queue) {
		q.onDrop = fn
	}
}

// New creates a Queue. Jobs are held until a handler subscribes.
func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		lanes:      make(map[string]*lane),
		maxRetries: DefaultMaxRetries,
		lockTTL:    30 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logging.NewNop(),
	}
	q.idle = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Subscribe sets the job handler and starts delivering held jobs.
func (q *Queue) Subscribe(handler ports.JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handler = handler
	for key, l := range q.lanes {
		if !l.running && len(l.jobs) > 0 {
			l.running = true
			go q.drain(key)
		}
	}
}

// Enqueue appends the job to its key's lane.
func (q *Queue) Enqueue(ctx context.Context, job ports.Job) error {
	if job.Key == "" {
		return fmt.Errorf("job key is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	q.push(entry{job: job})
	return nil
}

// Do runs fn on key's lane, after the jobs already queued for that key and
// under the distributed lock when one is configured, and returns its error.
// Calls are not retried. If ctx ends before fn starts, fn is skipped.
// Calling Do from a job of the same key deadlocks.
func (q *Queue) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return fmt.Errorf("job key is required")
	}
	done := make(chan error, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.push(entry{
		job:     ports.Job{ID: uuid.NewString(), Key: key, EnqueuedAt: time.Now()},
		call:    fn,
		callCtx: ctx,
		done:    done,
	})
	q.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// push appends to the entry's lane and starts draining it. Callers hold q.mu.
func (q *Queue) push(e entry) {
	key := e.job.Key
	l, ok := q.lanes[key]
	if !ok {
		l = &lane{}
		q.lanes[key] = l
	}
	l.jobs = append(l.jobs, e)
	q.pending++

	if !l.running && q.handler != nil {
		l.running = true
		go q.drain(key)
	}
}

// Len returns the number of jobs not yet completed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Wait blocks until every enqueued job has completed or been dropped.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 && q.handler != nil {
		q.idle.Wait()
	}
}

// Close stops accepting jobs and waits for the queued ones until ctx is done.
// Jobs still running when ctx expires see their context canceled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()

	defer q.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs the jobs of one lane in order until it is empty.
func (q *Queue) drain(key string) {
	for {
		q.mu.Lock()
		l := q.lanes[key]
		if l == nil || len(l.jobs) == 0 || q.handler == nil {
			if l != nil {
				l.running = false
				if len(l.jobs) == 0 {
					delete(q.lanes, key)
				}
			}
			q.mu.Unlock()
			return
		}
		e := l.jobs[0]
		l.jobs = l.jobs[1:]
		handler := q.handler
		q.mu.Unlock()

		if e.call != nil {
			e.done <- q.runCall(e)
			q.mu.Lock()
			q.pending--
			if q.pending == 0 {
				q.idle.Broadcast()
			}
			q.mu.Unlock()
			continue
		}

		job := e.job
		err := q.run(job.Key, func(ctx context.Context) error { return handler(ctx, job) })

		q.mu.Lock()
		if err != nil && job.Attempts < q.maxRetries {
			job.Attempts++
			l.jobs = append([]entry{{job: job}}, l.jobs...)
			q.mu.Unlock()
			q.logger.Warn("Job failed, retrying", "job", job.ID, "key", key, "attempt", job.Attempts, "err", err)
			if q.retryDelay > 0 {
				select {
				case <-time.After(q.retryDelay):
				case <-q.ctx.Done():
				}
			}
			continue
		}
		q.pending--
		if q.pending == 0 {
			q.idle.Broadcast()
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Error("Job dropped after retries", "job", job.ID, "key", key, "attempts", job.Attempts+1, "err", err)
			if q.onDrop != nil {
				q.onDrop(job, err)
			}
		}
	}
}

// runCall runs a Do call with the caller's context.
func (q *Queue) runCall(e entry) error {
	if err := e.callCtx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(e.callCtx)
	defer cancel()
	stop := context.AfterFunc(q.ctx, cancel)
	defer stop()
	return q.runWith(ctx, e.job.Key, e.call)
}

func (q *Queue) run(key string, fn func(ctx context.Context) error) error {
	return q.runWith(q.ctx, key, fn)
}

func (q *Queue) runWith(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	if q.locker != nil {
		unlock, lockErr := q.locker.Lock(ctx, "conversation:"+key, q.lockTTL)
		if lockErr != nil {
			return fmt.Errorf("failed to lock %s: %w", key, lockErr)
		}
		defer func() {
			if unlockErr := unlock(context.WithoutCancel(ctx)); unlockErr != nil {
				q.logger.Error("Failed to release lock", "key", key, "err", unlockErr)
			}
		}()
	}
	return fn(ctx)
}
