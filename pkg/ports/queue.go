package ports

import (
	"context"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// Job carries one event for one conversation through a JobQueue.
type Job struct {
	ID         string       `json:"id"`
	Key        string       `json:"key"`
	Event      domain.Event `json:"event"`
	Attempts   int          `json:"attempts"`
	EnqueuedAt time.Time    `json:"enqueuedAt"`
}

// JobHandler processes a job. A returned error makes the queue retry it.
type JobHandler func(ctx context.Context, job Job) error

// JobQueue delivers jobs sequentially per Key, with bounded retries.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	Subscribe(handler JobHandler)
}
