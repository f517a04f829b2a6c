// Package output fans "say" instructions out to the registered output processors.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// Dispatcher holds the registered processors.
type Dispatcher struct {
	mu         sync.RWMutex
	processors []ports.OutputProcessor
	logger     *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a processor. A processor with the same ID replaces the previous one.
func (d *Dispatcher) Register(p ports.OutputProcessor) error {
	if p == nil {
		return errors.New("output processor cannot be nil")
	}
	if p.ID() == "" {
		return errors.New("output processor must have an id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.processors {
		if existing.ID() == p.ID() {
			d.processors[i] = p
			d.logger.Debug("Output processor replaced", "id", p.ID())
			return nil
		}
	}
	d.processors = append(d.processors, p)
	d.logger.Debug("Output processor registered", "id", p.ID())
	return nil
}

// Processors returns the registered processor IDs in registration order.
func (d *Dispatcher) Processors() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, len(d.processors))
	for i, p := range d.processors {
		ids[i] = p.ID()
	}
	return ids
}

// Dispatch sends the request to every processor concurrently and waits for all of them.
// It returns the first error encountered.
func (d *Dispatcher) Dispatch(ctx context.Context, req ports.OutputRequest) error {
	d.mu.RLock()
	processors := append([]ports.OutputProcessor(nil), d.processors...)
	d.mu.RUnlock()

	if len(processors) == 0 {
		d.logger.Warn("No output processor registered, message dropped", "type", req.Message.Type)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range processors {
		g.Go(func() error {
			if err := p.Send(gctx, req); err != nil {
				return fmt.Errorf("output processor %s: %w", p.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
