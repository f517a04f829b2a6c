// Package hooks implements the lifecycle middleware pipeline of the flow engine.
//
// Each Stage owns an ordered chain of middleware. A middleware receives the
// hook Context and a next function; not calling next stops the chain.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Stage identifies a lifecycle point.
type Stage string

const (
	// BeforeCreated runs before a new Context is built. Middleware may change FlowName.
	BeforeCreated Stage = "before_created"
	// AfterCreated runs once the new Context is persisted.
	AfterCreated Stage = "after_created"
	// BeforeEnd runs before the Context of an ending flow is deleted.
	BeforeEnd Stage = "before_end"
	// BeforeNodeEnter runs before onEnter instructions of a node.
	BeforeNodeEnter Stage = "before_node_enter"
	// BeforeSessionTimeout runs before the timeout resolution chain.
	BeforeSessionTimeout Stage = "before_session_timeout"
)

// Stages lists every stage in lifecycle order.
var Stages = []Stage{BeforeCreated, AfterCreated, BeforeNodeEnter, BeforeSessionTimeout, BeforeEnd}

// Context is what middleware receive.
type Context struct {
	Stage          Stage
	ConversationID string

	// FlowName is the flow a new conversation starts in (BeforeCreated, AfterCreated).
	FlowName string

	// Node is a copy of the node about to be entered (BeforeNodeEnter).
	Node *domain.Node

	// Flow is a copy of the conversation's execution context, when one exists.
	// Changing it, or the flow it carries, does not move the conversation.
	Flow *domain.Context

	Event *domain.Event
}

// Next continues the chain.
type Next func() error

// Middleware is one link of a chain.
type Middleware func(ctx context.Context, hc *Context, next Next) error

// Pipeline holds one chain per stage. Safe for concurrent use.
type Pipeline struct {
	mu     sync.RWMutex
	chains map[Stage][]Middleware
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{chains: make(map[Stage][]Middleware)}
}

// Use appends middleware to a stage.
func (p *Pipeline) Use(stage Stage, mw ...Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chains[stage] = append(p.chains[stage], mw...)
}

// Len returns the number of middleware registered for a stage.
func (p *Pipeline) Len(stage Stage) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.chains[stage])
}

// Run executes the chain for hc.Stage. An error from any middleware aborts the chain.
func (p *Pipeline) Run(ctx context.Context, hc *Context) error {
	p.mu.RLock()
	chain := append([]Middleware(nil), p.chains[hc.Stage]...)
	p.mu.RUnlock()

	var step func(i int) error
	step = func(i int) error {
		if i >= len(chain) {
			return nil
		}
		called := false
		err := chain[i](ctx, hc, func() error {
			if called {
				return fmt.Errorf("%s middleware %d called next twice", hc.Stage, i)
			}
			called = true
			return step(i + 1)
		})
		return err
	}
	return step(0)
}
