package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// flowSet is an immutable snapshot of the loaded flows.
type flowSet struct {
	flows  []domain.Flow
	byName map[string]*domain.Flow
}

func newFlowSet(list []domain.Flow) *flowSet {
	s := &flowSet{
		flows:  list,
		byName: make(map[string]*domain.Flow, len(list)),
	}
	for i := range s.flows {
		s.byName[s.flows[i].Name] = &s.flows[i]
	}
	return s
}

func (s *flowSet) find(name string) *domain.Flow {
	return s.byName[name]
}

// mustFind returns the flow or a LookupError.
func (s *flowSet) mustFind(name string) (*domain.Flow, error) {
	if f := s.find(name); f != nil {
		return f, nil
	}
	return nil, &domain.LookupError{Kind: "flow", Name: name}
}

// loadFlows returns the cached flow set, loading it on first use.
func (e *Engine) loadFlows(ctx context.Context) (*flowSet, error) {
	if set := e.flowSet.Load(); set != nil {
		return set, nil
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if set := e.flowSet.Load(); set != nil {
		return set, nil
	}

	e.cacheMu.Lock()
	version := e.version
	e.cacheMu.Unlock()

	e.logger.Debug("Dialog", "op", "LOAD")
	list, err := e.source.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load flows: %w", err)
	}
	set := newFlowSet(list)

	e.cacheMu.Lock()
	if e.version == version {
		e.flowSet.Store(set)
	} else {
		e.logger.Debug("Flows changed while loading, snapshot not cached")
	}
	e.cacheMu.Unlock()

	return set, nil
}

// InvalidateFlows drops the cached flows and compiled conditions.
// The next message reloads them.
func (e *Engine) InvalidateFlows() {
	e.cacheMu.Lock()
	e.version++
	e.flowSet.Store(nil)
	e.cacheMu.Unlock()

	e.condMu.Lock()
	e.conditions = make(map[string]ports.CompiledExpr)
	e.condMu.Unlock()
}

// Flows returns the loaded flow set.
func (e *Engine) Flows(ctx context.Context) ([]domain.Flow, error) {
	set, err := e.loadFlows(ctx)
	if err != nil {
		return nil, err
	}
	return append([]domain.Flow(nil), set.flows...), nil
}

// compile returns the compiled form of source, compiling it once per flow generation.
func (e *Engine) compile(source string) (ports.CompiledExpr, error) {
	e.condMu.Lock()
	defer e.condMu.Unlock()

	if c, ok := e.conditions[source]; ok {
		return c, nil
	}
	c, err := e.evaluator.Compile(source)
	if err != nil {
		return nil, err
	}
	e.conditions[source] = c
	return c, nil
}
