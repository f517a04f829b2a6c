package dsl

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
)

// FlowBuilder assembles a domain.Flow.
type FlowBuilder struct {
	flow  domain.Flow
	nodes []*NodeBuilder
	index map[string]*NodeBuilder
}

// NewFlow starts a flow. The first node added becomes the start node unless
// Start says otherwise.
func NewFlow(name string) *FlowBuilder {
	return &FlowBuilder{
		flow:  domain.Flow{Name: name},
		index: make(map[string]*NodeBuilder),
	}
}

// Start sets the start node.
func (b *FlowBuilder) Start(node string) *FlowBuilder {
	b.flow.StartNode = node
	return b
}

// Timeout sets the flow-level timeout node.
func (b *FlowBuilder) Timeout(node string) *FlowBuilder {
	b.flow.TimeoutNode = node
	return b
}

// CatchAll adds a flow-level transition evaluated before the node's own.
func (b *FlowBuilder) CatchAll(condition, target string) *FlowBuilder {
	if b.flow.CatchAll == nil {
		b.flow.CatchAll = &domain.CatchAll{}
	}
	b.flow.CatchAll.Next = append(b.flow.CatchAll.Next, domain.Transition{Condition: condition, Node: target})
	return b
}

// Node adds a node, or returns the existing one with that name.
func (b *FlowBuilder) Node(name string) *NodeBuilder {
	if nb, ok := b.index[name]; ok {
		return nb
	}
	nb := &NodeBuilder{node: domain.Node{Name: name}, flow: b}
	b.nodes = append(b.nodes, nb)
	b.index[name] = nb
	if b.flow.StartNode == "" {
		b.flow.StartNode = name
	}
	return nb
}

// Build returns the flow.
func (b *FlowBuilder) Build() (domain.Flow, error) {
	if b.flow.Name == "" {
		return domain.Flow{}, errors.New("flow name is required")
	}
	if len(b.nodes) == 0 {
		return domain.Flow{}, fmt.Errorf("flow %s has no nodes", b.flow.Name)
	}
	if _, ok := b.index[b.flow.StartNode]; !ok {
		return domain.Flow{}, fmt.Errorf("flow %s: start node %q does not exist", b.flow.Name, b.flow.StartNode)
	}

	flow := b.flow
	flow.Nodes = make([]domain.Node, 0, len(b.nodes))
	for _, nb := range b.nodes {
		flow.Nodes = append(flow.Nodes, nb.node)
	}
	return flow, nil
}

// MustBuild is Build for tests and package-level flow definitions.
func (b *FlowBuilder) MustBuild() domain.Flow {
	flow, err := b.Build()
	if err != nil {
		panic(err)
	}
	return flow
}

// Storage encodes flows into an in-memory flow storage, keyed by flow name.
func Storage(set ...domain.Flow) (*memory.FlowStorage, error) {
	files := make(map[string]string, len(set))
	for _, flow := range set {
		data, err := json.Marshal(flow)
		if err != nil {
			return nil, fmt.Errorf("failed to encode flow %s: %w", flow.Name, err)
		}
		files[flow.Name] = string(data)
	}
	return memory.NewFlowStorage(files), nil
}
