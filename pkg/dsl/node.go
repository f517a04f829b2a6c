package dsl

import (
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

// NodeBuilder configures one node. Node and Build on it continue with the flow.
type NodeBuilder struct {
	node domain.Node
	flow *FlowBuilder
}

// Say adds a text message to onEnter.
func (n *NodeBuilder) Say(text string) *NodeBuilder {
	return n.Do("say text " + text)
}

// Do adds raw onEnter instructions, e.g. `setVariable {"name": "x", "value": 1}`.
func (n *NodeBuilder) Do(instructions ...string) *NodeBuilder {
	n.node.OnEnter = append(n.node.OnEnter, instructions...)
	return n
}

// Wait makes the node park after onEnter until the next event.
func (n *NodeBuilder) Wait() *NodeBuilder {
	if n.node.OnReceive == nil {
		n.node.OnReceive = []string{}
	}
	return n
}

// Receive adds onReceive instructions. The node waits for input.
func (n *NodeBuilder) Receive(instructions ...string) *NodeBuilder {
	n.Wait()
	n.node.OnReceive = append(n.node.OnReceive, instructions...)
	return n
}

// Go adds an unconditional transition.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.Branch("true", target)
}

// Branch adds a conditional transition.
func (n *NodeBuilder) Branch(condition, target string) *NodeBuilder {
	n.node.Next = append(n.node.Next, domain.Transition{Condition: condition, Node: target})
	return n
}

// Call transitions into another flow, at its start node when node is empty.
func (n *NodeBuilder) Call(flow, node string) *NodeBuilder {
	if node == "" {
		return n.Go(flow)
	}
	return n.Go(fmt.Sprintf("%s @ %s", flow, node))
}

// Return goes back to the calling flow, at node when given.
func (n *NodeBuilder) Return(node string) *NodeBuilder {
	return n.Go(domain.ReturnPrefix + node)
}

// End terminates the flow.
func (n *NodeBuilder) End() *NodeBuilder {
	return n.Go(domain.EndTarget)
}

// Timeout sets the node's own timeout target.
func (n *NodeBuilder) Timeout(target string) *NodeBuilder {
	n.node.TimeoutNode = target
	return n
}

// Skill turns the node into a call to a generated skill flow.
func (n *NodeBuilder) Skill(flow string) *NodeBuilder {
	n.node.Type = domain.NodeTypeSkillCall
	n.node.Flow = flow
	return n
}

// Node continues with another node of the same flow.
func (n *NodeBuilder) Node(name string) *NodeBuilder {
	return n.flow.Node(name)
}

// Build builds the enclosing flow.
func (n *NodeBuilder) Build() (domain.Flow, error) {
	return n.flow.Build()
}

// MustBuild builds the enclosing flow or panics.
func (n *NodeBuilder) MustBuild() domain.Flow {
	return n.flow.MustBuild()
}
