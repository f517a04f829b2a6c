package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/flows"
	"github.com/aretw0/parley/pkg/hooks"
)

// processNode moves the conversation to target and runs it.
//
// target is classified in order: subflow call, "#" return, a node other than
// the current one, or the current node (the start node when none is set).
func (e *Engine) processNode(ctx context.Context, t *turn, target string) error {
	t.visits++
	c := t.flowCtx
	if t.visits > maxNodeVisits {
		return &domain.LoopError{Visits: t.visits, Flow: c.FlowName(), Node: c.Node}
	}

	switchedFlow := false
	switchedNode := c.HasJumped
	c.HasJumped = false
	originalFlow := c.FlowName()

	if flowName, nodeName, ok := flows.ParseSubflowTarget(target); ok {
		e.trace(t, "FLOW", "target", target)
		if err := e.countHop(t, target); err != nil {
			return err
		}
		if err := e.gotoSubflow(t, flowName, nodeName); err != nil {
			return err
		}
		switchedFlow = true
	} else if strings.HasPrefix(target, domain.ReturnPrefix) {
		e.trace(t, "FLOW", "target", target)
		if err := e.countHop(t, target); err != nil {
			return err
		}
		if err := e.gotoPreviousFlow(t, target); err != nil {
			return err
		}
		switchedFlow = true
	} else if c.Node != target {
		e.trace(t, "FLOW", "target", target)
		c.Node = target
		switchedNode = true
	} else if c.Node == "" {
		c.Node = c.CurrentFlow.StartNode
		switchedNode = true
	}

	node := c.CurrentFlow.FindNode(c.Node)
	if node == nil {
		e.logger.Warn("Node not found, ending flow", "conversation", t.id, "flow", c.FlowName(), "node", c.Node)
		return e.endFlow(ctx, t)
	}

	if !switchedFlow && !switchedNode {
		if len(node.OnReceive) > 0 {
			e.trace(t, "RECV", "phase", "onReceive")
			if err := e.processInstructions(ctx, t, node.OnReceive); err != nil {
				return err
			}
		}
		return e.leaveNode(ctx, t, node, originalFlow)
	}

	c.FlowStack = domain.CoalesceFrames(append(c.FlowStack, domain.Frame{Flow: c.FlowName(), Node: c.Node}))
	if len(c.FlowStack) >= domain.MaxStackSize {
		return &domain.StackOverflowError{Depth: len(c.FlowStack), Flow: c.FlowName(), Node: c.Node}
	}
	if err := e.sessions.SetContext(ctx, t.id, c); err != nil {
		return err
	}

	if flow := e.hookView(hooks.BeforeNodeEnter, c); flow != nil {
		hc := &hooks.Context{Stage: hooks.BeforeNodeEnter, ConversationID: t.id, Node: node.Clone(), Flow: flow, Event: &t.event}
		if err := e.pipeline.Run(ctx, hc); err != nil {
			return fmt.Errorf("before node enter hook: %w", err)
		}
	}

	if len(node.OnEnter) > 0 {
		e.trace(t, "ENTR", "instructions", len(node.OnEnter))
		if err := e.processInstructions(ctx, t, node.OnEnter); err != nil {
			return err
		}
	}

	if node.OnReceive != nil {
		// Wait for the next message.
		return nil
	}
	e.trace(t, "NOWT")
	return e.leaveNode(ctx, t, node, originalFlow)
}

// leaveNode delegates a skill-call node to its flow, or follows transitions.
func (e *Engine) leaveNode(ctx context.Context, t *turn, node *domain.Node, originalFlow string) error {
	if node.IsSkillCall() && originalFlow != node.Flow {
		return e.processNode(ctx, t, node.Flow)
	}
	return e.transitionToNextNodes(ctx, t, node)
}

// transitionToNextNodes follows the first transition whose condition holds.
// A node without transitions ends the flow; one with no match waits.
func (e *Engine) transitionToNextNodes(ctx context.Context, t *turn, node *domain.Node) error {
	if len(node.Next) == 0 {
		return e.endFlow(ctx, t)
	}

	for _, tr := range node.Next {
		ok, err := e.evaluateCondition(ctx, t, tr.Condition)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		e.trace(t, "MTCH", "condition", tr.Condition, "target", tr.Node)
		if domain.IsEndTarget(tr.Node) {
			return e.endFlow(ctx, t)
		}
		return e.processNode(ctx, t, tr.Node)
	}
	return nil
}

// countHop bounds the subflow calls and returns of one message. Calls into
// the current flow coalesce on the stack, so its depth alone cannot stop them.
func (e *Engine) countHop(t *turn, target string) error {
	t.hops++
	if t.hops >= domain.MaxStackSize {
		return &domain.StackOverflowError{Depth: t.hops, Flow: t.flowCtx.FlowName(), Node: target}
	}
	return nil
}

func (e *Engine) gotoSubflow(t *turn, flowName, nodeName string) error {
	flow, err := t.flows.mustFind(flowName)
	if err != nil {
		return err
	}
	if nodeName == "" {
		nodeName = flow.StartNode
	}
	t.flowCtx.CurrentFlow = flow
	t.flowCtx.Node = nodeName
	return nil
}

// gotoPreviousFlow returns to the caller of the current flow. "#node" returns
// to that node of the caller instead of the one it left from.
func (e *Engine) gotoPreviousFlow(t *turn, target string) error {
	c := t.flowCtx
	current := c.FlowName()
	stack := append([]domain.Frame(nil), c.FlowStack...)
	for len(stack) > 0 && stack[len(stack)-1].Flow == current {
		stack = stack[:len(stack)-1]
	}
	c.FlowStack = stack

	if len(stack) == 0 {
		e.logger.Warn("No previous flow to return to", "conversation", t.id, "flow", current, "target", target)
		return nil
	}

	frame := stack[len(stack)-1]
	flow, err := t.flows.mustFind(frame.Flow)
	if err != nil {
		return err
	}
	node := frame.Node
	if rest := strings.TrimPrefix(target, domain.ReturnPrefix); rest != "" {
		node = rest
	}
	c.CurrentFlow = flow
	c.Node = node
	return nil
}

// endFlow runs the BeforeEnd hook and deletes the conversation Context. State is kept.
func (e *Engine) endFlow(ctx context.Context, t *turn) error {
	hc := &hooks.Context{Stage: hooks.BeforeEnd, ConversationID: t.id, Flow: e.hookView(hooks.BeforeEnd, t.flowCtx), Event: &t.event}
	if err := e.pipeline.Run(ctx, hc); err != nil {
		return fmt.Errorf("before end hook: %w", err)
	}

	e.trace(t, "ENDF")
	return e.sessions.DeleteContext(ctx, t.id)
}
