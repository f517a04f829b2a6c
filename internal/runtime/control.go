package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
)

type jumpOptions struct {
	resetState bool
}

// JumpOption configures JumpTo.
type JumpOption func(*jumpOptions)

// WithResetState clears the conversation state as part of the jump.
func WithResetState() JumpOption {
	return func(o *jumpOptions) {
		o.resetState = true
	}
}

// JumpTo moves a conversation to flow (at node, or its start node when empty),
// replacing any active Context. It does not process anything: the node's
// onEnter runs on the next message.
func (e *Engine) JumpTo(ctx context.Context, id, flowName, nodeName string, opts ...JumpOption) error {
	var o jumpOptions
	for _, opt := range opts {
		opt(&o)
	}

	set, err := e.loadFlows(ctx)
	if err != nil {
		return err
	}
	flow, err := set.mustFind(flowName)
	if err != nil {
		return err
	}
	if nodeName == "" {
		nodeName = flow.StartNode
	} else if flow.FindNode(nodeName) == nil {
		return &domain.LookupError{Kind: "node", Name: nodeName, Flow: flowName}
	}

	c := &domain.Context{
		CurrentFlow: flow,
		Node:        nodeName,
		HasJumped:   true,
		FlowStack:   []domain.Frame{{Flow: flow.Name, Node: nodeName}},
	}
	if err := e.sessions.SetContext(ctx, id, c); err != nil {
		return err
	}
	e.logger.Debug("Dialog", "op", "JUMP", "conversation", id, "flow", flowName, "node", nodeName, "reset", o.resetState)

	if o.resetState {
		return e.sessions.SetState(ctx, id, domain.NewState())
	}
	return nil
}

// EndFlow ends the active flow of a conversation, if any. State is kept.
func (e *Engine) EndFlow(ctx context.Context, id string) error {
	c, err := e.sessions.GetContext(ctx, id)
	if err != nil {
		return err
	}
	hc := &hooks.Context{Stage: hooks.BeforeEnd, ConversationID: id, Flow: e.hookView(hooks.BeforeEnd, c)}
	if err := e.pipeline.Run(ctx, hc); err != nil {
		return fmt.Errorf("before end hook: %w", err)
	}
	e.logger.Debug("Dialog", "op", "ENDF", "conversation", id)
	return e.sessions.DeleteContext(ctx, id)
}

// GetCurrentPosition returns the conversation's flow and node. Both are empty
// when no flow is active.
func (e *Engine) GetCurrentPosition(ctx context.Context, id string) (domain.Position, error) {
	c, err := e.sessions.GetContext(ctx, id)
	if err != nil {
		return domain.Position{}, err
	}
	if c == nil {
		return domain.Position{}, nil
	}
	return domain.Position{Flow: c.FlowName(), Node: c.Node}, nil
}
