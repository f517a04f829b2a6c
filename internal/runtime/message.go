package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/hooks"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxNodeVisits bounds the nodes a single message may traverse.
// Same-flow loops never grow the flow stack, so they need their own limit.
const maxNodeVisits = domain.MaxStackSize * 10

// turn is the working set of one ProcessMessage call.
type turn struct {
	id      string
	event   domain.Event
	state   domain.State
	flowCtx *domain.Context
	flows   *flowSet
	visits  int
	hops    int // subflow calls and returns
}

// ProcessMessage runs one event through the conversation's flows until the
// flow ends or waits for input. Failures are reported to the OnError handlers;
// whatever was persisted before a failure stays persisted.
func (e *Engine) ProcessMessage(ctx context.Context, id string, event domain.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	ctx, span := e.tracer.Start(ctx, "parley.ProcessMessage", trace.WithAttributes(
		attribute.String("parley.conversation", id),
		attribute.String("parley.event.type", event.Type),
		attribute.String("parley.event.id", event.ID),
	))
	defer span.End()

	if err := e.processMessage(ctx, id, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.handleError(ctx, id, event, err)
	}
}

func (e *Engine) processMessage(ctx context.Context, id string, event domain.Event) error {
	set, err := e.loadFlows(ctx)
	if err != nil {
		return err
	}

	t := &turn{id: id, event: event, flows: set}
	if t.flowCtx, err = e.getOrCreateContext(ctx, t); err != nil {
		return err
	}
	if t.state, err = e.sessions.GetState(ctx, id); err != nil {
		return err
	}

	if event.IsTimeout() {
		if err := e.processTimeout(ctx, t); err != nil {
			return err
		}
		return e.sessions.SetState(ctx, id, t.state)
	}

	e.trace(t, "RECV", "text", truncate(event.Text, 20))

	if err := e.processCatchAll(ctx, t); err != nil {
		return err
	}
	return e.sessions.SetState(ctx, id, t.state)
}

// processCatchAll runs the flow-wide receive instructions, then routes the
// message to the first matching catchAll target or to the current node.
func (e *Engine) processCatchAll(ctx context.Context, t *turn) error {
	catchAll := t.flowCtx.CurrentFlow.CatchAll
	if catchAll != nil && len(catchAll.OnReceive) > 0 {
		e.trace(t, "KALL", "phase", "onReceive")
		if err := e.processInstructions(ctx, t, catchAll.OnReceive); err != nil {
			return err
		}
	}

	if catchAll != nil && len(catchAll.Next) > 0 {
		for _, tr := range catchAll.Next {
			ok, err := e.evaluateCondition(ctx, t, tr.Condition)
			if err != nil {
				return err
			}
			if ok {
				e.trace(t, "KALL", "target", tr.Node)
				return e.processNode(ctx, t, tr.Node)
			}
		}
		e.trace(t, "KALL", "phase", "no match")
	}

	return e.processNode(ctx, t, t.flowCtx.Node)
}

// getOrCreateContext loads the conversation Context, creating it in the
// default flow (or the one a BeforeCreated hook picked) when absent.
func (e *Engine) getOrCreateContext(ctx context.Context, t *turn) (*domain.Context, error) {
	c, err := e.sessions.GetContext(ctx, t.id)
	if err != nil {
		return nil, err
	}
	if c != nil {
		// Persisted contexts carry a copy of their flow; prefer the loaded version.
		if current := t.flows.find(c.FlowName()); current != nil {
			c.CurrentFlow = current
		}
		return c, nil
	}

	hc := &hooks.Context{Stage: hooks.BeforeCreated, ConversationID: t.id, FlowName: e.defaultFlow, Event: &t.event}
	if err := e.pipeline.Run(ctx, hc); err != nil {
		return nil, fmt.Errorf("before created hook: %w", err)
	}

	flow, err := t.flows.mustFind(hc.FlowName)
	if err != nil {
		return nil, err
	}
	c = &domain.Context{
		CurrentFlow: flow,
		FlowStack:   []domain.Frame{{Flow: flow.Name, Node: flow.StartNode}},
	}
	if err := e.sessions.SetContext(ctx, t.id, c); err != nil {
		return nil, err
	}

	after := &hooks.Context{Stage: hooks.AfterCreated, ConversationID: t.id, FlowName: hc.FlowName, Flow: e.hookView(hooks.AfterCreated, c), Event: &t.event}
	if err := e.pipeline.Run(ctx, after); err != nil {
		return nil, fmt.Errorf("after created hook: %w", err)
	}
	return c, nil
}

// processTimeout resolves where an inactive conversation goes: the node's
// timeoutNode, the flow's timeoutNode, a node named "timeout", the timeout
// flow, or the end of the flow.
func (e *Engine) processTimeout(ctx context.Context, t *turn) error {
	hc := &hooks.Context{Stage: hooks.BeforeSessionTimeout, ConversationID: t.id, Flow: e.hookView(hooks.BeforeSessionTimeout, t.flowCtx), Event: &t.event}
	if err := e.pipeline.Run(ctx, hc); err != nil {
		return fmt.Errorf("before session timeout hook: %w", err)
	}

	flow := t.flowCtx.CurrentFlow
	var nodeTimeout string
	if node := flow.FindNode(t.flowCtx.Node); node != nil {
		nodeTimeout = node.TimeoutNode
	}

	switch {
	case nodeTimeout != "":
		e.trace(t, "TIME", "target", nodeTimeout)
		return e.processNode(ctx, t, nodeTimeout)
	case flow.TimeoutNode != "":
		e.trace(t, "TIME", "target", flow.TimeoutNode)
		return e.processNode(ctx, t, flow.TimeoutNode)
	case flow.FindNode(domain.TimeoutNode) != nil:
		e.trace(t, "TIME", "target", domain.TimeoutNode)
		return e.processNode(ctx, t, domain.TimeoutNode)
	case t.flows.find(domain.TimeoutFlow) != nil:
		e.trace(t, "TIME", "target", domain.TimeoutFlow)
		return e.processNode(ctx, t, domain.TimeoutFlow)
	default:
		e.trace(t, "TIME", "target", "")
		return e.endFlow(ctx, t)
	}
}

func (e *Engine) trace(t *turn, op string, args ...any) {
	if !e.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []any{"op", op, "conversation", t.id}
	if t.flowCtx != nil {
		attrs = append(attrs, "flow", t.flowCtx.FlowName(), "node", t.flowCtx.Node)
	}
	e.logger.Debug("Dialog", append(attrs, args...)...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
