package domain

// Frame is one entry of the flow stack.
type Frame struct {
	Flow string `json:"flow"`
	Node string `json:"node"`
}

// Context is a conversation's execution position. It is persisted apart from State.
type Context struct {
	CurrentFlow *Flow   `json:"currentFlow"`
	Node        string  `json:"node,omitempty"`
	FlowStack   []Frame `json:"flowStack"`
	HasJumped   bool    `json:"hasJumped,omitempty"`
}

// Position is the public view of a Context. Both fields are empty when no flow is active.
type Position struct {
	Flow string `json:"flow"`
	Node string `json:"node"`
}

// FlowName returns the name of the current flow, or "" if none.
func (c *Context) FlowName() string {
	if c == nil || c.CurrentFlow == nil {
		return ""
	}
	return c.CurrentFlow.Name
}

// Clone returns a copy whose stack can be modified independently.
// The flow itself is shared: flows are immutable once loaded.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	out.FlowStack = append([]Frame(nil), c.FlowStack...)
	return &out
}

// Snapshot returns a copy that shares nothing with c, flow included.
func (c *Context) Snapshot() *Context {
	out := c.Clone()
	if out != nil {
		out.CurrentFlow = c.CurrentFlow.Clone()
	}
	return out
}

// CoalesceFrames drops every frame that is immediately followed by a frame of the
// same flow, so the stack only grows when the flow actually changes.
func CoalesceFrames(stack []Frame) []Frame {
	out := make([]Frame, 0, len(stack))
	for i, f := range stack {
		if i == len(stack)-1 || stack[i+1].Flow != f.Flow {
			out = append(out, f)
		}
	}
	return out
}
