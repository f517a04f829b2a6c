package domain

import "strings"

// Flow is a named graph of nodes. Name doubles as the storage key.
type Flow struct {
	Name        string    `json:"name" validate:"required"`
	Version     string    `json:"version,omitempty"`
	Description string    `json:"description,omitempty"`
	StartNode   string    `json:"startNode" validate:"required"`
	Nodes       []Node    `json:"nodes" validate:"required,min=1,unique=Name,dive"`
	CatchAll    *CatchAll `json:"catchAll,omitempty"`
	TimeoutNode string    `json:"timeoutNode,omitempty"`
}

// CatchAll holds flow-level handlers evaluated regardless of the current node.
type CatchAll struct {
	OnReceive []string     `json:"onReceive,omitempty"`
	Next      []Transition `json:"next,omitempty"`
}

// Node is a unit of execution inside a Flow.
//
// OnReceive distinguishes absent (nil) from declared-but-empty: a node with a
// non-nil OnReceive parks the conversation after OnEnter and waits for input.
type Node struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name" validate:"required"`
	Type        string       `json:"type,omitempty"`
	Flow        string       `json:"flow,omitempty"`
	OnEnter     []string     `json:"onEnter,omitempty"`
	OnReceive   []string     `json:"onReceive"`
	Next        []Transition `json:"next,omitempty"`
	TimeoutNode string       `json:"timeoutNode,omitempty"`

	// Position is layout metadata. The engine never reads it.
	Position *Position2D `json:"position,omitempty"`
}

// Transition moves execution to Node when Condition evaluates true.
// Node may be a node name, "end", a subflow call ("x.flow.json @ node") or a "#" return.
type Transition struct {
	Condition string `json:"condition"`
	Node      string `json:"node"`
}

// Position2D is a node coordinate in the authoring canvas.
type Position2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FlowEdit is one entry of a save request.
type FlowEdit struct {
	Name string `json:"name"`
	Flow Flow   `json:"flow"`
}

// FindNode returns the node with the given name, or nil.
func (f *Flow) FindNode(name string) *Node {
	if f == nil {
		return nil
	}
	for i := range f.Nodes {
		if f.Nodes[i].Name == name {
			return &f.Nodes[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	out := *f
	if f.Nodes != nil {
		out.Nodes = make([]Node, len(f.Nodes))
		for i := range f.Nodes {
			out.Nodes[i] = *f.Nodes[i].Clone()
		}
	}
	if f.CatchAll != nil {
		out.CatchAll = &CatchAll{
			OnReceive: cloneStrings(f.CatchAll.OnReceive),
			Next:      cloneTransitions(f.CatchAll.Next),
		}
	}
	return &out
}

// Clone returns a deep copy of the node. A nil OnReceive stays nil.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.OnEnter = cloneStrings(n.OnEnter)
	out.OnReceive = cloneStrings(n.OnReceive)
	out.Next = cloneTransitions(n.Next)
	if n.Position != nil {
		p := *n.Position
		out.Position = &p
	}
	return &out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

func cloneTransitions(t []Transition) []Transition {
	if t == nil {
		return nil
	}
	return append(make([]Transition, 0, len(t)), t...)
}

// IsSkillCall reports whether the node delegates to a generated sub-flow.
func (n *Node) IsSkillCall() bool {
	return n.Type == NodeTypeSkillCall && n.Flow != ""
}

// IsEndTarget reports whether a transition target terminates the flow.
func IsEndTarget(target string) bool {
	return strings.EqualFold(target, EndTarget)
}
