package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesceFrames(t *testing.T) {
	stack := []Frame{
		{Flow: "main.flow.json", Node: "a"},
		{Flow: "main.flow.json", Node: "b"},
		{Flow: "login.flow.json", Node: "start"},
		{Flow: "login.flow.json", Node: "ask"},
		{Flow: "main.flow.json", Node: "c"},
	}

	got := CoalesceFrames(stack)

	assert.Equal(t, []Frame{
		{Flow: "main.flow.json", Node: "b"},
		{Flow: "login.flow.json", Node: "ask"},
		{Flow: "main.flow.json", Node: "c"},
	}, got)
	assert.Empty(t, CoalesceFrames(nil))
}

func TestContext_SnapshotCopiesFlow(t *testing.T) {
	c := &Context{
		CurrentFlow: &Flow{
			Name:      "main.flow.json",
			StartNode: "a",
			Nodes: []Node{
				{Name: "a", OnEnter: []string{"x"}, Next: []Transition{{Condition: "true", Node: "b"}}, Position: &Position2D{X: 1}},
				{Name: "b", OnReceive: []string{}},
			},
			CatchAll: &CatchAll{Next: []Transition{{Condition: "true", Node: "a"}}},
		},
		FlowStack: []Frame{{Flow: "main.flow.json", Node: "a"}},
	}

	cp := c.Snapshot()
	cp.CurrentFlow.Name = "other"
	cp.CurrentFlow.Nodes[0].OnEnter[0] = "y"
	cp.CurrentFlow.Nodes[0].Next[0].Node = "z"
	cp.CurrentFlow.Nodes[0].Position.X = 9
	cp.CurrentFlow.CatchAll.Next[0].Node = "z"
	cp.FlowStack[0].Node = "z"

	assert.Equal(t, "main.flow.json", c.FlowName())
	assert.Equal(t, "x", c.CurrentFlow.Nodes[0].OnEnter[0])
	assert.Equal(t, "b", c.CurrentFlow.Nodes[0].Next[0].Node)
	assert.Equal(t, 1.0, c.CurrentFlow.Nodes[0].Position.X)
	assert.Equal(t, "a", c.CurrentFlow.CatchAll.Next[0].Node)
	assert.Equal(t, "a", c.FlowStack[0].Node)
	assert.NotNil(t, cp.CurrentFlow.Nodes[1].OnReceive, "declared-but-empty onReceive survives")
	assert.Nil(t, cp.CurrentFlow.Nodes[0].OnReceive)
	assert.Nil(t, (*Context)(nil).Snapshot())
}

func TestContext_CloneStackIsIndependent(t *testing.T) {
	c := &Context{
		CurrentFlow: &Flow{Name: "main.flow.json"},
		Node:        "a",
		FlowStack:   []Frame{{Flow: "main.flow.json", Node: "a"}},
	}
	cp := c.Clone()
	cp.FlowStack[0].Node = "changed"

	assert.Equal(t, "a", c.FlowStack[0].Node)
	assert.Equal(t, "main.flow.json", cp.FlowName())
	assert.Equal(t, "", (*Context)(nil).FlowName())
}

func TestFlowHelpers(t *testing.T) {
	f := &Flow{Nodes: []Node{{Name: "a"}, {Name: "b", Type: NodeTypeSkillCall, Flow: "skills/choice.flow.json"}}}

	assert.NotNil(t, f.FindNode("a"))
	assert.Nil(t, f.FindNode("zzz"))
	assert.True(t, f.FindNode("b").IsSkillCall())
	assert.True(t, IsEndTarget("END"))
	assert.False(t, IsEndTarget("ending"))
	assert.Equal(t, "skills/choice.ui.json", LayoutFileFor("skills/choice.flow.json"))
	assert.Equal(t, "abc___context", SubkeyID("abc", ContextSubkey))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(&ValidationError{Flow: "x", Err: errors.New("bad")}, ErrValidation))
	assert.True(t, errors.Is(&InvalidStateError{Got: "string"}, ErrValidation))
	assert.True(t, errors.Is(&LookupError{Kind: "flow", Name: "x"}, ErrNotFound))

	inner := errors.New("boom")
	assert.ErrorIs(t, &ActionError{Action: "a", Err: inner}, inner)
	assert.ErrorIs(t, &ConditionEvaluationError{Condition: "x", Err: inner}, inner)
	assert.Contains(t, (&LookupError{Kind: "node", Name: "n", Flow: "f"}).Error(), `"n" not found in flow "f"`)
}
