package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/stretchr/testify/assert"
)

func flowSet() []domain.Flow {
	entry := dsl.NewFlow("main.flow.json").
		CatchAll(`event.text == "help"`, "help.flow.json").
		Node("ask").Say("Name?").Receive().Branch(`event.text == "no"`, "end").Go("greet").
		Node("greet").Timeout("ask").Call("help.flow.json", "intro").
		Node("faq").Skill("skill-faq.flow.json").
		MustBuild()
	help := dsl.NewFlow("help.flow.json").
		Node("intro").Say("Help").Return("greet").
		MustBuild()
	return []domain.Flow{entry, help}
}

func TestGenerateMermaid(t *testing.T) {
	got := graph.GenerateMermaid(flowSet(), nil)

	for _, want := range []string{
		"graph TD\n",
		`subgraph main_flow_json["main.flow.json"]`,
		`main_flow_json__ask(("ask"))`,
		`main_flow_json__greet["greet"]`,
		`main_flow_json__faq[["faq"]]`,
		`help_flow_json__intro(("intro"))`,
		`main_flow_json___catchAll{{"catch all"}}`,
		`main_flow_json__ask -- "event.text == 'no'" --> main_flow_json___end`,
		`main_flow_json__ask --> main_flow_json__greet`,
		`main_flow_json__greet -.-> help_flow_json__intro`,
		`main_flow_json__greet -- "⏱ timeout" --> main_flow_json__ask`,
		`main_flow_json___catchAll -. "event.text == 'help'" .-> help_flow_json__intro`,
		`help_flow_json__intro -.-> help_flow_json___return`,
		`help_flow_json___return>"return greet"]`,
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "Overlay")
	assert.NotContains(t, got, "skill_faq", "edges to flows outside the set are skipped")
}

func TestGenerateMermaid_WaitingNodeShape(t *testing.T) {
	set := []domain.Flow{dsl.NewFlow("f.flow.json").
		Node("start").Go("wait").
		Node("wait").Wait().
		MustBuild()}

	assert.Contains(t, graph.GenerateMermaid(set, nil), `f_flow_json__wait[/"wait"/]`)
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	got := graph.GenerateMermaid(flowSet(), &graph.Overlay{
		Current: domain.Position{Flow: "help.flow.json", Node: "intro"},
		Visited: []domain.Position{
			{Flow: "main.flow.json", Node: "ask"},
			{Flow: "main.flow.json", Node: "ask"},
			{Flow: "main.flow.json", Node: "greet"},
		},
	})

	assert.Contains(t, got, "classDef current")
	assert.Equal(t, 1, strings.Count(got, "class main_flow_json__ask visited;"))
	assert.Contains(t, got, "class main_flow_json__greet visited;")
	assert.Contains(t, got, "class help_flow_json__intro current;")
}
