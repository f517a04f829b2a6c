// Package graph renders flow sets as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/flows"
)

// Overlay marks a conversation's position on the chart.
type Overlay struct {
	Current domain.Position
	Visited []domain.Position
}

// GenerateMermaid produces a Mermaid flowchart with one subgraph per flow.
// Shapes:
//   - start node: ((circle))
//   - node waiting for input: [/parallelogram/]
//   - skill call: [[subroutine]]
//   - otherwise: [rectangle]
//
// Subflow calls and returns are dotted; timeouts carry a clock label.
func GenerateMermaid(set []domain.Flow, overlay *Overlay) string {
	byName := make(map[string]*domain.Flow, len(set))
	for i := range set {
		byName[set[i].Name] = &set[i]
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i := range set {
		flow := &set[i]
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeID(flow.Name), flow.Name)
		for _, node := range flow.Nodes {
			opener, closer := shape(flow, &node)
			fmt.Fprintf(&sb, "        %s%s\"%s\"%s\n", nodeID(flow.Name, node.Name), opener, escape(node.Name), closer)
		}
		if flow.CatchAll != nil && len(flow.CatchAll.Next) > 0 {
			fmt.Fprintf(&sb, "        %s{{\"catch all\"}}\n", nodeID(flow.Name, "*catchAll"))
		}
		sb.WriteString("    end\n")
	}

	for i := range set {
		flow := &set[i]
		for _, node := range flow.Nodes {
			from := nodeID(flow.Name, node.Name)
			for _, tr := range node.Next {
				writeEdge(&sb, byName, flow, from, tr.Condition, tr.Node)
			}
			if node.IsSkillCall() {
				writeEdge(&sb, byName, flow, from, "", node.Flow)
			}
			if node.TimeoutNode != "" {
				writeEdge(&sb, byName, flow, from, "⏱ timeout", node.TimeoutNode)
			}
		}
		if flow.CatchAll != nil {
			from := nodeID(flow.Name, "*catchAll")
			for _, tr := range flow.CatchAll.Next {
				writeEdge(&sb, byName, flow, from, tr.Condition, tr.Node)
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text stays readable on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, p := range overlay.Visited {
			id := nodeID(p.Flow, p.Node)
			if p.Node != "" && !seen[id] {
				seen[id] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", id)
			}
		}
		if overlay.Current.Node != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", nodeID(overlay.Current.Flow, overlay.Current.Node))
		}
	}

	return sb.String()
}

func shape(flow *domain.Flow, node *domain.Node) (string, string) {
	switch {
	case node.Name == flow.StartNode:
		return "((", "))"
	case node.IsSkillCall():
		return "[[", "]]"
	case node.OnReceive != nil:
		return "[/", "/]"
	}
	return "[", "]"
}

// writeEdge resolves target the way the engine does and draws one arrow.
// Unresolvable targets are skipped; Lint reports them.
func writeEdge(sb *strings.Builder, byName map[string]*domain.Flow, flow *domain.Flow, from, condition, target string) {
	label := condition
	if strings.TrimSpace(label) == "true" {
		label = ""
	}

	var to string
	dotted := false
	switch {
	case domain.IsEndTarget(target):
		to = nodeID(flow.Name, "*end")
		fmt.Fprintf(sb, "    %s([\"end\"])\n", to)
	case strings.HasPrefix(target, domain.ReturnPrefix):
		to = nodeID(flow.Name, "*return")
		fmt.Fprintf(sb, "    %s>\"return %s\"]\n", to, escape(strings.TrimPrefix(target, domain.ReturnPrefix)))
		dotted = true
	default:
		if name, node, ok := flows.ParseSubflowTarget(target); ok {
			sub, exists := byName[name]
			if !exists {
				return
			}
			if node == "" {
				node = sub.StartNode
			}
			to = nodeID(name, node)
			dotted = true
		} else {
			to = nodeID(flow.Name, target)
		}
	}

	arrow := "-->"
	if dotted {
		arrow = "-.->"
	}
	if label != "" {
		arrow = fmt.Sprintf("-- \"%s\" -->", escape(label))
		if dotted {
			arrow = fmt.Sprintf("-. \"%s\" .->", escape(label))
		}
	}
	fmt.Fprintf(sb, "    %s %s %s\n", from, arrow, to)
}

func nodeID(flow, node string) string {
	return sanitizeID(flow) + "__" + sanitizeID(node)
}

func sanitizeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_", "*", "_", "#", "_", "@", "_")
	return r.Replace(id)
}

// escape keeps labels inside their double quotes.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
