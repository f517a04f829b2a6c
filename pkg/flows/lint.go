package flows

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// SubflowPattern recognizes a subflow call target: "<x.flow.json>[ @ <node>]".
var SubflowPattern = regexp.MustCompile(`(?i)(.+\.flow\.json)\s?@?\s?(.+)?`)

// ParseSubflowTarget splits a subflow call into flow and optional node.
func ParseSubflowTarget(target string) (flow, node string, ok bool) {
	m := SubflowPattern.FindStringSubmatch(target)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// Issue is a dangling reference found by Lint.
type Issue struct {
	Flow    string
	Node    string
	Message string
}

func (i Issue) String() string {
	if i.Node == "" {
		return fmt.Sprintf("%s: %s", i.Flow, i.Message)
	}
	return fmt.Sprintf("%s#%s: %s", i.Flow, i.Node, i.Message)
}

// Lint reports transition and timeout targets that resolve to nothing.
// The engine only checks these lazily, at traversal time; Lint is an authoring aid.
func Lint(set []domain.Flow) []Issue {
	byName := make(map[string]*domain.Flow, len(set))
	for i := range set {
		byName[set[i].Name] = &set[i]
	}

	var issues []Issue
	check := func(flow *domain.Flow, node, target, what string) {
		if msg := resolve(byName, flow, target); msg != "" {
			issues = append(issues, Issue{Flow: flow.Name, Node: node, Message: what + ": " + msg})
		}
	}

	for i := range set {
		flow := &set[i]
		if flow.FindNode(flow.StartNode) == nil {
			issues = append(issues, Issue{Flow: flow.Name, Message: fmt.Sprintf("start node %q does not exist", flow.StartNode)})
		}
		if flow.TimeoutNode != "" {
			check(flow, "", flow.TimeoutNode, "timeoutNode")
		}
		if flow.CatchAll != nil {
			for _, tr := range flow.CatchAll.Next {
				check(flow, "", tr.Node, "catchAll transition")
			}
		}
		for _, node := range flow.Nodes {
			for _, tr := range node.Next {
				check(flow, node.Name, tr.Node, "transition")
			}
			if node.TimeoutNode != "" {
				check(flow, node.Name, node.TimeoutNode, "timeoutNode")
			}
			if node.IsSkillCall() {
				if _, ok := byName[node.Flow]; !ok {
					issues = append(issues, Issue{Flow: flow.Name, Node: node.Name, Message: fmt.Sprintf("skill flow %q does not exist", node.Flow)})
				}
			}
		}
	}
	return issues
}

func resolve(byName map[string]*domain.Flow, flow *domain.Flow, target string) string {
	switch {
	case target == "":
		return "empty target"
	case domain.IsEndTarget(target), strings.HasPrefix(target, domain.ReturnPrefix):
		return ""
	}

	if name, node, ok := ParseSubflowTarget(target); ok {
		sub, exists := byName[name]
		if !exists {
			return fmt.Sprintf("flow %q does not exist", name)
		}
		if node != "" && sub.FindNode(node) == nil {
			return fmt.Sprintf("node %q does not exist in %s", node, name)
		}
		return ""
	}

	if flow.FindNode(target) == nil {
		return fmt.Sprintf("node %q does not exist", target)
	}
	return ""
}
