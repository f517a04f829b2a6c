package domain

import "strings"

// Reserved flow and node names.
const (
	// DefaultFlow is the entry flow every new conversation starts in.
	DefaultFlow = "main.flow.json"

	// TimeoutFlow handles inactivity when no node or flow declares its own timeout target.
	TimeoutFlow = "timeout.flow.json"

	// TimeoutNode is the conventional node name looked up in the current flow on timeout.
	TimeoutNode = "timeout"

	// EndTarget terminates the flow when used as a transition target (case-insensitive).
	EndTarget = "end"

	// ReturnPrefix marks a transition target that returns to the calling flow.
	ReturnPrefix = "#"

	// NodeTypeSkillCall marks nodes that delegate to a generated sub-flow.
	NodeTypeSkillCall = "skill-call"
)

// Storage conventions.
const (
	// FlowSuffix is the file suffix of executable flow definitions.
	FlowSuffix = ".flow.json"

	// LayoutSuffix is the file suffix of the companion layout files.
	LayoutSuffix = ".ui.json"

	// ContextSubkey is the companion record holding the execution Context.
	ContextSubkey = "context"

	// SubkeySeparator joins a conversation id and a companion subkey.
	SubkeySeparator = "___"
)

// MaxStackSize bounds the flow stack. Reaching it aborts the message.
const MaxStackSize = 100

// LayoutFileFor returns the layout companion path of a flow file.
func LayoutFileFor(flowName string) string {
	return strings.TrimSuffix(flowName, FlowSuffix) + LayoutSuffix
}

// SubkeyID returns the record id of a companion record, e.g. "abc___context".
func SubkeyID(id, subkey string) string {
	return id + SubkeySeparator + subkey
}
