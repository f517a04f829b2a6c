package domain

import "strings"

// InstructionKind tells how an instruction is executed.
type InstructionKind int

const (
	// InstructionAction invokes a registered action.
	InstructionAction InstructionKind = iota
	// InstructionSay dispatches content to the output processors.
	InstructionSay
)

// Instruction is the parsed form of an onEnter/onReceive directive.
type Instruction struct {
	Kind InstructionKind

	// Name is the action name (InstructionAction).
	Name string
	// Args is the raw JSON argument text following the action name, if any.
	Args string

	// OutputType and Value describe a say directive (InstructionSay).
	OutputType string
	Value      string

	Raw string
}

// ParseInstruction classifies a directive string.
// "say <type> <rest>" becomes a say instruction; anything else is "<action>[ <json>]".
func ParseInstruction(raw string) Instruction {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "say ") {
		chunks := strings.Split(trimmed, " ")
		in := Instruction{Kind: InstructionSay, Raw: raw}
		if len(chunks) > 1 {
			in.OutputType = chunks[1]
		}
		if len(chunks) > 2 {
			in.Value = strings.Join(chunks[2:], " ")
		}
		return in
	}

	name, args, _ := strings.Cut(trimmed, " ")
	return Instruction{
		Kind: InstructionAction,
		Name: name,
		Args: strings.TrimSpace(args),
		Raw:  raw,
	}
}
