/*
Package dsl builds flows in Go instead of JSON.

	main, err := dsl.NewFlow("main.flow.json").
		Node("ask").Say("What's your name?").
		Receive(`setVariable {"name": "name", "value": "{{ event.text }}"}`).
		Go("greet").
		Node("greet").Say("Nice to meet you").End().
		Build()

Storage turns built flows into a memory.FlowStorage that parley.WithFlowStorage accepts.
*/
package dsl
