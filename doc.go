/*
Package parley executes conversation flows.

A flow is a JSON document ("*.flow.json") describing a graph of nodes. Each node
runs instructions when it is entered (onEnter) and when a message arrives
while the conversation waits on it (onReceive), then follows the first
transition whose condition holds. Flows can call each other as subflows and
return with "#", so a conversation keeps a stack of the flows it is in.

# Usage

	bot, err := parley.New(
		parley.WithFlowStorage(file.New("./flows")),
		parley.WithRecordStore(memory.NewStore()),
		parley.WithOutput(output.NewWriter("stdout", os.Stdout)),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer bot.Close(context.Background())

	bot.Start(ctx)
	bot.Send(ctx, "user-42", domain.Event{Type: "text", Text: "hi"})

Send queues the event: events of one conversation are processed in order,
conversations run concurrently. ProcessMessage bypasses the queue.

# Packages

  - pkg/domain: flows, contexts, state and the error types.
  - pkg/flows and pkg/session: loading flows and persisting conversations.
  - pkg/actions, pkg/output, pkg/hooks: the extension points.
  - pkg/adapters: storage drivers (file, loam, memory, redis, postgres) and the HTTP API.
  - pkg/queue and pkg/janitor: ordered delivery and inactivity timeouts.
*/
package parley
