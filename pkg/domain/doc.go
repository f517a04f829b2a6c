/*
Package domain contains the core models of the Parley flow engine.

It defines the executable flow graph (Flows, Nodes, Transitions), the per-conversation
execution position (Context and its flow stack), the free-form conversation State and
the read-only view handed to actions. This package is kept pure and free of I/O so the
engine, the stores and the adapters can share it.

# Key Entities

  - Flow: a named graph of nodes, stored under its file name (e.g. "main.flow.json").
  - Node: a unit of execution with onEnter/onReceive instructions and transitions.
  - Context: where a conversation currently is, plus the subflow call stack.
  - State: conversation-scoped data owned by actions.
  - Event: an incoming message or a synthetic timeout.
*/
package domain
