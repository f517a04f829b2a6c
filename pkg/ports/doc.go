/*
Package ports defines the driven ports (interfaces) of the Parley engine.

These interfaces decouple the flow engine from concrete storage, transport and
sandboxing choices, so each collaborator can be swapped (memory for tests, Redis or
Postgres for sessions, the filesystem or Loam for flows).

# Key Interfaces

  - FlowStorage: reads and writes flow files (e.g., filesystem, Loam, memory).
  - RecordStore: persists opaque per-conversation records with upsert semantics.
  - ExpressionEvaluator: compiles and runs condition expressions under a timeout.
  - OutputProcessor: receives the content of "say" instructions.
  - JobQueue: delivers events sequentially per conversation.
  - DistributedLocker: coordinates per-key access across replicas.
*/
package ports
