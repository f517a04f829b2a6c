/*
Package session persists per-conversation State and Context.

Each conversation owns two independent records in a ports.RecordStore: the primary
record (free-form State) and the "<id>___context" companion (execution Context).
They are read and written separately and deleted together. Writes are plain upserts;
serializing access per conversation is the job queue's responsibility.
*/
package session
