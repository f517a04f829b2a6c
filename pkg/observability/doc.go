/*
Package observability instruments the Parley engine.

Metrics are Prometheus collectors fed from the engine's lifecycle hooks, its
error handlers and the job queue. Tracing is OpenTelemetry: the engine opens a
span per message and InitTracer exports them over OTLP/gRPC.
*/
package observability
