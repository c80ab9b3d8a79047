// Package audit dispatches quiz session and authoring events to a sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, slog logger, no-op).
//   - [Dispatcher]: buffered async relay that either drops or blocks when full.
//   - [Event]: one audit record.
//
// The package owns buffering and delivery. Which events to emit is decided by the
// engine and the flow functions; this package never filters.
package audit
