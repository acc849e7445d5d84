// Package logging provides opt-in, rotating file-based logging for the
// sparse-index engine: structured slog.JSONHandler output, size-based
// rotation, and an optional stderr mirror.
package logging
