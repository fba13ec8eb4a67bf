// Package logger provides structured logging for Quartzite.
//
// It configures the standard library log/slog for JSON or text output with
// a dynamically adjustable level, and carries a logger plus a catch-up task
// id through contexts so that every log line of one slot install can be
// correlated.
package logger
