// Package logging assembles structured slog loggers and formatting helpers used
// across mediadesk.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine and coordinator code
// can tag log lines with job IDs, engine kinds, and correlation IDs. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
