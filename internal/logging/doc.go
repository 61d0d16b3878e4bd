// Package logging assembles structured slog loggers and formatting helpers used
// across genqueue.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so poller and controller code can tag log
// lines with job IDs, variants, and request IDs. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
