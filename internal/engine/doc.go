// Package engine hosts heavy-compute executors in isolated engine contexts.
//
// Spawn starts one goroutine that owns a freshly constructed Executor; the
// coordinator talks to it only through the returned Handle by sending typed
// requests and draining the per-request response stream. A handle runs at
// most one request at a time and rejects (never queues) a second one.
// Terminate tears the context down, drops all executor state, and still ends
// any in-flight stream with a terminal error.
package engine
