// Package kv provides the string key-value backends that hold the local
// generation queue between runs.
//
// Backends are deliberately dumb: values are opaque strings (the queue package
// owns the JSON envelopes) and there is no cross-process locking, so the last
// writer wins. That is acceptable because the cache only mirrors
// server-authoritative state.
//
// SQLite is the default backend. Redis is available when several machines
// share one queue view, and Memory backs tests and the degraded ephemeral mode.
package kv
