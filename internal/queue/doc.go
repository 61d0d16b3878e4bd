// Package queue keeps the local view of the user's generation jobs.
//
// The Store mirrors four records into a kv.Backend: the ordered entry list,
// the set of cleared job ids, the set of persisted job ids, and the timestamp
// of the last bulk clear. Every mutation updates the in-memory mirror and then
// writes through to the backend before returning, so a crash loses at most the
// write that was in flight.
//
// The store is a cache of server-authoritative state, never the source of
// truth. Backend failures are logged and swallowed; after the first failed
// write the store keeps running in memory only (see Ephemeral).
//
// Records are wrapped in versioned envelopes ({"version":1,...}). Bare legacy
// arrays are accepted and rewritten; envelopes with an unknown version are
// discarded.
package queue
