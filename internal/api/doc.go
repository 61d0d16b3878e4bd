// Package api is the HTTP client for the generation gallery server.
//
// It covers the six routes the queue needs: submit, per-job status, the
// recently-completed listing, persist-to-gallery, and the clear/remove queue
// bookkeeping calls. Responses are decoded leniently because the server mixes
// numeric and string identifiers and several timestamp encodings.
//
// Status reports 403 and 404 as ErrInaccessible (via errors.Is); every other
// failure is returned as-is and should be treated as transient by callers.
package api
