// Package generation orchestrates a user's generation queue for one variant.
//
// A Controller ties together the persistent queue.Store, the api client, one
// poller goroutine per pending job, and the render.Board that shows them. It
// owns submission fan-out, resume-on-start with a backfill from the server's
// completed listing, and the clear/remove/persist actions.
//
// Pollers stop cooperatively once their job leaves the store or lands in the
// cleared or persisted set, and their results are applied only while the job
// is still tracked, so a late answer can never resurrect a removed job.
package generation
