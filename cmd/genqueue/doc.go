// Package main hosts the genqueue CLI entrypoint and command graph.
//
// The Cobra-based command tree drives a generation.Controller from the
// terminal: submitting requests, watching the queue until every job settles,
// and the clear/remove/persist actions. It centralizes configuration
// resolution, backend selection, and logging setup so subcommands can focus on
// output instead of wiring.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through dedicated commands or flags here.
package main
