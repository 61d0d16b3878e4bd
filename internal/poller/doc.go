// Package poller drives a single generation job from pending to a terminal
// outcome by repeatedly asking the server for its status.
//
// The cadence grows geometrically from Policy.InitialInterval up to
// Policy.MaxInterval (or stays fixed for variants that set Fixed), is stretched
// while the terminal is backgrounded, and drops to a slow steady cadence once
// the soft attempt budget is spent. Polling never gives up on its own: only a
// terminal server answer, a 403/404, or cancellation ends it.
package poller
