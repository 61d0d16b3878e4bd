// Package notifications announces generation outcomes via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. The
// queue controller calls it when a job finishes or fails, and the watch
// command when the queue drains, so a long render can run in the background.
package notifications
