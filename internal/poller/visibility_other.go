//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package poller

func backgrounded(int) bool { return false }
