package poller

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Visibility reports whether the user is currently looking at the output.
type Visibility interface {
	Hidden() bool
}

// AlwaysVisible never stretches the cadence.
type AlwaysVisible struct{}

func (AlwaysVisible) Hidden() bool { return false }

// VisibilityFunc adapts a function to Visibility.
type VisibilityFunc func() bool

func (f VisibilityFunc) Hidden() bool { return f() }

// TerminalVisibility treats the process as hidden while it is not the
// foreground process group of the terminal behind f. Non-terminals are
// always visible.
func TerminalVisibility(f *os.File) Visibility {
	if f == nil {
		return AlwaysVisible{}
	}
	fd := f.Fd()
	if !isatty.IsTerminal(fd) {
		return AlwaysVisible{}
	}
	return VisibilityFunc(func() bool { return backgrounded(int(fd)) })
}
