// Package hardening holds the optional "soft lock" of the front-end: a few
// inspection shortcuts and the context menu are swallowed, and console
// logging is silenced. None of it is security; it only deters casual poking.
// It is off unless a caller builds a Guard with Enabled set.
package hardening

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/nazarhussain/contact-courier/internal/logging"
)

type Options struct {
	Enabled bool
	// AllowConsole keeps log output even when the guard is enabled.
	AllowConsole bool
}

type Guard struct {
	opts Options
}

// New returns a guard. A nil *Guard is valid and blocks nothing.
func New(opts Options) *Guard {
	return &Guard{opts: opts}
}

func (g *Guard) Enabled() bool { return g != nil && g.opts.Enabled }

// BlockKey reports whether a key chord such as "ctrl+shift+i" must be
// swallowed: F12, ctrl+shift+i/j/c/k and ctrl+u. Meta counts as ctrl.
func (g *Guard) BlockKey(chord string) bool {
	if !g.Enabled() {
		return false
	}
	parts := strings.Split(strings.ToLower(strings.TrimSpace(chord)), "+")
	key := parts[len(parts)-1]
	mods := parts[:len(parts)-1]

	ctrl := slices.Contains(mods, "ctrl") || slices.Contains(mods, "meta") || slices.Contains(mods, "cmd")
	shift := slices.Contains(mods, "shift")

	switch {
	case key == "f12":
		return true
	case ctrl && shift && slices.Contains([]string{"i", "j", "c", "k"}, key):
		return true
	case ctrl && key == "u":
		return true
	}
	return false
}

// BlockContextMenu reports whether a secondary click must be swallowed.
func (g *Guard) BlockContextMenu(button string) bool {
	return g.Enabled() && strings.EqualFold(button, "right")
}

// Logger returns l, or a silent logger when console output is suppressed.
func (g *Guard) Logger(l *slog.Logger) *slog.Logger {
	if g.Enabled() && !g.opts.AllowConsole {
		return logging.Discard()
	}
	return l
}
