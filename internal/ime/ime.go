// Package ime switches the active input method to a non-CJK engine.
//
// The daemon never composes text itself; this package is a thin adapter
// over the input-method frameworks a desktop session may run:
//
//   - IBus, over its private D-Bus (GetGlobalEngine / SetGlobalEngine)
//   - Fcitx5, over the session bus (org.fcitx.Fcitx.Controller1)
//   - legacy Fcitx, through fcitx-remote
//
// A CJK classification table decides whether the current engine would
// intercept command keystrokes; the switch is only issued when it would.
// Every failure on the reaction path is logged and swallowed: a broken
// IME framework must never take the mode-detection loop down with it.
package ime

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable means no supported input-method framework is reachable.
var ErrUnavailable = errors.New("ime: no input method framework available")

// Switcher is the capability the reaction path consumes: query the
// current engine, set another one.
type Switcher interface {
	// Name identifies the backing framework ("ibus", "fcitx5", ...).
	Name() string

	// Available reports whether the framework is reachable right now.
	Available() bool

	// Current returns the identifier of the active input method engine.
	Current(ctx context.Context) (string, error)

	// Switch activates the given engine.
	Switch(ctx context.Context, engine string) error
}

// cjkExact matches whole engine identifiers known to compose CJK text.
var cjkExact = map[string]bool{
	"pinyin":     true,
	"libpinyin":  true,
	"shuangpin":  true,
	"bopomofo":   true,
	"chewing":    true,
	"cangjie":    true,
	"quick":      true,
	"wubi":       true,
	"rime":       true,
	"anthy":      true,
	"mozc":       true,
	"mozc-jp":    true,
	"mozc-on":    true,
	"kkc":        true,
	"skk":        true,
	"hangul":     true,
	"korean":     true,
	"chinese":    true,
	"japanese":   true,
	"unikey":     true,
	"telex":      true,
}

// cjkPrefixes match engine identifier families, chiefly table-based
// Chinese engines and vendor-qualified names.
var cjkPrefixes = []string{
	"table:",
	"pinyin-",
	"libpinyin-",
	"mozc-",
	"hangul-",
	"rime-",
	"wubi-",
	"cangjie-",
	"im/pinyin",
}

// IsCJK reports whether an engine identifier names a CJK composition
// engine. Unknown engines are treated as non-CJK: a wrong "no" only
// skips a switch, a wrong "yes" would fight the user's chosen layout.
func IsCJK(engine string) bool {
	e := strings.ToLower(strings.TrimSpace(engine))
	if e == "" {
		return false
	}
	// Plain keyboard layouts are never CJK.
	if strings.HasPrefix(e, "xkb:") || strings.HasPrefix(e, "keyboard-") {
		return false
	}
	if cjkExact[e] {
		return true
	}
	for _, p := range cjkPrefixes {
		if strings.HasPrefix(e, p) {
			return true
		}
	}
	return false
}
