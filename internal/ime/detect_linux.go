//go:build linux

package ime

import (
	"os"
	"os/exec"
)

// DetectFramework determines which IME framework this session most
// likely runs. Fcitx5 first (preferred on KDE Plasma), then legacy
// Fcitx, then IBus (most common on GNOME).
func DetectFramework() string {
	if _, err := os.Stat("/usr/share/fcitx5"); err == nil {
		return "fcitx5"
	}
	if _, err := os.Stat("/usr/share/fcitx/addon"); err == nil {
		return "fcitx"
	}
	if _, err := os.Stat("/usr/share/ibus/component"); err == nil {
		return "ibus"
	}
	if _, err := exec.LookPath("ibus-daemon"); err == nil {
		return "ibus"
	}
	return "ibus" // Default to IBus
}

// newSwitcher builds the switcher for a named framework; "" and "auto"
// fall back to detection.
func newSwitcher(framework string) (Switcher, error) {
	switch framework {
	case "", "auto":
		framework = DetectFramework()
	}
	switch framework {
	case "ibus":
		return NewIBus(), nil
	case "fcitx5":
		return NewFcitx5(), nil
	case "fcitx":
		return NewFcitx(), nil
	case "none":
		return nil, ErrUnavailable
	default:
		return nil, ErrUnavailable
	}
}

// candidates lists every framework switcher in detection preference
// order, for "auto" acquisition.
func candidates() []Switcher {
	return []Switcher{NewFcitx5(), NewFcitx(), NewIBus()}
}
