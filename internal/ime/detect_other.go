//go:build !linux

package ime

// DetectFramework reports no supported framework on this platform.
func DetectFramework() string { return "" }

func newSwitcher(framework string) (Switcher, error) {
	return nil, ErrUnavailable
}

func candidates() []Switcher { return nil }
