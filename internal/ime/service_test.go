package ime

import (
	"context"
	"errors"
	"testing"

	"modeswitchd/internal/metrics"
)

// fakeSwitcher records switch calls and lets tests inject engine state
// and failures.
type fakeSwitcher struct {
	name       string
	available  bool
	current    string
	currentErr error
	switchErr  error

	switched []string
}

func (f *fakeSwitcher) Name() string    { return f.name }
func (f *fakeSwitcher) Available() bool { return f.available }

func (f *fakeSwitcher) Current(ctx context.Context) (string, error) {
	return f.current, f.currentErr
}

func (f *fakeSwitcher) Switch(ctx context.Context, engine string) error {
	f.switched = append(f.switched, engine)
	return f.switchErr
}

func newTestService(sw Switcher) (*Service, *metrics.DaemonMetrics) {
	stats := metrics.NewDaemonMetrics(metrics.NewRegistry("test"))
	return NewService(sw, "xkb:us::eng", stats, nil), stats
}

func TestEnsureLatinSwitchesFromCJK(t *testing.T) {
	sw := &fakeSwitcher{name: "ibus", available: true, current: "libpinyin"}
	svc, stats := newTestService(sw)

	svc.EnsureLatin(context.Background())

	if len(sw.switched) != 1 || sw.switched[0] != "xkb:us::eng" {
		t.Fatalf("switched = %v, want one call to xkb:us::eng", sw.switched)
	}
	if stats.SwitchesIssued.Value() != 1 {
		t.Errorf("SwitchesIssued = %d, want 1", stats.SwitchesIssued.Value())
	}
	if stats.SwitchFailures.Value() != 0 {
		t.Errorf("SwitchFailures = %d, want 0", stats.SwitchFailures.Value())
	}
}

func TestEnsureLatinSkipsNonCJK(t *testing.T) {
	sw := &fakeSwitcher{name: "ibus", available: true, current: "xkb:us::eng"}
	svc, stats := newTestService(sw)

	svc.EnsureLatin(context.Background())

	if len(sw.switched) != 0 {
		t.Fatalf("no switch expected for a Latin engine, got %v", sw.switched)
	}
	if stats.SwitchesIssued.Value() != 0 {
		t.Errorf("SwitchesIssued = %d, want 0", stats.SwitchesIssued.Value())
	}
}

func TestEnsureLatinSwitchesWhenQueryFails(t *testing.T) {
	// The guard query failing must not leave a composition window eating
	// command keys: the switch is issued anyway.
	sw := &fakeSwitcher{name: "fcitx5", available: true, currentErr: errors.New("dbus timeout")}
	svc, _ := newTestService(sw)

	svc.EnsureLatin(context.Background())

	if len(sw.switched) != 1 {
		t.Fatalf("switch expected despite query failure, got %v", sw.switched)
	}
}

func TestEnsureLatinRecordsSwitchFailure(t *testing.T) {
	sw := &fakeSwitcher{name: "ibus", available: true, current: "mozc-jp", switchErr: errors.New("engine unknown")}
	svc, stats := newTestService(sw)

	svc.EnsureLatin(context.Background())

	if stats.SwitchFailures.Value() != 1 {
		t.Errorf("SwitchFailures = %d, want 1", stats.SwitchFailures.Value())
	}
	if stats.SwitchesIssued.Value() != 0 {
		t.Errorf("SwitchesIssued = %d, want 0", stats.SwitchesIssued.Value())
	}
}

func TestDegradedService(t *testing.T) {
	svc, stats := newTestService(nil)

	if !svc.Degraded() {
		t.Error("nil switcher must report degraded")
	}
	if svc.Framework() != "none" {
		t.Errorf("Framework = %q, want none", svc.Framework())
	}
	if svc.Available() {
		t.Error("degraded service is never available")
	}

	// EnsureLatin is a logged no-op, never a panic.
	svc.EnsureLatin(context.Background())
	if stats.SwitchesIssued.Value() != 0 || stats.SwitchFailures.Value() != 0 {
		t.Error("degraded service must not record switch attempts")
	}

	if _, err := svc.Engine(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Engine error = %v, want ErrUnavailable", err)
	}
}

func TestServiceDefaultsLatinEngine(t *testing.T) {
	sw := &fakeSwitcher{name: "ibus", available: true, current: "pinyin"}
	svc := NewService(sw, "", nil, nil)

	svc.EnsureLatin(context.Background())

	if len(sw.switched) != 1 || sw.switched[0] != DefaultLatinEngine {
		t.Errorf("switched = %v, want %q", sw.switched, DefaultLatinEngine)
	}
}

func TestServiceEngine(t *testing.T) {
	sw := &fakeSwitcher{name: "ibus", available: true, current: "hangul"}
	svc, _ := newTestService(sw)

	engine, err := svc.Engine(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if engine != "hangul" {
		t.Errorf("engine = %q", engine)
	}
}

func TestAcquireNoneFramework(t *testing.T) {
	_, err := Acquire(context.Background(), AcquireConfig{Framework: "none"}, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
