//go:build linux

package ime

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Fcitx5 D-Bus constants.
const (
	fcitx5Service        = "org.fcitx.Fcitx5"
	fcitx5ControllerPath = "/controller"
	fcitx5ControllerIF   = "org.fcitx.Fcitx.Controller1"
)

// Fcitx5Switcher drives Fcitx5 through its controller interface on the
// session bus.
type Fcitx5Switcher struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewFcitx5 creates a Fcitx5 switcher.
func NewFcitx5() *Fcitx5Switcher {
	return &Fcitx5Switcher{}
}

func (s *Fcitx5Switcher) Name() string { return "fcitx5" }

// Available reports whether Fcitx5 owns its name on the session bus.
func (s *Fcitx5Switcher) Available() bool {
	conn, err := s.connect()
	if err != nil {
		return false
	}
	var owned bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, fcitx5Service).Store(&owned)
	return err == nil && owned
}

// Current returns the active input method name.
func (s *Fcitx5Switcher) Current(ctx context.Context) (string, error) {
	conn, err := s.connect()
	if err != nil {
		return "", err
	}

	var im string
	obj := conn.Object(fcitx5Service, fcitx5ControllerPath)
	if err := obj.CallWithContext(ctx, fcitx5ControllerIF+".CurrentInputMethod", 0).Store(&im); err != nil {
		return "", fmt.Errorf("fcitx5 CurrentInputMethod: %w", err)
	}
	return im, nil
}

// Switch activates the named input method.
func (s *Fcitx5Switcher) Switch(ctx context.Context, engine string) error {
	conn, err := s.connect()
	if err != nil {
		return err
	}

	obj := conn.Object(fcitx5Service, fcitx5ControllerPath)
	if err := obj.CallWithContext(ctx, fcitx5ControllerIF+".SetCurrentIM", 0, engine).Err; err != nil {
		return fmt.Errorf("fcitx5 SetCurrentIM %q: %w", engine, err)
	}
	return nil
}

// Close releases the session bus connection.
func (s *Fcitx5Switcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Fcitx5Switcher) connect() (*dbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// FcitxSwitcher drives legacy Fcitx (4.x) through fcitx-remote, the way
// everything else does; Fcitx4's D-Bus surface is not worth depending
// on.
type FcitxSwitcher struct{}

// NewFcitx creates a legacy Fcitx switcher.
func NewFcitx() *FcitxSwitcher {
	return &FcitxSwitcher{}
}

func (s *FcitxSwitcher) Name() string { return "fcitx" }

// Available reports whether fcitx-remote is on PATH and a daemon
// answers.
func (s *FcitxSwitcher) Available() bool {
	path, err := exec.LookPath("fcitx-remote")
	if err != nil {
		return false
	}
	return exec.Command(path).Run() == nil
}

// Current returns the active input method name via fcitx-remote -n.
func (s *FcitxSwitcher) Current(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "fcitx-remote", "-n").Output()
	if err != nil {
		return "", fmt.Errorf("fcitx-remote -n: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Switch activates the named input method via fcitx-remote -s.
func (s *FcitxSwitcher) Switch(ctx context.Context, engine string) error {
	if err := exec.CommandContext(ctx, "fcitx-remote", "-s", engine).Run(); err != nil {
		return fmt.Errorf("fcitx-remote -s %q: %w", engine, err)
	}
	return nil
}

var (
	_ Switcher = (*Fcitx5Switcher)(nil)
	_ Switcher = (*FcitxSwitcher)(nil)
)
