//go:build linux

package ime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// IBus D-Bus constants.
const (
	ibusService   = "org.freedesktop.IBus"
	ibusPath      = "/org/freedesktop/IBus"
	ibusInterface = "org.freedesktop.IBus"
)

// IBusSwitcher drives the global engine of an IBus daemon. IBus runs its
// own message bus; the address is discovered the same way ibus clients
// do it (IBUS_ADDRESS, then the socket file under the user config dir).
type IBusSwitcher struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewIBus creates an IBus switcher. No connection is made until first
// use.
func NewIBus() *IBusSwitcher {
	return &IBusSwitcher{}
}

func (s *IBusSwitcher) Name() string { return "ibus" }

// Available reports whether the IBus bus address can be resolved and
// connected.
func (s *IBusSwitcher) Available() bool {
	_, err := s.connect()
	return err == nil
}

// Current returns the active global engine name.
func (s *IBusSwitcher) Current(ctx context.Context) (string, error) {
	conn, err := s.connect()
	if err != nil {
		return "", err
	}

	var v dbus.Variant
	obj := conn.Object(ibusService, ibusPath)
	if err := obj.CallWithContext(ctx, ibusInterface+".GetGlobalEngine", 0).Store(&v); err != nil {
		s.drop()
		return "", fmt.Errorf("ibus GetGlobalEngine: %w", err)
	}

	name, ok := engineDescName(v.Value())
	if !ok {
		return "", fmt.Errorf("ibus GetGlobalEngine: unexpected reply shape %T", v.Value())
	}
	return name, nil
}

// Switch activates the named global engine.
func (s *IBusSwitcher) Switch(ctx context.Context, engine string) error {
	conn, err := s.connect()
	if err != nil {
		return err
	}

	obj := conn.Object(ibusService, ibusPath)
	if err := obj.CallWithContext(ctx, ibusInterface+".SetGlobalEngine", 0, engine).Err; err != nil {
		s.drop()
		return fmt.Errorf("ibus SetGlobalEngine %q: %w", engine, err)
	}
	return nil
}

// Close releases the bus connection.
func (s *IBusSwitcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *IBusSwitcher) connect() (*dbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}

	addr, err := ibusAddress()
	if err != nil {
		return nil, err
	}

	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("connect ibus bus: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// drop discards a connection after a failed call so the next use
// reconnects; the ibus daemon may have restarted underneath us.
func (s *IBusSwitcher) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// engineDescName digs the engine name out of an IBusEngineDesc
// serialization: a struct whose first field is the type name and whose
// first plain string field after the attachment map is the engine name.
// The reply is treated as untrusted; any unexpected shape returns false.
func engineDescName(v any) (string, bool) {
	fields, ok := v.([]any)
	if !ok || len(fields) < 3 {
		if s, ok := v.(string); ok {
			return s, true
		}
		return "", false
	}
	// fields[0] is "IBusEngineDesc", fields[1] the attachment map.
	for _, f := range fields[2:] {
		if s, ok := f.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// ibusAddress resolves the IBus daemon's bus address: IBUS_ADDRESS wins,
// otherwise the newest socket file ibus wrote for this machine.
func ibusAddress() (string, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr, nil
	}

	dir := ibusBusDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("ibus bus dir: %w", err)
	}

	machineID := readMachineID()
	var candidate string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if machineID != "" && !strings.HasPrefix(e.Name(), machineID) {
			continue
		}
		candidate = filepath.Join(dir, e.Name())
	}
	if candidate == "" {
		return "", ErrUnavailable
	}

	data, err := os.ReadFile(candidate)
	if err != nil {
		return "", fmt.Errorf("read ibus socket file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if addr, ok := strings.CutPrefix(line, "IBUS_ADDRESS="); ok {
			return strings.TrimSpace(addr), nil
		}
	}
	return "", fmt.Errorf("no IBUS_ADDRESS in %s", candidate)
}

func ibusBusDir() string {
	if cfg := os.Getenv("XDG_CONFIG_HOME"); cfg != "" {
		return filepath.Join(cfg, "ibus", "bus")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ibus", "bus")
}

func readMachineID() string {
	for _, path := range []string{"/var/lib/dbus/machine-id", "/etc/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

var _ Switcher = (*IBusSwitcher)(nil)
