package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("version = %d, want %d", cfg.Version, Version)
	}
	if cfg.Observer.Selection != SelectionAuto {
		t.Errorf("selection = %q, want %q", cfg.Observer.Selection, SelectionAuto)
	}
	if cfg.IME.Framework != "auto" {
		t.Errorf("framework = %q, want auto", cfg.IME.Framework)
	}
	if cfg.IME.LatinEngine != "xkb:us::eng" {
		t.Errorf("latin engine = %q", cfg.IME.LatinEngine)
	}
	if !cfg.IPC.Enabled {
		t.Error("ipc should default on")
	}
	if cfg.IPC.SocketPath == "" {
		t.Error("socket path should have a default")
	}
	if !strings.Contains(cfg.Logging.FilePath, "modeswitchd") {
		t.Errorf("log path should contain modeswitchd: %s", cfg.Logging.FilePath)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should default off")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("MODESWITCHD_CONFIG", "")
	os.Unsetenv("MODESWITCHD_CONFIG")
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}

	t.Setenv("MODESWITCHD_CONFIG", "/tmp/override.toml")
	if ConfigPath() != "/tmp/override.toml" {
		t.Errorf("env override ignored: %s", ConfigPath())
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Observer.Selection != SelectionAuto {
		t.Errorf("selection = %q", cfg.Observer.Selection)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
version = 1

[observer]
selection = "neovim"

[ime]
framework = "fcitx5"
latin_engine = "keyboard-us"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Observer.Selection != "neovim" {
		t.Errorf("selection = %q", cfg.Observer.Selection)
	}
	if cfg.IME.Framework != "fcitx5" {
		t.Errorf("framework = %q", cfg.IME.Framework)
	}
	if cfg.IME.LatinEngine != "keyboard-us" {
		t.Errorf("latin engine = %q", cfg.IME.LatinEngine)
	}
	// Untouched sections keep their defaults.
	if !cfg.IPC.Enabled {
		t.Error("ipc default lost")
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"version": 1, "observer": {"selection": "dance"}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Observer.Selection != "dance" {
		t.Errorf("selection = %q", cfg.Observer.Selection)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "version: 1\nobserver:\n  selection: vim\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Observer.Selection != "vim" {
		t.Errorf("selection = %q", cfg.Observer.Selection)
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[observer\nselection="), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed TOML should error")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
[ime]
framework = "scim"
`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("unknown framework should fail validation")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODESWITCHD_OBSERVER", "neovim")
	t.Setenv("MODESWITCHD_IME_FRAMEWORK", "ibus")
	t.Setenv("MODESWITCHD_LATIN_ENGINE", "xkb:gb:extd:eng")
	t.Setenv("MODESWITCHD_LOG_LEVEL", "debug")
	t.Setenv("MODESWITCHD_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Observer.Selection != "neovim" {
		t.Errorf("selection = %q", cfg.Observer.Selection)
	}
	if cfg.IME.Framework != "ibus" {
		t.Errorf("framework = %q", cfg.IME.Framework)
	}
	if cfg.IME.LatinEngine != "xkb:gb:extd:eng" {
		t.Errorf("latin engine = %q", cfg.IME.LatinEngine)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if !cfg.Debug {
		t.Error("debug flag not applied")
	}
}

func TestValidateUnknownSelectionIsAccepted(t *testing.T) {
	// An unknown identity is a runtime concern, not a load failure: the
	// daemon loads, logs, and idles until reconfigured.
	cfg := DefaultConfig()
	cfg.Observer.Selection = "kakoune"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unknown selection must validate: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty selection", func(c *Config) { c.Observer.Selection = " " }, "observer.selection"},
		{"bad framework", func(c *Config) { c.IME.Framework = "scim" }, "ime.framework"},
		{"negative timeout", func(c *Config) { c.IME.WaitTimeoutSec = -1 }, "ime.wait_timeout_sec"},
		{"empty socket", func(c *Config) { c.IPC.SocketPath = "" }, "ipc.socket_path"},
		{"zero connections", func(c *Config) { c.IPC.MaxConnections = 0 }, "ipc.max_connections"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad version", func(c *Config) { c.Version = 0 }, "version"},
		{"future version", func(c *Config) { c.Version = Version + 1 }, "version"},
		{"metrics without listen", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "" }, "metrics.listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name field %s", err, tt.field)
			}
		})
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Observer.Selection = "vim"
	if cfg.Observer.Selection != SelectionAuto {
		t.Error("mutating the clone changed the original")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "modeswitchd.log")
	cfg.IPC.SocketPath = filepath.Join(dir, "run", "modeswitchd.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{filepath.Join(dir, "logs"), filepath.Join(dir, "run")} {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("directory %s not created: %v", d, err)
		}
	}
}

func TestLoaderReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	write := func(selection string) {
		t.Helper()
		data := "version = 1\n[observer]\nselection = \"" + selection + "\"\n"
		if err := os.WriteFile(path, []byte(data), 0600); err != nil {
			t.Fatal(err)
		}
	}
	write("auto")

	l := NewLoader(path)
	defer l.Close()

	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *Config, 4)
	l.OnChange(func(cfg *Config) { changed <- cfg })
	if err := l.Watch(); err != nil {
		t.Fatal(err)
	}

	write("neovim")

	select {
	case cfg := <-changed:
		if cfg.Observer.Selection != "neovim" {
			t.Errorf("reloaded selection = %q", cfg.Observer.Selection)
		}
		if l.Config().Observer.Selection != "neovim" {
			t.Error("loader did not adopt the reloaded config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never fired")
	}
}

func TestLoaderKeepsConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("version = 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *Config, 4)
	l.OnChange(func(cfg *Config) { changed <- cfg })
	if err := l.Watch(); err != nil {
		t.Fatal(err)
	}

	// A broken file keeps the previous configuration in force.
	if err := os.WriteFile(path, []byte("[observer\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Fatal("broken file must not notify subscribers")
	case <-time.After(1 * time.Second):
	}
	if l.Config().Observer.Selection != SelectionAuto {
		t.Error("previous config lost")
	}
}
