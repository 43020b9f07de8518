// Package config handles configuration loading, validation, and
// hot-reloading for modeswitchd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// Version is the current configuration schema version.
const Version = 1

// SelectionAuto attaches every known observer and applies the
// all-or-fallback policy; any other selection names a single observer
// identity.
const SelectionAuto = "auto"

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Observer selects which editor-family observers attach.
	Observer ObserverConfig `toml:"observer" json:"observer" yaml:"observer"`

	// IME configures the input-method switch backend.
	IME IMEConfig `toml:"ime" json:"ime" yaml:"ime"`

	// IPC configures the Unix-socket bridge for editor plugins and ctl.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configures the optional metrics endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Debug raises log verbosity to debug regardless of Logging.Level.
	Debug bool `toml:"debug" json:"debug" yaml:"debug"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// ObserverConfig selects the mode-detection source.
type ObserverConfig struct {
	// Selection is "auto" or one observer identity (e.g. "vim",
	// "neovim", "dance"). Unknown identities load fine and simply attach
	// nothing; the daemon logs and idles until reconfigured.
	Selection string `toml:"selection" json:"selection" yaml:"selection"`
}

// IMEConfig holds input-method switch configuration.
type IMEConfig struct {
	// Framework is "auto", "ibus", "fcitx5", "fcitx", or "none".
	Framework string `toml:"framework" json:"framework" yaml:"framework"`

	// LatinEngine is the engine switched to on normal-mode entry.
	LatinEngine string `toml:"latin_engine" json:"latin_engine" yaml:"latin_engine"`

	// WaitTimeoutSec bounds how long startup waits for the framework.
	WaitTimeoutSec int `toml:"wait_timeout_sec" json:"wait_timeout_sec" yaml:"wait_timeout_sec"`
}

// IPCConfig holds the bridge socket configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server runs. Without it no
	// editor plugin can reach the daemon, so it defaults on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the Unix socket path.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// MaxConnections is the maximum concurrent client count.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the per-connection idle timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output includes "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig holds the scrape endpoint configuration.
type MetricsConfig struct {
	// Enabled determines whether the HTTP endpoint is served.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Listen is the HTTP listen address, loopback by default.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Observer: ObserverConfig{
			Selection: SelectionAuto,
		},
		IME: IMEConfig{
			Framework:      "auto",
			LatinEngine:    "xkb:us::eng",
			WaitTimeoutSec: 10,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			MaxConnections: 16,
			TimeoutSec:     30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(stateDir(), "modeswitchd.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9823",
		},
		Debug: false,
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if env := os.Getenv("MODESWITCHD_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(configDir(), "config.toml")
}

// DataDir returns the base modeswitchd state directory.
func DataDir() string {
	if env := os.Getenv("MODESWITCHD_DATA_DIR"); env != "" {
		return env
	}
	return stateDir()
}

// EnsureDirectories creates all directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.IPC.SocketPath),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies MODESWITCHD_* environment overrides.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("MODESWITCHD_OBSERVER"); v != "" {
		c.Observer.Selection = v
	}
	if v := os.Getenv("MODESWITCHD_IME_FRAMEWORK"); v != "" {
		c.IME.Framework = v
	}
	if v := os.Getenv("MODESWITCHD_LATIN_ENGINE"); v != "" {
		c.IME.LatinEngine = v
	}
	if v := os.Getenv("MODESWITCHD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("MODESWITCHD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MODESWITCHD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("MODESWITCHD_DEBUG"); v == "1" || v == "true" {
		c.Debug = true
	}
}

// Clone returns a copy of the configuration safe to hand across
// goroutines.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := Config{
		Version:  c.Version,
		Observer: c.Observer,
		IME:      c.IME,
		IPC:      c.IPC,
		Logging:  c.Logging,
		Metrics:  c.Metrics,
		Debug:    c.Debug,
	}
	return &clone
}

// Helper functions

func configDir() string {
	if cfg := os.Getenv("XDG_CONFIG_HOME"); cfg != "" {
		return filepath.Join(cfg, "modeswitchd")
	}
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "modeswitchd")
	default:
		return filepath.Join(home, ".config", "modeswitchd")
	}
}

func stateDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "modeswitchd")
	default:
		if state := os.Getenv("XDG_STATE_HOME"); state != "" {
			return filepath.Join(state, "modeswitchd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "state", "modeswitchd")
	}
}

func defaultSocketPath() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "modeswitchd", "modeswitchd.sock")
	case "linux":
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "modeswitchd.sock")
		}
		return "/tmp/modeswitchd.sock"
	default:
		return "/tmp/modeswitchd.sock"
	}
}
