package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validFrameworks = map[string]bool{
	"auto": true, "ibus": true, "fcitx5": true, "fcitx": true, "none": true,
}

var validLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the configuration for structural errors. An unknown
// observer selection is deliberately NOT an error: the daemon must load,
// log, and idle until reconfigured.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if strings.TrimSpace(c.Observer.Selection) == "" {
		errs = append(errs, ValidationError{
			Field:   "observer.selection",
			Message: `must be "auto" or an observer identity`,
		})
	}

	if !validFrameworks[c.IME.Framework] {
		errs = append(errs, ValidationError{
			Field:   "ime.framework",
			Message: fmt.Sprintf("unknown framework %q", c.IME.Framework),
		})
	}
	if c.IME.WaitTimeoutSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "ime.wait_timeout_sec",
			Message: "must not be negative",
		})
	}

	if c.IPC.Enabled && strings.TrimSpace(c.IPC.SocketPath) == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "required when ipc is enabled",
		})
	}
	if c.IPC.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "must be at least 1",
		})
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
		})
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", c.Logging.Format),
		})
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		errs = append(errs, ValidationError{
			Field:   "metrics.listen",
			Message: "required when metrics are enabled",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
