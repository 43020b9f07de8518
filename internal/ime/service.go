package ime

import (
	"context"
	"time"

	"modeswitchd/internal/logging"
	"modeswitchd/internal/metrics"
)

// AcquireConfig controls switcher acquisition.
type AcquireConfig struct {
	// Framework selects the backend: "auto", "ibus", "fcitx5", "fcitx",
	// or "none" to run detection-only.
	Framework string

	// WaitTimeout bounds how long Acquire polls for a framework that is
	// still starting up. Zero means a single probe.
	WaitTimeout time.Duration
}

// Acquire resolves a Switcher, waiting for the framework to come up if
// necessary. Returns ErrUnavailable (or the config error) when nothing
// answers within the timeout; the caller is expected to warn once and
// continue in detection-only mode.
func Acquire(ctx context.Context, cfg AcquireConfig, log *logging.Logger) (Switcher, error) {
	if log == nil {
		log = logging.Default()
	}
	log = log.WithComponent("ime")

	if cfg.Framework == "none" {
		return nil, ErrUnavailable
	}

	deadline := time.Now().Add(cfg.WaitTimeout)
	for {
		sw, err := probe(cfg.Framework)
		if err == nil {
			log.Info("input method framework acquired", "framework", sw.Name())
			return sw, nil
		}

		if cfg.WaitTimeout <= 0 || time.Now().After(deadline) {
			return nil, err
		}
		log.Debug("input method framework not ready, retrying", "framework", cfg.Framework)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func probe(framework string) (Switcher, error) {
	if framework == "" || framework == "auto" {
		for _, sw := range candidates() {
			if sw.Available() {
				return sw, nil
			}
		}
		return nil, ErrUnavailable
	}

	sw, err := newSwitcher(framework)
	if err != nil {
		return nil, err
	}
	if !sw.Available() {
		return nil, ErrUnavailable
	}
	return sw, nil
}

// Service is the reaction-path wrapper around a Switcher: switch to the
// configured Latin engine, but only when the current engine is a CJK
// one, and never let a framework failure propagate.
type Service struct {
	sw      Switcher
	latin   string
	timeout time.Duration
	log     *logging.Logger
	stats   *metrics.DaemonMetrics
}

// DefaultLatinEngine is used when configuration names no target engine.
// A plain US keyboard layout under IBus naming; Fcitx5 accepts its own
// "keyboard-us" spelling, which the config may override.
const DefaultLatinEngine = "xkb:us::eng"

// NewService wraps a switcher. sw may be nil, producing a degraded
// service whose EnsureLatin only logs. stats may be nil.
func NewService(sw Switcher, latinEngine string, stats *metrics.DaemonMetrics, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Default()
	}
	if latinEngine == "" {
		latinEngine = DefaultLatinEngine
	}
	return &Service{
		sw:      sw,
		latin:   latinEngine,
		timeout: 3 * time.Second,
		log:     log.WithComponent("ime"),
		stats:   stats,
	}
}

// Degraded reports whether the service runs without a real switcher.
func (s *Service) Degraded() bool { return s.sw == nil }

// Framework names the backing switcher, or "none" when degraded.
func (s *Service) Framework() string {
	if s.sw == nil {
		return "none"
	}
	return s.sw.Name()
}

// EnsureLatin switches the active input method to the configured Latin
// engine when the current one is CJK. All failures are caught and
// logged; the next mode-change event gets a fresh attempt, there is no
// retry here.
func (s *Service) EnsureLatin(ctx context.Context) {
	if s.sw == nil {
		s.log.Debug("degraded mode, switch skipped")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.sw.Current(ctx)
	if err != nil {
		// The guard query failed; issue the switch anyway rather than
		// leave a composition window eating command keys.
		s.log.Debug("current engine query failed", "error", err)
	} else if !IsCJK(current) {
		s.log.Debug("current engine is not CJK, switch skipped", "engine", current)
		return
	}

	start := time.Now()
	err = s.sw.Switch(ctx, s.latin)
	if s.stats != nil {
		s.stats.RecordSwitch(time.Since(start), err)
	}
	if err != nil {
		s.log.Warn("input method switch failed", "engine", s.latin, "error", err)
		return
	}
	s.log.Debug("switched input method", "from", current, "to", s.latin)
}

// Available reports whether the backing framework is reachable.
func (s *Service) Available() bool {
	return s.sw != nil && s.sw.Available()
}

// Engine returns the currently active input method engine.
func (s *Service) Engine(ctx context.Context) (string, error) {
	if s.sw == nil {
		return "", ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sw.Current(ctx)
}
