// Package controller wires configuration, the observer manager, and the
// IME switch service together.
//
// It is deliberately thin: all reactions funnel through the host
// runtime's dispatch loop, the manager owns attach policy, and the IME
// service owns the switch call. The controller only decides setup shape
// from configuration and routes classified normal-mode transitions to
// the switch.
package controller

import (
	"context"
	"sync"

	"modeswitchd/internal/config"
	"modeswitchd/internal/host"
	"modeswitchd/internal/ime"
	"modeswitchd/internal/logging"
	"modeswitchd/internal/metrics"
	"modeswitchd/internal/mode"
	"modeswitchd/internal/observer"
)

// Controller reacts to mode-change events and configuration changes.
type Controller struct {
	log   *logging.Logger
	mgr   *observer.Manager
	svc   *ime.Service
	rt    *host.Runtime
	stats *metrics.DaemonMetrics

	mu        sync.Mutex
	selection string
	onNormal  func(origin string)

	// setupMu serializes setup passes. Passes arrive from the config
	// reload goroutine, the IPC handler, and the dispatch goroutine's
	// topology hook; two overlapping passes would each leave a live
	// subscription for the same extension and a single notification
	// would be delivered twice.
	setupMu sync.Mutex
}

// New creates a Controller. stats may be nil.
func New(cfg *config.Config, mgr *observer.Manager, svc *ime.Service, rt *host.Runtime, stats *metrics.DaemonMetrics, log *logging.Logger) *Controller {
	if log == nil {
		log = logging.Default()
	}
	if stats == nil {
		stats = metrics.NewDaemonMetrics(nil)
	}
	return &Controller{
		log:       log.WithComponent("controller"),
		mgr:       mgr,
		svc:       svc,
		rt:        rt,
		stats:     stats,
		selection: cfg.Observer.Selection,
	}
}

// SetNormalHook installs a callback invoked after every classified
// normal-mode transition, e.g. to stream it to IPC subscribers. The hook
// runs on the dispatch goroutine; keep it short.
func (c *Controller) SetNormalHook(fn func(origin string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNormal = fn
}

// Selection returns the observer selection currently in force.
func (c *Controller) Selection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// Setup runs one registration pass: prior subscriptions are released
// through the host runtime, then observers attach according to the
// configured selection. Concurrent callers are serialized; a pass
// never interleaves with another.
func (c *Controller) Setup() {
	c.setupMu.Lock()
	defer c.setupMu.Unlock()

	c.mu.Lock()
	selection := c.selection
	c.mu.Unlock()

	c.rt.Reset()
	c.stats.SetupPasses.Inc()

	if selection == config.SelectionAuto {
		c.mgr.SetupAll(c.rt, c.onModeChange)
	} else {
		c.mgr.SetupOne(c.rt, selection, c.onModeChange)
	}

	attached := c.mgr.AttachedCount()
	c.stats.AttachedObservers.Set(int64(attached))
	failures := 0
	for _, outcome := range c.mgr.Outcomes() {
		if outcome == observer.OutcomeFailed {
			failures++
		}
	}
	c.stats.AttachFailures.Add(uint64(failures))
	if c.mgr.HeuristicActive() {
		c.stats.HeuristicActive.Set(1)
	} else {
		c.stats.HeuristicActive.Set(0)
	}

	c.log.Info("observer setup complete",
		"selection", selection,
		"attached", attached,
		"heuristic", c.mgr.HeuristicActive())
}

// Reconfigure adopts a new configuration and re-runs setup from
// scratch. A switch call already in flight is left to complete; its
// effect is simply superseded by subsequent state.
func (c *Controller) Reconfigure(cfg *config.Config) {
	c.mu.Lock()
	c.selection = cfg.Observer.Selection
	c.mu.Unlock()

	c.log.Info("configuration changed, re-running setup", "selection", cfg.Observer.Selection)
	c.Setup()
}

// Resetup re-runs the current setup, e.g. after an editor plugin
// connected or disconnected.
func (c *Controller) Resetup() {
	c.Setup()
}

// onModeChange is the single reaction path: classify the payload under
// its origin family, and force a Latin input method when normal mode
// began. Never lets a fault escape into the host's dispatch.
func (c *Controller) onModeChange(origin string, v mode.Value) {
	c.stats.ModeEvents.Inc()

	if !c.mgr.Classify(v, origin) {
		return
	}
	c.stats.NormalTransitions.Inc()
	c.log.Debug("normal mode began", "origin", origin, "mode", mode.Name(v))

	c.svc.EnsureLatin(context.Background())

	c.mu.Lock()
	notify := c.onNormal
	c.mu.Unlock()
	if notify != nil {
		notify(origin)
	}
}
