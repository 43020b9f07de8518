package observer

import (
	"sync"

	"modeswitchd/internal/host"
	"modeswitchd/internal/logging"
	"modeswitchd/internal/mode"
)

// Outcome is the per-pass registration result for one family.
type Outcome int

const (
	// OutcomeUnattempted means no setup pass has reached this family yet.
	OutcomeUnattempted Outcome = iota
	// OutcomeAttached means the family's extension accepted a subscription.
	OutcomeAttached
	// OutcomeFailed means the extension was absent, inactive, or its API
	// shape was not recognized.
	OutcomeFailed
)

// String returns the outcome name for logs and status output.
func (o Outcome) String() string {
	switch o {
	case OutcomeAttached:
		return "attached"
	case OutcomeFailed:
		return "failed"
	default:
		return "unattempted"
	}
}

// Manager owns the observer registry and the attach-with-fallback
// policy. Registration outcomes are recomputed from scratch on every
// setup pass; there is no partial reconfiguration.
type Manager struct {
	log       *logging.Logger
	heuristic *Heuristic

	mu           sync.Mutex
	order        []string
	byIdentity   map[string]Observer
	byIdentifier map[string]Observer
	outcomes     map[string]Outcome
	heuristicOn  bool
}

// NewManager creates an empty Manager with its own heuristic observer.
func NewManager(log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		log:          log.WithComponent("manager"),
		heuristic:    NewHeuristic(log),
		byIdentity:   make(map[string]Observer),
		byIdentifier: make(map[string]Observer),
		outcomes:     make(map[string]Outcome),
	}
}

// Register adds an observer to the identity registry and maps every
// identifier it claims. Idempotent per identity: a second registration
// under the same identity is ignored.
func (m *Manager) Register(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity := o.Identity()
	if _, exists := m.byIdentity[identity]; exists {
		return
	}
	m.byIdentity[identity] = o
	m.order = append(m.order, identity)
	m.outcomes[identity] = OutcomeUnattempted
	for _, id := range o.Identifiers() {
		m.byIdentifier[id] = o
	}
}

// Lookup resolves an observer by family identity or by any of its
// published extension identifiers.
func (m *Manager) Lookup(key string) (Observer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byIdentity[key]; ok {
		return o, true
	}
	o, ok := m.byIdentifier[key]
	return o, ok
}

// Identities returns the registered family identities in registration
// order.
func (m *Manager) Identities() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// SetupAll attempts to attach every registered family observer in
// registration order. The heuristic observer is installed only when
// every family failed: partial coverage from real integrations is
// judged more trustworthy than mixing real signals with heuristic
// noise, so one success suppresses the fallback entirely.
func (m *Manager) SetupAll(hc host.Context, fn Handler) {
	m.resetOutcomes()

	m.mu.Lock()
	order := make([]string, len(m.order))
	copy(order, m.order)
	m.mu.Unlock()

	attachedAny := false
	for _, identity := range order {
		o, _ := m.Lookup(identity)
		ok := m.safeAttach(o, hc, fn)
		m.setOutcome(identity, ok)
		if ok {
			attachedAny = true
		} else {
			m.log.Info("observer attach failed", "identity", identity)
		}
	}

	if attachedAny {
		return
	}
	m.log.Info("no editor integration reachable, falling back to heuristic")
	m.heuristic.Attach(hc, fn)
	m.mu.Lock()
	m.heuristicOn = true
	m.mu.Unlock()
}

// SetupOne attempts to attach exactly the requested family. On failure
// the heuristic observer substitutes for that family alone, reporting
// its estimates under the family's identity. An unknown identity
// attaches nothing, fallback included. Returns true iff the real
// extension attached.
func (m *Manager) SetupOne(hc host.Context, identity string, fn Handler) bool {
	m.resetOutcomes()

	o, ok := m.lookupIdentity(identity)
	if !ok {
		m.log.Warn("unknown observer identity, nothing attached", "identity", identity)
		return false
	}

	if m.safeAttach(o, hc, fn) {
		m.setOutcome(identity, true)
		return true
	}
	m.setOutcome(identity, false)

	m.log.Info("observer attach failed, substituting heuristic", "identity", identity)
	m.heuristic.Attach(hc, func(_ string, v mode.Value) {
		fn(identity, v)
	})
	m.mu.Lock()
	m.heuristicOn = true
	m.mu.Unlock()
	return false
}

// Classify interprets a mode payload. A known origin delegates to that
// family's own strategy, even when it disagrees with the generic one;
// anything else gets the generic policy.
func (m *Manager) Classify(v mode.Value, origin string) bool {
	if origin != "" {
		if origin == IdentityHeuristic {
			return m.heuristic.IsNormalMode(v)
		}
		if o, ok := m.lookupIdentity(origin); ok {
			return o.IsNormalMode(v)
		}
	}
	return mode.IsNormal(v)
}

// Outcomes returns a copy of the per-family outcomes for the current
// pass.
func (m *Manager) Outcomes() map[string]Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Outcome, len(m.outcomes))
	for k, v := range m.outcomes {
		out[k] = v
	}
	return out
}

// HeuristicActive reports whether the current pass installed the
// fallback observer.
func (m *Manager) HeuristicActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heuristicOn
}

// AttachedCount returns how many families attached in the current pass.
func (m *Manager) AttachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.outcomes {
		if o == OutcomeAttached {
			n++
		}
	}
	return n
}

func (m *Manager) lookupIdentity(identity string) (Observer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byIdentity[identity]
	return o, ok
}

// resetOutcomes starts a clean pass: every family back to unattempted,
// fallback uninstalled. Prior subscriptions are expected to have been
// released by the host context before re-setup.
func (m *Manager) resetOutcomes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for identity := range m.outcomes {
		m.outcomes[identity] = OutcomeUnattempted
	}
	m.heuristicOn = false
}

func (m *Manager) setOutcome(identity string, attached bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attached {
		m.outcomes[identity] = OutcomeAttached
	} else {
		m.outcomes[identity] = OutcomeFailed
	}
}

// safeAttach shields a setup pass from a panicking attach; the fault is
// logged and recorded as a plain failure.
func (m *Manager) safeAttach(o Observer, hc host.Context, fn Handler) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("observer attach panicked", "identity", o.Identity(), "panic", r)
			ok = false
		}
	}()
	return o.Attach(hc, fn)
}
