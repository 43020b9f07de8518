// Package observer normalizes mode-change notifications from modal editor
// extensions.
//
// Each supported editor family gets one Observer: it knows every
// identifier the family has shipped under, how to subscribe to that
// family's mode-change channel through the host, and how that family
// spells "normal mode". A heuristic fallback observer covers the case
// where no family extension is reachable, inferring the mode from cursor
// rendering style and selection shape. The Manager owns the registry and
// the attach-with-fallback policy.
package observer

import (
	"modeswitchd/internal/host"
	"modeswitchd/internal/logging"
	"modeswitchd/internal/mode"
)

// Handler receives normalized mode-change notifications. origin is the
// identity of the family the payload was reported under, so callers can
// classify the payload with that family's own strategy.
type Handler func(origin string, v mode.Value)

// Observer adapts one editor family's mode-change notifications.
type Observer interface {
	// Identity is the stable family key used in configuration and
	// classification. Distinct from the published extension identifiers.
	Identity() string

	// Identifiers lists every extension identifier this family is known
	// to ship under, canonical first. Forks and renames keep their old
	// entries.
	Identifiers() []string

	// Attach locates an active instance of this family among its known
	// identifiers, subscribes to its mode-change channel, and relays
	// payloads to fn. Returns true iff a subscription was installed; a
	// missing, inactive, or unrecognizable extension yields false, never
	// a panic. Successful subscriptions are registered with the host
	// context for disposal.
	Attach(hc host.Context, fn Handler) bool

	// IsNormalMode classifies a payload with this family's strategy.
	IsNormalMode(v mode.Value) bool
}

// family is the common Observer implementation for extension-backed
// editor families.
type family struct {
	identity string
	ids      []string
	strategy mode.Strategy // nil means the generic policy
	log      *logging.Logger
}

func newFamily(identity string, ids []string, strategy mode.Strategy, log *logging.Logger) *family {
	if log == nil {
		log = logging.Default()
	}
	return &family{
		identity: identity,
		ids:      ids,
		strategy: strategy,
		log:      log.WithComponent("observer." + identity),
	}
}

func (f *family) Identity() string { return f.identity }

func (f *family) Identifiers() []string {
	out := make([]string, len(f.ids))
	copy(out, f.ids)
	return out
}

func (f *family) IsNormalMode(v mode.Value) bool {
	if f.strategy != nil {
		return f.strategy(v)
	}
	return mode.IsNormal(v)
}

// Attach tries each known identifier in listed order; the first one that
// is present, active, and exposes the mode-change surface wins. No
// attempt is made to union notifications across identifiers.
func (f *family) Attach(hc host.Context, fn Handler) bool {
	for _, id := range f.ids {
		ext, ok := hc.Extension(id)
		if !ok || ext == nil {
			continue
		}
		if !ext.Active() {
			f.log.Debug("extension present but inactive", "id", id)
			continue
		}
		api, ok := ext.Exports().(host.ModeEvents)
		if !ok {
			f.log.Debug("extension exports lack mode-change surface", "id", id)
			continue
		}
		d, err := api.OnModeChange(func(v mode.Value) {
			fn(f.identity, v)
		})
		if err != nil {
			f.log.Warn("mode-change subscription failed", "id", id, "error", err)
			continue
		}
		hc.Register(d)
		f.log.Info("attached", "id", id)
		return true
	}
	return false
}
