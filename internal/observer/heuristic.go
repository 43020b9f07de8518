package observer

import (
	"sync"

	"modeswitchd/internal/host"
	"modeswitchd/internal/logging"
	"modeswitchd/internal/mode"
)

// IdentityHeuristic is the fallback observer's own identity.
const IdentityHeuristic = "cursor-heuristic"

// Mode estimates the heuristic can produce.
const (
	estimateNormal  = "normal"
	estimateInsert  = "insert"
	estimateReplace = "replace"
	estimateVisual  = "visual"
)

// Heuristic infers the editor mode from cursor rendering style and
// selection shape. It needs no cooperating extension, so Attach always
// succeeds. The estimate is deliberately coarse: a best-effort default
// for when no real integration is reachable, not a protocol.
type Heuristic struct {
	log *logging.Logger
}

// NewHeuristic creates the fallback observer.
func NewHeuristic(log *logging.Logger) *Heuristic {
	if log == nil {
		log = logging.Default()
	}
	return &Heuristic{log: log.WithComponent("observer." + IdentityHeuristic)}
}

func (h *Heuristic) Identity() string { return IdentityHeuristic }

// Identifiers is empty: the heuristic is not backed by any extension.
func (h *Heuristic) Identifiers() []string { return nil }

// IsNormalMode classifies with the generic policy; the heuristic's own
// payloads are plain mode-name strings.
func (h *Heuristic) IsNormalMode(v mode.Value) bool { return mode.IsNormal(v) }

// Attach subscribes to cursor style and selection changes and emits a
// mode estimate whenever it changes. Always returns true.
func (h *Heuristic) Attach(hc host.Context, fn Handler) bool {
	st := &heuristicState{fn: fn, origin: IdentityHeuristic}

	hc.Register(hc.OnCursorStyle(st.cursorChanged))
	hc.Register(hc.OnSelection(st.selectionChanged))
	h.log.Info("heuristic mode inference attached")
	return true
}

// heuristicState is one attachment's estimate. A fresh state per attach
// keeps re-setup passes independent.
type heuristicState struct {
	fn     Handler
	origin string

	mu        sync.Mutex
	candidate string // from cursor style
	visual    bool   // from selection shape, overrides candidate
	last      string // last emitted estimate
}

func (st *heuristicState) cursorChanged(style host.CursorStyle) {
	st.mu.Lock()
	switch style {
	case host.CursorBlock, host.CursorBlockOutline:
		st.candidate = estimateNormal
	case host.CursorLine, host.CursorLineThin:
		st.candidate = estimateInsert
	case host.CursorUnderline, host.CursorUnderlineThin:
		st.candidate = estimateReplace
	}
	st.emitLocked()
}

func (st *heuristicState) selectionChanged(sels []host.Selection) {
	st.mu.Lock()
	st.visual = visualShape(sels)
	st.emitLocked()
}

// visualShape reports whether the selections look like visual mode:
// multiple simultaneous selections, or any non-empty selection whose
// active end is not at (or one character before) its line's end.
func visualShape(sels []host.Selection) bool {
	if len(sels) > 1 {
		return true
	}
	for _, sel := range sels {
		if sel.Empty {
			continue
		}
		if sel.ActiveCol != sel.LineLen && sel.ActiveCol != sel.LineLen-1 {
			return true
		}
	}
	return false
}

// emitLocked reports the current estimate if it changed. Transitions
// only; repeated identical estimates stay silent. Unlocks st.mu.
func (st *heuristicState) emitLocked() {
	estimate := st.candidate
	if st.visual {
		estimate = estimateVisual
	}
	changed := estimate != "" && estimate != st.last
	if changed {
		st.last = estimate
	}
	st.mu.Unlock()

	if changed {
		st.fn(st.origin, estimate)
	}
}
