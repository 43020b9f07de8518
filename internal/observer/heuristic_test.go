package observer

import (
	"testing"

	"modeswitchd/internal/host"
	"modeswitchd/internal/mode"
)

func TestHeuristicAttachAlwaysSucceeds(t *testing.T) {
	hc := newFakeHost()
	h := NewHeuristic(nil)
	if !h.Attach(hc, func(string, mode.Value) {}) {
		t.Fatal("heuristic attach must always succeed")
	}
	if len(hc.cursorFns) != 1 || len(hc.selFns) != 1 {
		t.Errorf("expected cursor and selection subscriptions, got %d/%d",
			len(hc.cursorFns), len(hc.selFns))
	}
	if len(hc.registered) != 2 {
		t.Errorf("expected 2 registered disposers, got %d", len(hc.registered))
	}
}

func TestHeuristicCursorEstimates(t *testing.T) {
	tests := []struct {
		style host.CursorStyle
		want  string
	}{
		{host.CursorBlock, "normal"},
		{host.CursorBlockOutline, "normal"},
		{host.CursorLine, "insert"},
		{host.CursorLineThin, "insert"},
		{host.CursorUnderline, "replace"},
		{host.CursorUnderlineThin, "replace"},
	}
	for _, tt := range tests {
		t.Run(tt.style.String(), func(t *testing.T) {
			hc := newFakeHost()
			var rec recorder
			NewHeuristic(nil).Attach(hc, rec.handle)

			hc.emitCursor(tt.style)
			if len(rec.values) != 1 {
				t.Fatalf("expected 1 estimate, got %d", len(rec.values))
			}
			if rec.values[0] != mode.Value(tt.want) {
				t.Errorf("estimate = %v, want %q", rec.values[0], tt.want)
			}
			if rec.origins[0] != IdentityHeuristic {
				t.Errorf("origin = %q, want %q", rec.origins[0], IdentityHeuristic)
			}
		})
	}
}

func TestHeuristicEmitsTransitionsOnly(t *testing.T) {
	hc := newFakeHost()
	var rec recorder
	NewHeuristic(nil).Attach(hc, rec.handle)

	hc.emitCursor(host.CursorBlock)
	hc.emitCursor(host.CursorBlock)
	hc.emitCursor(host.CursorBlock)
	if len(rec.values) != 1 {
		t.Fatalf("repeated identical estimates must stay silent, got %d emissions", len(rec.values))
	}

	hc.emitCursor(host.CursorLine)
	hc.emitCursor(host.CursorBlock)
	if len(rec.values) != 3 {
		t.Fatalf("expected normal, insert, normal; got %v", rec.values)
	}
	want := []string{"normal", "insert", "normal"}
	for i, w := range want {
		if rec.values[i] != mode.Value(w) {
			t.Errorf("emission %d = %v, want %q", i, rec.values[i], w)
		}
	}
}

func TestHeuristicSelectionOverridesCursor(t *testing.T) {
	hc := newFakeHost()
	var rec recorder
	NewHeuristic(nil).Attach(hc, rec.handle)

	hc.emitCursor(host.CursorBlock) // normal

	// A non-empty selection mid-line looks like visual mode.
	hc.emitSelections([]host.Selection{{Empty: false, ActiveLine: 2, ActiveCol: 4, LineLen: 30}})
	// Selection collapses back to a caret.
	hc.emitSelections([]host.Selection{{Empty: true, ActiveLine: 2, ActiveCol: 4, LineLen: 30}})

	want := []string{"normal", "visual", "normal"}
	if len(rec.values) != len(want) {
		t.Fatalf("expected %v, got %v", want, rec.values)
	}
	for i, w := range want {
		if rec.values[i] != mode.Value(w) {
			t.Errorf("emission %d = %v, want %q", i, rec.values[i], w)
		}
	}
}

func TestHeuristicMultipleSelectionsAreVisual(t *testing.T) {
	hc := newFakeHost()
	var rec recorder
	NewHeuristic(nil).Attach(hc, rec.handle)

	hc.emitCursor(host.CursorBlock)
	hc.emitSelections([]host.Selection{
		{Empty: true, ActiveLine: 1, ActiveCol: 0, LineLen: 10},
		{Empty: true, ActiveLine: 2, ActiveCol: 0, LineLen: 10},
	})
	if rec.values[len(rec.values)-1] != mode.Value("visual") {
		t.Errorf("multiple selections should estimate visual, got %v", rec.values)
	}
}

func TestHeuristicLineEndSelectionIsNotVisual(t *testing.T) {
	// vim's normal-mode caret on the last character shows as a one-wide
	// selection ending at or just before the line end; that is not visual.
	hc := newFakeHost()
	var rec recorder
	NewHeuristic(nil).Attach(hc, rec.handle)

	hc.emitCursor(host.CursorBlock)
	hc.emitSelections([]host.Selection{{Empty: false, ActiveLine: 0, ActiveCol: 9, LineLen: 10}})
	hc.emitSelections([]host.Selection{{Empty: false, ActiveLine: 0, ActiveCol: 10, LineLen: 10}})

	for _, v := range rec.values {
		if v == mode.Value("visual") {
			t.Fatalf("line-end selection misread as visual: %v", rec.values)
		}
	}
}

func TestHeuristicSelectionBeforeCursorStyle(t *testing.T) {
	// No cursor estimate yet: an empty-selection event alone has nothing
	// to report.
	hc := newFakeHost()
	var rec recorder
	NewHeuristic(nil).Attach(hc, rec.handle)

	hc.emitSelections([]host.Selection{{Empty: true}})
	if len(rec.values) != 0 {
		t.Fatalf("no estimate expected before any signal, got %v", rec.values)
	}

	// But a visual-shaped selection is a signal by itself.
	hc.emitSelections([]host.Selection{{Empty: false, ActiveLine: 0, ActiveCol: 3, LineLen: 20}})
	if len(rec.values) != 1 || rec.values[0] != mode.Value("visual") {
		t.Fatalf("expected visual estimate, got %v", rec.values)
	}
}

func TestHeuristicIdentity(t *testing.T) {
	h := NewHeuristic(nil)
	if h.Identity() != IdentityHeuristic {
		t.Errorf("identity = %q", h.Identity())
	}
	if len(h.Identifiers()) != 0 {
		t.Errorf("heuristic should claim no extension identifiers, got %v", h.Identifiers())
	}
	if !h.IsNormalMode("normal") {
		t.Error("heuristic estimates are plain mode names")
	}
}
