// Package host abstracts the editor extension host.
//
// Observers never talk to an editor directly. They depend on a narrow
// Context capability: look up an extension by identifier, subscribe to
// low-level editor state (cursor rendering style, selection shapes), and
// register disposers with the hosting lifecycle. The production Context is
// the Runtime in this package, fed by editor plugins over the IPC bridge;
// tests supply fakes that simulate presence, absence, and notification
// timing without a live editor.
package host

import "modeswitchd/internal/mode"

// Disposable releases a subscription or other attached resource.
// Dispose must be idempotent.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to the Disposable interface.
type DisposeFunc func()

// Dispose calls the function. A nil DisposeFunc is a no-op.
func (f DisposeFunc) Dispose() {
	if f != nil {
		f()
	}
}

// Extension is one editor-family extension as seen through the host.
// Every access step is optional: an extension may be present but
// inactive, and its Exports may not carry the expected surface.
type Extension interface {
	// ID is the published extension identifier, e.g. "vscodevim.vim".
	ID() string

	// Active reports whether the extension has finished activating.
	Active() bool

	// Exports returns the extension's exported API, or nil. Callers
	// probe it for the surfaces they expect and must tolerate any shape.
	Exports() any
}

// ModeEvents is the subscribe-style surface a modal editor extension is
// expected to export. The payload shape is family-specific and opaque.
type ModeEvents interface {
	OnModeChange(fn func(v mode.Value)) (Disposable, error)
}

// Context is the slice of the extension host the mode observers need.
type Context interface {
	// Extension looks up an extension by identifier. The second return
	// is false when no such extension is known to the host.
	Extension(id string) (Extension, bool)

	// OnCursorStyle subscribes to cursor rendering style changes.
	OnCursorStyle(fn func(style CursorStyle)) Disposable

	// OnSelection subscribes to selection shape changes. The slice holds
	// every selection in the active editor, primary first.
	OnSelection(fn func(sels []Selection)) Disposable

	// Register ties a disposer to the host lifecycle so re-setup or
	// shutdown releases it. Every subscription an observer installs
	// must be registered here.
	Register(d Disposable)
}

// CursorStyle is the rendering style of the editor caret.
type CursorStyle int

// Cursor rendering styles, mirroring the editor's own enumeration.
const (
	CursorLine CursorStyle = iota + 1
	CursorBlock
	CursorUnderline
	CursorLineThin
	CursorBlockOutline
	CursorUnderlineThin
)

var cursorStyleNames = map[CursorStyle]string{
	CursorLine:          "line",
	CursorBlock:         "block",
	CursorUnderline:     "underline",
	CursorLineThin:      "line-thin",
	CursorBlockOutline:  "block-outline",
	CursorUnderlineThin: "underline-thin",
}

// String returns the wire name of the style, or "unknown".
func (s CursorStyle) String() string {
	if name, ok := cursorStyleNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseCursorStyle maps a wire name to a CursorStyle.
func ParseCursorStyle(name string) (CursorStyle, bool) {
	for style, n := range cursorStyleNames {
		if n == name {
			return style, true
		}
	}
	return 0, false
}

// Selection describes one selection's shape, reduced to what the
// heuristic observer needs.
type Selection struct {
	// Empty is true when the selection is a bare caret.
	Empty bool

	// ActiveLine and ActiveCol are the position of the selection's
	// active end (zero-based).
	ActiveLine int
	ActiveCol  int

	// LineLen is the length of the line the active end sits on.
	LineLen int
}
