package observer

import (
	"errors"
	"testing"

	"modeswitchd/internal/host"
	"modeswitchd/internal/mode"
)

// fakeHost is a minimal host.Context for attach tests. Subscriptions are
// captured so tests can emit events and count registered disposers.
type fakeHost struct {
	exts       map[string]host.Extension
	registered []host.Disposable
	cursorFns  []func(host.CursorStyle)
	selFns     []func([]host.Selection)
}

func newFakeHost(exts ...host.Extension) *fakeHost {
	f := &fakeHost{exts: make(map[string]host.Extension)}
	for _, e := range exts {
		f.exts[e.ID()] = e
	}
	return f
}

func (f *fakeHost) Extension(id string) (host.Extension, bool) {
	e, ok := f.exts[id]
	return e, ok
}

func (f *fakeHost) OnCursorStyle(fn func(host.CursorStyle)) host.Disposable {
	f.cursorFns = append(f.cursorFns, fn)
	return host.DisposeFunc(func() {})
}

func (f *fakeHost) OnSelection(fn func([]host.Selection)) host.Disposable {
	f.selFns = append(f.selFns, fn)
	return host.DisposeFunc(func() {})
}

func (f *fakeHost) Register(d host.Disposable) {
	f.registered = append(f.registered, d)
}

func (f *fakeHost) emitCursor(style host.CursorStyle) {
	for _, fn := range f.cursorFns {
		fn(style)
	}
}

func (f *fakeHost) emitSelections(sels []host.Selection) {
	for _, fn := range f.selFns {
		fn(sels)
	}
}

// fakeExt simulates one extension as the host sees it.
type fakeExt struct {
	id      string
	active  bool
	exports any
}

func (e *fakeExt) ID() string   { return e.id }
func (e *fakeExt) Active() bool { return e.active }
func (e *fakeExt) Exports() any { return e.exports }

// fakeModeAPI is an exported API carrying the mode-change surface. The
// subscribed callback is kept so tests can emit payloads.
type fakeModeAPI struct {
	fn  func(mode.Value)
	err error
}

func (a *fakeModeAPI) OnModeChange(fn func(v mode.Value)) (host.Disposable, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.fn = fn
	return host.DisposeFunc(func() { a.fn = nil }), nil
}

func (a *fakeModeAPI) emit(v mode.Value) {
	if a.fn != nil {
		a.fn(v)
	}
}

// modeExt builds an active extension exporting the mode-change surface.
func modeExt(id string) (*fakeExt, *fakeModeAPI) {
	api := &fakeModeAPI{}
	return &fakeExt{id: id, active: true, exports: api}, api
}

// recorder collects normalized notifications.
type recorder struct {
	origins []string
	values  []mode.Value
}

func (r *recorder) handle(origin string, v mode.Value) {
	r.origins = append(r.origins, origin)
	r.values = append(r.values, v)
}

func TestFamilyAttachSubscribes(t *testing.T) {
	ext, api := modeExt("vscodevim.vim")
	hc := newFakeHost(ext)

	var rec recorder
	o := NewVim(nil)
	if !o.Attach(hc, rec.handle) {
		t.Fatal("attach should succeed for an active extension with the mode surface")
	}
	if len(hc.registered) != 1 {
		t.Fatalf("expected 1 registered disposer, got %d", len(hc.registered))
	}

	api.emit("Normal")
	if len(rec.origins) != 1 || rec.origins[0] != IdentityVim {
		t.Fatalf("expected one notification under %q, got %v", IdentityVim, rec.origins)
	}
	if rec.values[0] != mode.Value("Normal") {
		t.Errorf("payload not relayed verbatim: %v", rec.values[0])
	}
}

func TestFamilyAttachMissingExtension(t *testing.T) {
	hc := newFakeHost()
	if NewVim(nil).Attach(hc, func(string, mode.Value) {}) {
		t.Error("attach should fail when the extension is absent")
	}
	if len(hc.registered) != 0 {
		t.Error("nothing should be registered on failure")
	}
}

func TestFamilyAttachInactiveExtension(t *testing.T) {
	api := &fakeModeAPI{}
	hc := newFakeHost(&fakeExt{id: "vscodevim.vim", active: false, exports: api})
	if NewVim(nil).Attach(hc, func(string, mode.Value) {}) {
		t.Error("attach should fail for an inactive extension")
	}
}

func TestFamilyAttachWrongExports(t *testing.T) {
	hc := newFakeHost(&fakeExt{id: "vscodevim.vim", active: true, exports: struct{}{}})
	if NewVim(nil).Attach(hc, func(string, mode.Value) {}) {
		t.Error("attach should fail when exports lack the mode-change surface")
	}
}

func TestFamilyAttachNilExports(t *testing.T) {
	hc := newFakeHost(&fakeExt{id: "vscodevim.vim", active: true, exports: nil})
	if NewVim(nil).Attach(hc, func(string, mode.Value) {}) {
		t.Error("attach should fail when exports are nil")
	}
}

func TestFamilyAttachSubscriptionError(t *testing.T) {
	api := &fakeModeAPI{err: errors.New("subscription refused")}
	hc := newFakeHost(&fakeExt{id: "vscodevim.vim", active: true, exports: api})
	if NewVim(nil).Attach(hc, func(string, mode.Value) {}) {
		t.Error("attach should fail when the subscription errors")
	}
}

func TestDanceAttachSecondIdentifier(t *testing.T) {
	// Only the fork identifier is present; attach must find it.
	ext, api := modeExt("kend.dancehelixkey")
	hc := newFakeHost(ext)

	var rec recorder
	o := NewDance(nil)
	if !o.Attach(hc, rec.handle) {
		t.Fatal("attach should fall through to the second identifier")
	}

	api.emit(map[string]any{"mode": map[string]any{"name": "Normal"}})
	if len(rec.origins) != 1 || rec.origins[0] != IdentityDance {
		t.Fatalf("expected one notification under %q, got %v", IdentityDance, rec.origins)
	}
}

func TestDanceAttachPrefersCanonicalIdentifier(t *testing.T) {
	canonical, canonAPI := modeExt("gregoire.dance")
	fork, forkAPI := modeExt("kend.dancehelixkey")
	hc := newFakeHost(canonical, fork)

	var rec recorder
	if !NewDance(nil).Attach(hc, rec.handle) {
		t.Fatal("attach failed")
	}
	if canonAPI.fn == nil {
		t.Error("canonical identifier should be subscribed")
	}
	if forkAPI.fn != nil {
		t.Error("no union across identifiers: fork must stay unsubscribed")
	}
}

func TestIdentifiersAreCopies(t *testing.T) {
	o := NewDance(nil)
	ids := o.Identifiers()
	ids[0] = "mutated"
	if o.Identifiers()[0] == "mutated" {
		t.Error("Identifiers must return a copy")
	}
}
