package host

import (
	"sort"
	"sync"

	"modeswitchd/internal/logging"
	"modeswitchd/internal/mode"
)

// SurfaceModeEvents is the capability name an editor plugin announces when
// its extension exports a mode-change subscription.
const SurfaceModeEvents = "mode-events"

// Runtime is the production Context, fed by editor plugins over the IPC
// bridge. All deliveries run on a single dispatch goroutine so reactions
// are serialized in arrival order; a slow reaction delays later events
// but never interleaves with them.
type Runtime struct {
	log *logging.Logger

	mu          sync.Mutex
	exts        map[string]*runtimeExtension
	modeSubs    map[string]map[int]func(mode.Value)
	cursorSubs  map[int]func(CursorStyle)
	selSubs     map[int]func([]Selection)
	topoSubs    map[int]func()
	registered  []Disposable
	nextSub     int

	queue chan func()
	stop  chan struct{}
	done  chan struct{}
}

// runtimeExtension is the host-side record of an announced extension.
type runtimeExtension struct {
	rt       *Runtime
	id       string
	active   bool
	surfaces map[string]bool
}

// queueDepth bounds how many undispatched events may pile up behind a
// slow reaction before the bridge connection is pushed back on.
const queueDepth = 256

// NewRuntime creates a Runtime. Start must be called before any
// delivery methods.
func NewRuntime(log *logging.Logger) *Runtime {
	if log == nil {
		log = logging.Default()
	}
	return &Runtime{
		log:        log.WithComponent("host"),
		exts:       make(map[string]*runtimeExtension),
		modeSubs:   make(map[string]map[int]func(mode.Value)),
		cursorSubs: make(map[int]func(CursorStyle)),
		selSubs:    make(map[int]func([]Selection)),
		topoSubs:   make(map[int]func()),
		queue:      make(chan func(), queueDepth),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the dispatch loop.
func (rt *Runtime) Start() {
	go rt.dispatchLoop()
}

// Stop drains the dispatch loop and disposes every registered handle.
func (rt *Runtime) Stop() {
	rt.Reset()
	close(rt.stop)
	<-rt.done
}

func (rt *Runtime) dispatchLoop() {
	defer close(rt.done)
	for {
		select {
		case fn := <-rt.queue:
			rt.dispatch(fn)
		case <-rt.stop:
			// Drain what already arrived, then exit.
			for {
				select {
				case fn := <-rt.queue:
					rt.dispatch(fn)
				default:
					return
				}
			}
		}
	}
}

// dispatch runs one queued reaction. A panicking handler is logged and
// must not abort dispatch for unrelated listeners.
func (rt *Runtime) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.log.Error("reaction panic recovered", "panic", r)
		}
	}()
	fn()
}

// Extension implements Context.
func (rt *Runtime) Extension(id string) (Extension, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	ext, ok := rt.exts[id]
	if !ok {
		return nil, false
	}
	return ext, true
}

// OnCursorStyle implements Context.
func (rt *Runtime) OnCursorStyle(fn func(CursorStyle)) Disposable {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.nextSub
	rt.nextSub++
	rt.cursorSubs[id] = fn
	return DisposeFunc(func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		delete(rt.cursorSubs, id)
	})
}

// OnSelection implements Context.
func (rt *Runtime) OnSelection(fn func([]Selection)) Disposable {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.nextSub
	rt.nextSub++
	rt.selSubs[id] = fn
	return DisposeFunc(func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		delete(rt.selSubs, id)
	})
}

// Register implements Context.
func (rt *Runtime) Register(d Disposable) {
	if d == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.registered = append(rt.registered, d)
}

// Reset disposes every registered handle, releasing all subscriptions
// from the previous setup pass. Must run before re-setup; skipping it
// is how duplicate notification delivery happens.
func (rt *Runtime) Reset() {
	rt.mu.Lock()
	handles := rt.registered
	rt.registered = nil
	rt.mu.Unlock()

	// Dispose outside the lock; disposers re-enter to unsubscribe.
	for i := len(handles) - 1; i >= 0; i-- {
		handles[i].Dispose()
	}
}

// OnTopologyChange subscribes to extension announce/retire events. The
// daemon uses this to re-run observer setup when an editor plugin
// connects or disconnects. Not part of the Context capability.
func (rt *Runtime) OnTopologyChange(fn func()) Disposable {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.nextSub
	rt.nextSub++
	rt.topoSubs[id] = fn
	return DisposeFunc(func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		delete(rt.topoSubs, id)
	})
}

// Announce records an extension as present and active, with the surface
// capabilities its plugin declared. Announcing an already-known
// extension updates its surfaces.
func (rt *Runtime) Announce(id string, surfaces []string) {
	rt.mu.Lock()
	ext, ok := rt.exts[id]
	if !ok {
		ext = &runtimeExtension{rt: rt, id: id, surfaces: make(map[string]bool)}
		rt.exts[id] = ext
	}
	ext.active = true
	for k := range ext.surfaces {
		delete(ext.surfaces, k)
	}
	for _, s := range surfaces {
		ext.surfaces[s] = true
	}
	rt.mu.Unlock()

	rt.log.Info("extension announced", "id", id, "surfaces", surfaces)
	rt.notifyTopology()
}

// Retire removes an extension, e.g. when its plugin disconnects. Its
// mode subscriptions are dropped; observers re-attach on the next pass.
func (rt *Runtime) Retire(id string) {
	rt.mu.Lock()
	_, known := rt.exts[id]
	delete(rt.exts, id)
	delete(rt.modeSubs, id)
	rt.mu.Unlock()

	if !known {
		return
	}
	rt.log.Info("extension retired", "id", id)
	rt.notifyTopology()
}

// ExtensionInfo describes an announced extension for status reporting.
type ExtensionInfo struct {
	ID       string
	Surfaces []string
}

// Announced lists the currently announced extensions in ID order.
func (rt *Runtime) Announced() []ExtensionInfo {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out := make([]ExtensionInfo, 0, len(rt.exts))
	for id, ext := range rt.exts {
		surfaces := make([]string, 0, len(ext.surfaces))
		for s := range ext.surfaces {
			surfaces = append(surfaces, s)
		}
		sort.Strings(surfaces)
		out = append(out, ExtensionInfo{ID: id, Surfaces: surfaces})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (rt *Runtime) notifyTopology() {
	rt.mu.Lock()
	fns := make([]func(), 0, len(rt.topoSubs))
	for _, fn := range rt.topoSubs {
		fns = append(fns, fn)
	}
	rt.mu.Unlock()

	rt.enqueue(func() {
		for _, fn := range fns {
			fn()
		}
	})
}

// DeliverMode routes a raw mode payload from an extension to its
// subscribers, in emission order.
func (rt *Runtime) DeliverMode(id string, v mode.Value) {
	rt.enqueue(func() {
		rt.mu.Lock()
		subs := make([]func(mode.Value), 0, len(rt.modeSubs[id]))
		for _, fn := range rt.modeSubs[id] {
			subs = append(subs, fn)
		}
		rt.mu.Unlock()
		for _, fn := range subs {
			fn(v)
		}
	})
}

// DeliverCursorStyle routes a cursor rendering style change.
func (rt *Runtime) DeliverCursorStyle(style CursorStyle) {
	rt.enqueue(func() {
		rt.mu.Lock()
		subs := make([]func(CursorStyle), 0, len(rt.cursorSubs))
		for _, fn := range rt.cursorSubs {
			subs = append(subs, fn)
		}
		rt.mu.Unlock()
		for _, fn := range subs {
			fn(style)
		}
	})
}

// DeliverSelections routes a selection shape change.
func (rt *Runtime) DeliverSelections(sels []Selection) {
	rt.enqueue(func() {
		rt.mu.Lock()
		subs := make([]func([]Selection), 0, len(rt.selSubs))
		for _, fn := range rt.selSubs {
			subs = append(subs, fn)
		}
		rt.mu.Unlock()
		for _, fn := range subs {
			fn(sels)
		}
	})
}

func (rt *Runtime) enqueue(fn func()) {
	select {
	case rt.queue <- fn:
	case <-rt.stop:
	}
}

// subscribeMode installs a mode-change subscription for an extension.
func (rt *Runtime) subscribeMode(id string, fn func(mode.Value)) Disposable {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	subs, ok := rt.modeSubs[id]
	if !ok {
		subs = make(map[int]func(mode.Value))
		rt.modeSubs[id] = subs
	}
	sub := rt.nextSub
	rt.nextSub++
	subs[sub] = fn
	return DisposeFunc(func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if subs, ok := rt.modeSubs[id]; ok {
			delete(subs, sub)
		}
	})
}

// ID implements Extension.
func (e *runtimeExtension) ID() string { return e.id }

// Active implements Extension.
func (e *runtimeExtension) Active() bool {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	return e.active
}

// Exports implements Extension. The returned value carries the
// ModeEvents surface only when the plugin announced it; otherwise
// callers see an API without the expected entry point and must fail
// their attach gracefully.
func (e *runtimeExtension) Exports() any {
	e.rt.mu.Lock()
	hasModeEvents := e.surfaces[SurfaceModeEvents]
	e.rt.mu.Unlock()

	if !hasModeEvents {
		return struct{}{}
	}
	return &modeEventsExports{ext: e}
}

// modeEventsExports is the exported API of an extension whose plugin
// declared the mode-events surface.
type modeEventsExports struct {
	ext *runtimeExtension
}

func (x *modeEventsExports) OnModeChange(fn func(v mode.Value)) (Disposable, error) {
	return x.ext.rt.subscribeMode(x.ext.id, fn), nil
}

var (
	_ Context    = (*Runtime)(nil)
	_ Extension  = (*runtimeExtension)(nil)
	_ ModeEvents = (*modeEventsExports)(nil)
)
