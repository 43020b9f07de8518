// Package ipc provides the daemon handler implementation.
//
// The handler processes IPC messages: it feeds the editor-plugin bridge
// into the host runtime, serves daemon status and health, and applies
// configuration reloads.
package ipc

import (
	"context"
	"sort"
	"sync"
	"time"

	"modeswitchd/internal/config"
	"modeswitchd/internal/controller"
	"modeswitchd/internal/health"
	"modeswitchd/internal/host"
	"modeswitchd/internal/ime"
	"modeswitchd/internal/logging"
	"modeswitchd/internal/metrics"
	"modeswitchd/internal/mode"
	"modeswitchd/internal/observer"
)

// DaemonHandler implements the Handler interface for the modeswitchd daemon
type DaemonHandler struct {
	mu        sync.RWMutex
	version   string
	startedAt time.Time
	log       *logging.Logger

	rt     *host.Runtime
	ctrl   *controller.Controller
	mgr    *observer.Manager
	svc    *ime.Service
	loader *config.Loader
	health *health.Checker
	stats  *metrics.DaemonMetrics

	// owners maps a bridge client to the extensions it announced, so a
	// dropped connection retires them without an explicit retire message.
	owners map[string][]string

	// Event broadcaster (for sending events to clients)
	broadcaster func(*Event)

	// Shutdown request from a client
	shutdown func()
}

// DaemonHandlerConfig configures the daemon handler
type DaemonHandlerConfig struct {
	Version    string
	Runtime    *host.Runtime
	Controller *controller.Controller
	Manager    *observer.Manager
	Service    *ime.Service
	Loader     *config.Loader
	Health     *health.Checker
	Stats      *metrics.DaemonMetrics
	Logger     *logging.Logger
	Shutdown   func()
}

// NewDaemonHandler creates a new daemon handler
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &DaemonHandler{
		version:   cfg.Version,
		startedAt: time.Now(),
		log:       log.WithComponent("ipc.handler"),
		rt:        cfg.Runtime,
		ctrl:      cfg.Controller,
		mgr:       cfg.Manager,
		svc:       cfg.Service,
		loader:    cfg.Loader,
		health:    cfg.Health,
		stats:     cfg.Stats,
		owners:    make(map[string][]string),
		shutdown:  cfg.Shutdown,
	}
}

// SetBroadcaster sets the function used to broadcast events
func (h *DaemonHandler) SetBroadcaster(broadcaster func(*Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcaster = broadcaster
}

// broadcast sends an event to subscribers, if a broadcaster is wired
func (h *DaemonHandler) broadcast(t EventType, data any) {
	h.mu.RLock()
	fn := h.broadcaster
	h.mu.RUnlock()
	if fn != nil {
		fn(&Event{Type: t, Timestamp: time.Now(), Data: data})
	}
}

// HandleMessage processes an IPC message
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(ctx, msg)

	case MsgHealthCheck:
		return h.handleHealthCheck(ctx, msg)

	case MsgReloadConfig:
		return h.handleReloadConfig(msg)

	case MsgResetup:
		return h.handleResetup(msg)

	case MsgShutdown:
		return h.handleShutdown(msg)

	case MsgAnnounce:
		return h.handleAnnounce(client, msg)

	case MsgRetire:
		return h.handleRetire(client, msg)

	case MsgModeEvent:
		return h.handleModeEvent(msg)

	case MsgCursorEvent:
		return h.handleCursorEvent(msg)

	case MsgSelectionEvent:
		return h.handleSelectionEvent(msg)

	default:
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "unknown message type"), nil
	}
}

// handleStatus builds the daemon status snapshot
func (h *DaemonHandler) handleStatus(ctx context.Context, msg *Message) (*Message, error) {
	var req StatusRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid status request"), nil
		}
	}

	resp := &StatusResponse{
		Version:   h.version,
		Uptime:    time.Since(h.startedAt),
		StartedAt: h.startedAt,
	}

	if h.ctrl != nil {
		resp.Selection = h.ctrl.Selection()
	}

	if h.mgr != nil {
		outcomes := h.mgr.Outcomes()
		for _, identity := range h.mgr.Identities() {
			st := ObserverStatus{
				Identity: identity,
				Outcome:  outcomes[identity].String(),
			}
			if o, ok := h.mgr.Lookup(identity); ok {
				st.Identifiers = o.Identifiers()
			}
			resp.Observers = append(resp.Observers, st)
		}
		resp.HeuristicActive = h.mgr.HeuristicActive()
	}

	if h.rt != nil {
		for _, ext := range h.rt.Announced() {
			resp.Extensions = append(resp.Extensions, ExtensionSummary{
				ID:       ext.ID,
				Surfaces: ext.Surfaces,
			})
		}
	}

	if h.svc != nil {
		resp.IMEFramework = h.svc.Framework()
		resp.IMEDegraded = h.svc.Degraded()
		if engine, err := h.svc.Engine(ctx); err == nil {
			resp.CurrentEngine = engine
		}
	}

	if h.stats != nil {
		resp.ModeEvents = h.stats.ModeEvents.Value()
		resp.NormalTransitions = h.stats.NormalTransitions.Value()
		resp.SwitchesIssued = h.stats.SwitchesIssued.Value()
		resp.SwitchFailures = h.stats.SwitchFailures.Value()
	}

	if req.IncludeConfig && h.loader != nil {
		cfg := h.loader.Config()
		if cfg != nil {
			resp.Config = map[string]any{
				"observer.selection": cfg.Observer.Selection,
				"ime.framework":      cfg.IME.Framework,
				"ime.latin_engine":   cfg.IME.LatinEngine,
				"ipc.socket_path":    cfg.IPC.SocketPath,
				"logging.level":      cfg.Logging.Level,
			}
		}
	}

	return NewResponse(MsgStatusResponse, msg.Header.RequestID, resp)
}

// handleHealthCheck runs health checks and reports the verdicts
func (h *DaemonHandler) handleHealthCheck(ctx context.Context, msg *Message) (*Message, error) {
	if h.health == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "no health checker"), nil
	}

	var req HealthCheckRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid health request"), nil
		}
	}

	resp := &HealthResponse{}

	if req.Component != "" {
		result, ok := h.health.CheckComponent(ctx, req.Component)
		if !ok {
			return NewErrorMessage(msg.Header.RequestID, ErrNotFound, "unknown component"), nil
		}
		resp.Status = string(result.Status)
		resp.Components = []ComponentHealth{{
			Name:    req.Component,
			Status:  string(result.Status),
			Message: result.Message,
		}}
		return NewResponse(MsgHealthResponse, msg.Header.RequestID, resp)
	}

	results := h.health.Check(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result := results[name]
		msgText := result.Message
		if msgText == "" {
			msgText = result.Error
		}
		resp.Components = append(resp.Components, ComponentHealth{
			Name:    name,
			Status:  string(result.Status),
			Message: msgText,
		})
	}
	resp.Status = string(h.health.OverallStatus())

	return NewResponse(MsgHealthResponse, msg.Header.RequestID, resp)
}

// handleReloadConfig re-reads the configuration file and applies it
func (h *DaemonHandler) handleReloadConfig(msg *Message) (*Message, error) {
	if h.loader == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "no config loader"), nil
	}

	cfg, err := h.loader.Load()
	if err != nil {
		resp := &ReloadConfigResponse{Success: false, Error: err.Error()}
		return NewResponse(MsgReloadConfigResp, msg.Header.RequestID, resp)
	}

	if h.ctrl != nil {
		h.ctrl.Reconfigure(cfg)
	}
	h.log.Info("configuration reloaded over ipc")
	h.broadcast(EventConfigChanged, nil)

	return NewResponse(MsgReloadConfigResp, msg.Header.RequestID, &ReloadConfigResponse{Success: true})
}

// handleResetup forces a fresh observer setup pass
func (h *DaemonHandler) handleResetup(msg *Message) (*Message, error) {
	if h.ctrl == nil || h.mgr == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "no controller"), nil
	}

	h.ctrl.Resetup()

	resp := &ResetupResponse{
		Attached:        h.mgr.AttachedCount(),
		HeuristicActive: h.mgr.HeuristicActive(),
	}
	h.broadcast(EventSetupPass, &SetupPassEvent{
		Attached:        resp.Attached,
		HeuristicActive: resp.HeuristicActive,
	})

	return NewResponse(MsgResetupResp, msg.Header.RequestID, resp)
}

// handleShutdown acknowledges, then asks the daemon to exit
func (h *DaemonHandler) handleShutdown(msg *Message) (*Message, error) {
	h.mu.RLock()
	shutdown := h.shutdown
	h.mu.RUnlock()

	if shutdown == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "shutdown not permitted"), nil
	}

	h.log.Info("shutdown requested over ipc")
	h.broadcast(EventDaemonShutdown, nil)

	// Acknowledge before exiting so the client sees a response.
	go func() {
		time.Sleep(100 * time.Millisecond)
		shutdown()
	}()

	return NewMessage(MsgShutdown, msg.Header.RequestID, nil), nil
}

// handleAnnounce registers an editor extension with the host runtime
func (h *DaemonHandler) handleAnnounce(client *Client, msg *Message) (*Message, error) {
	var req AnnounceRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid announce"), nil
	}
	if req.ExtensionID == "" {
		resp := &AnnounceResponse{Accepted: false, Error: "extension_id required"}
		return NewResponse(MsgAnnounceResp, msg.Header.RequestID, resp)
	}

	h.rt.Announce(req.ExtensionID, req.Surfaces)

	h.mu.Lock()
	owned := h.owners[client.ID]
	found := false
	for _, id := range owned {
		if id == req.ExtensionID {
			found = true
			break
		}
	}
	if !found {
		h.owners[client.ID] = append(owned, req.ExtensionID)
	}
	h.mu.Unlock()

	return NewResponse(MsgAnnounceResp, msg.Header.RequestID, &AnnounceResponse{Accepted: true})
}

// handleRetire withdraws an editor extension
func (h *DaemonHandler) handleRetire(client *Client, msg *Message) (*Message, error) {
	var req RetireRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid retire"), nil
	}

	h.rt.Retire(req.ExtensionID)

	h.mu.Lock()
	owned := h.owners[client.ID]
	for i, id := range owned {
		if id == req.ExtensionID {
			h.owners[client.ID] = append(owned[:i], owned[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	return NewResponse(MsgRetireResp, msg.Header.RequestID, &RetireResponse{Success: true})
}

// handleModeEvent delivers a raw mode payload to the host runtime. Bridge
// events are fire-and-forget: a malformed one is logged and dropped, the
// plugin is not told.
func (h *DaemonHandler) handleModeEvent(msg *Message) (*Message, error) {
	var req ModeEventPayload
	if err := Decode(msg.Payload, &req); err != nil {
		h.log.Debug("malformed mode event dropped", "error", err)
		return nil, nil
	}

	// Decode the opaque payload into whatever shape the plugin sent:
	// a bare string or an object. Classification happens downstream.
	var v mode.Value
	if len(req.Mode) > 0 {
		if err := Decode(req.Mode, &v); err != nil {
			h.log.Debug("undecodable mode payload dropped", "extension", req.ExtensionID, "error", err)
			return nil, nil
		}
	}

	h.rt.DeliverMode(req.ExtensionID, v)
	return nil, nil
}

// handleCursorEvent delivers a cursor style change to the host runtime
func (h *DaemonHandler) handleCursorEvent(msg *Message) (*Message, error) {
	var req CursorEventPayload
	if err := Decode(msg.Payload, &req); err != nil {
		h.log.Debug("malformed cursor event dropped", "error", err)
		return nil, nil
	}

	style, ok := host.ParseCursorStyle(req.Style)
	if !ok {
		h.log.Debug("unknown cursor style dropped", "style", req.Style)
		return nil, nil
	}

	h.rt.DeliverCursorStyle(style)
	return nil, nil
}

// handleSelectionEvent delivers a selection change to the host runtime
func (h *DaemonHandler) handleSelectionEvent(msg *Message) (*Message, error) {
	var req SelectionEventPayload
	if err := Decode(msg.Payload, &req); err != nil {
		h.log.Debug("malformed selection event dropped", "error", err)
		return nil, nil
	}

	sels := make([]host.Selection, len(req.Selections))
	for i, s := range req.Selections {
		sels[i] = host.Selection{
			Empty:      s.Empty,
			ActiveLine: s.ActiveLine,
			ActiveCol:  s.ActiveCol,
			LineLen:    s.LineLen,
		}
	}

	h.rt.DeliverSelections(sels)
	return nil, nil
}

// ClientDisconnected retires every extension the client announced. The
// next topology notification re-runs observer setup, so a crashed editor
// cleanly falls back to whatever is still connected.
func (h *DaemonHandler) ClientDisconnected(client *Client) {
	h.mu.Lock()
	owned := h.owners[client.ID]
	delete(h.owners, client.ID)
	h.mu.Unlock()

	for _, id := range owned {
		h.log.Info("client gone, retiring extension", "client", client.ID, "extension", id)
		h.rt.Retire(id)
	}
}

var _ DisconnectNotifier = (*DaemonHandler)(nil)
