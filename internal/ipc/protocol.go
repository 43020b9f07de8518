// Package ipc provides inter-process communication between the modeswitchd
// daemon and its clients: editor plugins streaming mode, cursor, and
// selection events over the bridge, and the modeswitchctl CLI.
//
// The protocol is designed for:
// - Request/response pattern for commands
// - Fire-and-forget bridge events for low-latency mode delivery
// - Event streaming for real-time updates
// - Protocol versioning for compatibility
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x4D535743 // "MSWC" - ModeSWitchd Comms
)

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgShutdown     MessageType = 0x0006

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101
	MsgHealthCheck    MessageType = 0x0102
	MsgHealthResponse MessageType = 0x0103

	// Bridge messages from editor plugins (0x02xx)
	MsgAnnounce       MessageType = 0x0200
	MsgAnnounceResp   MessageType = 0x0201
	MsgRetire         MessageType = 0x0202
	MsgRetireResp     MessageType = 0x0203
	MsgModeEvent      MessageType = 0x0204
	MsgCursorEvent    MessageType = 0x0205
	MsgSelectionEvent MessageType = 0x0206

	// Configuration and observer control (0x03xx)
	MsgReloadConfig     MessageType = 0x0300
	MsgReloadConfigResp MessageType = 0x0301
	MsgResetup          MessageType = 0x0302
	MsgResetupResp      MessageType = 0x0303

	// Event streaming (0x04xx)
	MsgSubscribe       MessageType = 0x0400
	MsgSubscribeResp   MessageType = 0x0401
	MsgUnsubscribe     MessageType = 0x0402
	MsgUnsubscribeResp MessageType = 0x0403
	MsgEvent           MessageType = 0x0404
)

// EventType identifies the type of streamed event
type EventType uint16

const (
	EventNormalMode     EventType = 0x0001
	EventSwitchIssued   EventType = 0x0002
	EventSetupPass      EventType = 0x0003
	EventConfigChanged  EventType = 0x0004
	EventDaemonShutdown EventType = 0x0005
	EventError          EventType = 0x0006
)

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagCompressed  uint8 = 0x01
	FlagJSON        uint8 = 0x04
	FlagStreamStart uint8 = 0x08
	FlagStreamEnd   uint8 = 0x10
)

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// MaxPayloadSize bounds a single message payload. Bridge events are tiny;
// anything near this limit indicates a broken or hostile peer.
const MaxPayloadSize = 1 * 1024 * 1024

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayloadSize {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrNotFound       = 3
	ErrInternalError  = 4
	ErrUnavailable    = 5
)

// StatusRequest requests daemon status
type StatusRequest struct {
	IncludeConfig bool `json:"include_config,omitempty"`
}

// ObserverStatus describes one registered observer's last setup outcome
type ObserverStatus struct {
	Identity    string   `json:"identity"`
	Identifiers []string `json:"identifiers"`
	Outcome     string   `json:"outcome"`
}

// ExtensionSummary describes an announced editor extension
type ExtensionSummary struct {
	ID       string   `json:"id"`
	Surfaces []string `json:"surfaces,omitempty"`
}

// StatusResponse contains daemon status
type StatusResponse struct {
	Version           string             `json:"version"`
	Uptime            time.Duration      `json:"uptime"`
	StartedAt         time.Time          `json:"started_at"`
	Selection         string             `json:"selection"`
	Observers         []ObserverStatus   `json:"observers"`
	HeuristicActive   bool               `json:"heuristic_active"`
	Extensions        []ExtensionSummary `json:"extensions,omitempty"`
	IMEFramework      string             `json:"ime_framework"`
	IMEDegraded       bool               `json:"ime_degraded"`
	CurrentEngine     string             `json:"current_engine,omitempty"`
	ModeEvents        uint64             `json:"mode_events"`
	NormalTransitions uint64             `json:"normal_transitions"`
	SwitchesIssued    uint64             `json:"switches_issued"`
	SwitchFailures    uint64             `json:"switch_failures"`
	Config            map[string]any     `json:"config,omitempty"`
}

// HealthCheckRequest requests a health report
type HealthCheckRequest struct {
	Component string `json:"component,omitempty"` // Empty means all components
}

// ComponentHealth is one component's health verdict
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse contains the aggregated health report
type HealthResponse struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
}

// ReloadConfigResponse acknowledges a config reload
type ReloadConfigResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ResetupResponse reports the result of a forced observer setup pass
type ResetupResponse struct {
	Attached        int  `json:"attached"`
	HeuristicActive bool `json:"heuristic_active"`
}

// AnnounceRequest registers an editor extension with the bridge. Surfaces
// lists the capability names the extension exports; an extension without
// the mode-events surface is visible but cannot satisfy an observer attach.
type AnnounceRequest struct {
	ExtensionID string   `json:"extension_id"`
	Surfaces    []string `json:"surfaces,omitempty"`
}

// AnnounceResponse acknowledges an extension announce
type AnnounceResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// RetireRequest withdraws an editor extension from the bridge
type RetireRequest struct {
	ExtensionID string `json:"extension_id"`
}

// RetireResponse acknowledges an extension retire
type RetireResponse struct {
	Success bool `json:"success"`
}

// ModeEventPayload carries one raw mode payload from an editor plugin.
// Mode is kept as raw JSON; the daemon decodes it into whatever shape the
// emitting extension uses and classification happens server-side.
type ModeEventPayload struct {
	ExtensionID string          `json:"extension_id"`
	Mode        json.RawMessage `json:"mode"`
}

// CursorEventPayload carries a cursor rendering style change
type CursorEventPayload struct {
	ExtensionID string `json:"extension_id"`
	Style       string `json:"style"`
}

// SelectionRange is one selection in a selection-change event
type SelectionRange struct {
	Empty      bool `json:"empty"`
	ActiveLine int  `json:"active_line"`
	ActiveCol  int  `json:"active_col"`
	LineLen    int  `json:"line_len"`
}

// SelectionEventPayload carries a selection shape change
type SelectionEventPayload struct {
	ExtensionID string           `json:"extension_id"`
	Selections  []SelectionRange `json:"selections"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeRequest requests event unsubscription
type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NormalModeEvent is the Data of an EventNormalMode event
type NormalModeEvent struct {
	Origin string `json:"origin"`
}

// SwitchIssuedEvent is the Data of an EventSwitchIssued event
type SwitchIssuedEvent struct {
	Engine  string `json:"engine"`
	Elapsed string `json:"elapsed"`
	Error   string `json:"error,omitempty"`
}

// SetupPassEvent is the Data of an EventSetupPass event
type SetupPassEvent struct {
	Attached        int  `json:"attached"`
	HeuristicActive bool `json:"heuristic_active"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
