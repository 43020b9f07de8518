package ipc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Magic:     ProtocolMagic,
		Version:   ProtocolVersion,
		Flags:     FlagJSON,
		Type:      MsgStatusRequest,
		RequestID: 42,
		Length:    128,
	}

	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))
	assert.Equal(t, HeaderSize, buf.Len())

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Magic, got.Magic)
	assert.Equal(t, h.Version, got.Version)
	assert.Equal(t, h.Flags, got.Flags)
	assert.Equal(t, h.Type, got.Type)
	assert.Equal(t, h.RequestID, got.RequestID)
	assert.Equal(t, h.Length, got.Length)
}

func TestMessageRoundTrip(t *testing.T) {
	payload, err := Encode(&AnnounceRequest{
		ExtensionID: "vscodevim.vim",
		Surfaces:    []string{"mode-events"},
	})
	require.NoError(t, err)

	msg := NewMessage(MsgAnnounce, 7, payload)

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgAnnounce, got.Header.Type)
	assert.Equal(t, uint32(7), got.Header.RequestID)

	var req AnnounceRequest
	require.NoError(t, Decode(got.Payload, &req))
	assert.Equal(t, "vscodevim.vim", req.ExtensionID)
	assert.Equal(t, []string{"mode-events"}, req.Surfaces)
}

func TestMessageRoundTripEmptyPayload(t *testing.T) {
	msg := NewMessage(MsgPing, 1, nil)

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgPing, got.Header.Type)
	assert.Empty(t, got.Payload)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], 0xDEADBEEF)

	_, err := ReadHeader(bytes.NewReader(buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestReadHeaderRejectsFutureVersion(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], ProtocolMagic)
	buf[4] = ProtocolVersion + 1

	_, err := ReadHeader(bytes.NewReader(buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	h := &Header{
		Magic:   ProtocolMagic,
		Version: ProtocolVersion,
		Type:    MsgModeEvent,
		Length:  MaxPayloadSize + 1,
	}
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))

	_, err := ReadMessage(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestReadMessageTruncatedPayload(t *testing.T) {
	msg := NewMessage(MsgModeEvent, 1, []byte(`{"extension_id":"x"}`))

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))
	truncated := buf.Bytes()[:buf.Len()-5]

	_, err := ReadMessage(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(9, ErrNotFound, "unknown component")
	assert.Equal(t, MsgError, msg.Header.Type)
	assert.Equal(t, uint32(9), msg.Header.RequestID)

	var resp ErrorResponse
	require.NoError(t, Decode(msg.Payload, &resp))
	assert.Equal(t, ErrNotFound, resp.Code)
	assert.Equal(t, "unknown component", resp.Message)
}

func TestNewResponse(t *testing.T) {
	msg, err := NewResponse(MsgResetupResp, 3, &ResetupResponse{Attached: 2, HeuristicActive: false})
	require.NoError(t, err)
	assert.Equal(t, MsgResetupResp, msg.Header.Type)

	var resp ResetupResponse
	require.NoError(t, Decode(msg.Payload, &resp))
	assert.Equal(t, 2, resp.Attached)
	assert.False(t, resp.HeuristicActive)
}

func TestModeEventPayloadKeepsRawJSON(t *testing.T) {
	// The mode field must survive encoding untouched, whatever its shape.
	for _, raw := range []string{`"Normal"`, `{"mode":{"name":"Normal"}}`, `"n"`} {
		payload, err := Encode(&ModeEventPayload{ExtensionID: "x", Mode: []byte(raw)})
		require.NoError(t, err)

		var got ModeEventPayload
		require.NoError(t, Decode(payload, &got))
		assert.JSONEq(t, raw, string(got.Mode))
	}
}
