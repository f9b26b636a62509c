package wire

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

func TestHeaderEncodeParse(t *testing.T) {
	h := &Header{
		Version:    ProtocolVersion,
		Kind:       KindRequest,
		Command:    CmdPutChunk,
		Status:     StatusOK,
		PayloadLen: 42,
		BodyLen:    1 << 20,
	}
	h.Digest[0] = 0xAB
	h.Digest[31] = 0xCD

	buf := h.Encode()
	parsed, err := ParseHeader(buf[:])
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHeaderRejects(t *testing.T) {
	valid := (&Header{Version: 1, Kind: KindRequest, Command: CmdPing}).Encode()

	t.Run("TooShort", func(t *testing.T) {
		_, err := ParseHeader(valid[:10])
		assert.ErrorIs(t, err, ErrHeaderTooShort)
	})

	t.Run("BadMagic", func(t *testing.T) {
		bad := valid
		bad[0] = 'X'
		_, err := ParseHeader(bad[:])
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("BadKind", func(t *testing.T) {
		bad := valid
		bad[6] = 99
		_, err := ParseHeader(bad[:])
		assert.ErrorIs(t, err, ErrBadMessageKind)
	})

	t.Run("OversizePayload", func(t *testing.T) {
		h := &Header{Version: 1, Kind: KindRequest, Command: CmdPing, PayloadLen: MaxPayloadSize + 1}
		buf := h.Encode()
		_, err := ParseHeader(buf[:])
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("OversizeBody", func(t *testing.T) {
		h := &Header{Version: 1, Kind: KindRequest, Command: CmdPing, BodyLen: MaxBodySize + 1}
		buf := h.Encode()
		_, err := ParseHeader(buf[:])
		assert.ErrorIs(t, err, ErrBodyTooLarge)
	})
}

// pipeFrames runs a writer and reader over net.Pipe.
func pipeFrames(t *testing.T, frame *Frame) (*Frame, error) {
	t.Helper()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- WriteFrame(context.Background(), client, frame, time.Second)
	}()

	got, err := ReadFrame(context.Background(), server, time.Second)
	require.NoError(t, <-errCh)
	return got, err
}

func TestFrameRoundTrip(t *testing.T) {
	frame, err := NewData(CmdPutChunk, StatusOK, PutChunkRequest{
		Path:   "docs/a.txt",
		Offset: 4096,
	}, []byte("chunk bytes"))
	require.NoError(t, err)

	got, err := pipeFrames(t, frame)
	require.NoError(t, err)

	assert.Equal(t, frame.Header, got.Header)
	assert.Equal(t, []byte("chunk bytes"), got.Body)

	var req PutChunkRequest
	require.NoError(t, got.Decode(&req))
	assert.Equal(t, "docs/a.txt", req.Path)
	assert.Equal(t, uint64(4096), req.Offset)
}

func TestFrameEmptyPayloadAndBody(t *testing.T) {
	frame, err := NewRequest(CmdPing, nil)
	require.NoError(t, err)

	got, err := pipeFrames(t, frame)
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
	assert.Empty(t, got.Body)
}

func TestReadFrameDigestMismatchIsFatalProtocolError(t *testing.T) {
	frame, err := NewRequest(CmdStat, StatRequest{Path: "x"})
	require.NoError(t, err)

	// Corrupt a payload byte after the digest was computed
	frame.Payload[0] ^= 0xFF

	_, err = pipeFrames(t, frame)
	require.Error(t, err)
	assert.Equal(t, harbor.KindProtocol, harbor.KindOf(err))
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestDecodeMalformedPayloadIsInvalidArgument(t *testing.T) {
	payload := []byte("{this is not json")
	f := &Frame{
		Header: Header{
			Version:    ProtocolVersion,
			Kind:       KindRequest,
			Command:    CmdStat,
			PayloadLen: uint32(len(payload)),
		},
		Payload: payload,
	}

	var req StatRequest
	err := f.Decode(&req)
	require.Error(t, err)
	assert.Equal(t, harbor.KindInvalidArgument, harbor.KindOf(err),
		"a malformed payload behind a valid envelope is an input error, not a protocol error")
}

func TestReadFrameCancelled(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadFrame(ctx, server, time.Second)
	require.Error(t, err)
	assert.Equal(t, harbor.KindTransport, harbor.KindOf(err))
}

func TestErrorResponseRoundTrip(t *testing.T) {
	cause := harbor.E(harbor.KindLocked, "acquire", "a.bin")
	frame := NewErrorResponse(CmdPutStart, StatusConflict, cause)

	got, err := pipeFrames(t, frame)
	require.NoError(t, err)

	respErr := got.Err()
	require.Error(t, respErr)
	assert.Equal(t, harbor.KindLocked, harbor.KindOf(respErr))
}

func TestErrorResponseHidesInternalDetail(t *testing.T) {
	cause := harbor.Errorf(harbor.KindInternal, "stat", "open /secret/path: permission denied")
	frame := NewErrorResponse(CmdStat, StatusInternal, cause)

	var payload ErrorPayload
	require.NoError(t, frame.Decode(&payload))
	assert.Equal(t, "internal error", payload.Message)
	assert.NotContains(t, payload.Message, "secret")
}

func TestStatusFromKindIsTotal(t *testing.T) {
	for k := harbor.KindTransport; k <= harbor.KindInternal; k++ {
		status := StatusFromKind(k)
		assert.NotEqual(t, "unknown", status.String(), "kind %s maps to unknown status", k)
	}
}

func TestCommandNames(t *testing.T) {
	assert.Equal(t, "PUT_START", CmdPutStart.String())
	assert.Equal(t, "HANDSHAKE", CmdHandshake.String())
	assert.Equal(t, "UNKNOWN", Command(200).String())
	assert.False(t, Command(200).Valid())
}
