package wire

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

// Frame is the atomic protocol unit: a parsed header plus the payload and
// body bytes it framed. The digest has already been verified on frames
// returned by ReadFrame.
type Frame struct {
	Header  Header
	Payload []byte
	Body    []byte
}

// digestOf computes the frame digest over payload || body.
func digestOf(payload, body []byte) [32]byte {
	h := sha256.New()
	h.Write(payload)
	h.Write(body)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// NewRequest builds a REQUEST frame with a JSON-encoded payload.
func NewRequest(cmd Command, payload any) (*Frame, error) {
	return newFrame(KindRequest, cmd, StatusOK, payload, nil)
}

// NewData builds a DATA frame carrying a JSON payload and a binary body.
// Used by PUT_CHUNK requests and GET_CHUNK responses.
func NewData(cmd Command, status Status, payload any, body []byte) (*Frame, error) {
	return newFrame(KindData, cmd, status, payload, body)
}

// NewResponse builds an OK RESPONSE frame with a JSON-encoded payload.
// A nil payload produces an empty-payload frame (PING, DISCONNECT).
func NewResponse(cmd Command, payload any) (*Frame, error) {
	return newFrame(KindResponse, cmd, StatusOK, payload, nil)
}

// NewErrorResponse builds a non-OK RESPONSE frame carrying the error kind
// and message of err.
func NewErrorResponse(cmd Command, status Status, err error) *Frame {
	payload := ErrorPayload{
		Kind:    harbor.KindOf(err).String(),
		Message: err.Error(),
	}
	if harbor.KindOf(err) == harbor.KindInternal {
		// Internal detail stays in the server log.
		payload.Message = "internal error"
	}
	f, encErr := newFrame(KindResponse, cmd, status, payload, nil)
	if encErr != nil {
		// ErrorPayload always encodes; this is unreachable with valid input.
		panic(encErr)
	}
	return f
}

func newFrame(kind MessageKind, cmd Command, status Status, payload any, body []byte) (*Frame, error) {
	var payloadBytes []byte
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}
	if len(payloadBytes) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	if uint64(len(body)) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}

	return &Frame{
		Header: Header{
			Version:    ProtocolVersion,
			Kind:       kind,
			Command:    cmd,
			Status:     status,
			PayloadLen: uint32(len(payloadBytes)),
			BodyLen:    uint64(len(body)),
			Digest:     digestOf(payloadBytes, body),
		},
		Payload: payloadBytes,
		Body:    body,
	}, nil
}

// Decode unmarshals the frame's JSON payload into v.
//
// A frame that reaches Decode already passed the envelope checks (magic,
// kind, lengths, digest), so a payload that fails to unmarshal is a bad
// request argument, not a protocol violation: the peer gets an error
// response and the connection survives.
func (f *Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return harbor.E(harbor.KindInvalidArgument, "decode "+f.Header.Command.String(), err)
	}
	return nil
}

// Err reconstructs the error carried by a non-OK response frame.
func (f *Frame) Err() error {
	if f.Header.Status == StatusOK {
		return nil
	}
	var payload ErrorPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		return harbor.Errorf(harbor.KindProtocol, f.Header.Command.String(),
			"status %s with undecodable error payload", f.Header.Status)
	}
	return harbor.Errorf(harbor.KindFromString(payload.Kind),
		f.Header.Command.String(), "%s", payload.Message)
}

// WriteFrame writes a complete frame to conn.
//
// The write deadline, when non-zero, covers the whole frame. Write errors
// are transport errors: the connection is no longer usable.
func WriteFrame(ctx context.Context, conn net.Conn, f *Frame, writeTimeout time.Duration) error {
	select {
	case <-ctx.Done():
		return harbor.E(harbor.KindTransport, "write frame", ctx.Err())
	default:
	}

	if writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return harbor.E(harbor.KindTransport, "set write deadline", err)
		}
	}

	header := f.Header.Encode()
	buf := make([]byte, 0, HeaderSize+len(f.Payload))
	buf = append(buf, header[:]...)
	buf = append(buf, f.Payload...)
	if _, err := conn.Write(buf); err != nil {
		return harbor.E(harbor.KindTransport, "write frame", err)
	}
	if len(f.Body) > 0 {
		if _, err := conn.Write(f.Body); err != nil {
			return harbor.E(harbor.KindTransport, "write frame body", err)
		}
	}
	return nil
}

// ReadFrame reads a complete frame from conn.
//
// The header is read first and validated (magic, kind, length limits), then
// exactly PayloadLen and BodyLen bytes. The frame digest is recomputed over
// the received payload and body and compared in constant time; a mismatch is
// a fatal protocol error.
//
// readTimeout, when non-zero, sets the read deadline for the whole frame.
// This doubles as the half-open TCP detector: a peer that stops sending
// mid-frame trips the deadline and the connection is torn down.
func ReadFrame(ctx context.Context, conn net.Conn, readTimeout time.Duration) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, harbor.E(harbor.KindTransport, "read frame", ctx.Err())
	default:
	}

	if readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return nil, harbor.E(harbor.KindTransport, "set read deadline", err)
		}
	}

	var headerBuf [HeaderSize]byte
	if _, err := io.ReadFull(conn, headerBuf[:]); err != nil {
		return nil, harbor.E(harbor.KindTransport, "read frame header", err)
	}

	header, err := ParseHeader(headerBuf[:])
	if err != nil {
		return nil, harbor.E(harbor.KindProtocol, "parse frame header", err)
	}

	// Check context before allocating for a potentially large body
	select {
	case <-ctx.Done():
		return nil, harbor.E(harbor.KindTransport, "read frame", ctx.Err())
	default:
	}

	var payload []byte
	if header.PayloadLen > 0 {
		payload = make([]byte, header.PayloadLen)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return nil, harbor.E(harbor.KindTransport, "read frame payload", err)
		}
	}

	var body []byte
	if header.BodyLen > 0 {
		body = make([]byte, header.BodyLen)
		if _, err := io.ReadFull(conn, body); err != nil {
			return nil, harbor.E(harbor.KindTransport, "read frame body", err)
		}
	}

	sum := digestOf(payload, body)
	if subtle.ConstantTimeCompare(sum[:], header.Digest[:]) != 1 {
		return nil, harbor.E(harbor.KindProtocol, "verify frame", ErrDigestMismatch)
	}

	return &Frame{Header: *header, Payload: payload, Body: body}, nil
}
