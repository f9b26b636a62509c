package wire

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed wire size of a frame header.
const HeaderSize = 60

// Frame size limits. Oversize lengths are a fatal protocol error.
const (
	// MaxPayloadSize bounds the JSON payload of a single frame.
	MaxPayloadSize = 64 * 1024

	// MaxBodySize bounds the binary body of a single frame (one chunk).
	MaxBodySize = 16 * 1024 * 1024
)

// Magic identifies a FileHarbor frame: 'F' 'H' 'B' 'R'.
var Magic = [4]byte{'F', 'H', 'B', 'R'}

// Header parsing errors
var (
	// ErrBadMagic indicates the frame does not start with the FHBR magic.
	ErrBadMagic = errors.New("bad frame magic")

	// ErrHeaderTooShort indicates fewer than HeaderSize bytes were supplied.
	ErrHeaderTooShort = errors.New("frame header too short")

	// ErrBadMessageKind indicates an unrecognized message kind byte.
	ErrBadMessageKind = errors.New("bad message kind")

	// ErrPayloadTooLarge indicates the payload length exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("frame payload too large")

	// ErrBodyTooLarge indicates the body length exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("frame body too large")

	// ErrDigestMismatch indicates the frame digest did not verify.
	ErrDigestMismatch = errors.New("frame digest mismatch")
)

// Header is the parsed fixed-size frame header.
type Header struct {
	Version    uint16
	Kind       MessageKind
	Command    Command
	Status     Status
	PayloadLen uint32
	BodyLen    uint64
	Digest     [32]byte
}

// Encode writes the header into a HeaderSize-byte buffer.
func (h *Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[0:4], Magic[:])
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = byte(h.Kind)
	buf[7] = byte(h.Command)
	binary.BigEndian.PutUint16(buf[8:10], uint16(h.Status))
	// buf[10:12] reserved
	binary.BigEndian.PutUint32(buf[12:16], h.PayloadLen)
	binary.BigEndian.PutUint64(buf[16:24], h.BodyLen)
	// buf[24:28] reserved
	copy(buf[28:60], h.Digest[:])
	return buf
}

// ParseHeader extracts a Header from wire format.
//
// The input must be at least HeaderSize bytes and start with the FHBR magic.
// Length limits are validated here so the caller never allocates for an
// oversize frame.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrHeaderTooShort
	}
	if [4]byte(data[0:4]) != Magic {
		return nil, ErrBadMagic
	}

	h := &Header{
		Version:    binary.BigEndian.Uint16(data[4:6]),
		Kind:       MessageKind(data[6]),
		Command:    Command(data[7]),
		Status:     Status(binary.BigEndian.Uint16(data[8:10])),
		PayloadLen: binary.BigEndian.Uint32(data[12:16]),
		BodyLen:    binary.BigEndian.Uint64(data[16:24]),
	}
	copy(h.Digest[:], data[28:60])

	switch h.Kind {
	case KindRequest, KindResponse, KindData:
	default:
		return nil, ErrBadMessageKind
	}
	if h.PayloadLen > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	if h.BodyLen > MaxBodySize {
		return nil, ErrBodyTooLarge
	}

	return h, nil
}
