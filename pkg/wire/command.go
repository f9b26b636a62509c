package wire

import "github.com/jeffvan302/fileharbor/pkg/harbor"

// ProtocolVersion is the protocol version this build speaks. The handshake
// fails with StatusVersionMismatch when the peer's version differs.
const ProtocolVersion uint16 = 1

// MessageKind discriminates the three frame kinds.
type MessageKind uint8

const (
	KindRequest  MessageKind = 1
	KindResponse MessageKind = 2
	KindData     MessageKind = 3
)

// Command identifies a protocol command.
type Command uint8

const (
	CmdHandshake  Command = 1
	CmdPing       Command = 2
	CmdDisconnect Command = 3

	CmdPutStart  Command = 10
	CmdPutChunk  Command = 11
	CmdPutCommit Command = 12

	CmdGetStart Command = 20
	CmdGetChunk Command = 21

	CmdDelete   Command = 30
	CmdRename   Command = 31
	CmdList     Command = 32
	CmdMkdir    Command = 33
	CmdRmdir    Command = 34
	CmdManifest Command = 35
	CmdChecksum Command = 36
	CmdStat     Command = 37
	CmdExists   Command = 38
)

var commandNames = map[Command]string{
	CmdHandshake:  "HANDSHAKE",
	CmdPing:       "PING",
	CmdDisconnect: "DISCONNECT",
	CmdPutStart:   "PUT_START",
	CmdPutChunk:   "PUT_CHUNK",
	CmdPutCommit:  "PUT_COMMIT",
	CmdGetStart:   "GET_START",
	CmdGetChunk:   "GET_CHUNK",
	CmdDelete:     "DELETE",
	CmdRename:     "RENAME",
	CmdList:       "LIST",
	CmdMkdir:      "MKDIR",
	CmdRmdir:      "RMDIR",
	CmdManifest:   "MANIFEST",
	CmdChecksum:   "CHECKSUM",
	CmdStat:       "STAT",
	CmdExists:     "EXISTS",
}

// String returns the command name, or "UNKNOWN" for unrecognized codes.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether c is a known command code.
func (c Command) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

// Status is the wire status code carried in response headers.
type Status uint16

const (
	StatusOK               Status = 0
	StatusBadRequest       Status = 1
	StatusUnauthorized     Status = 2
	StatusForbidden        Status = 3
	StatusNotFound         Status = 4
	StatusConflict         Status = 5
	StatusChecksumMismatch Status = 6
	StatusRateLimited      Status = 7
	StatusVersionMismatch  Status = 8
	StatusInternal         Status = 9
)

// String returns a short name for the status code.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusForbidden:
		return "forbidden"
	case StatusNotFound:
		return "not_found"
	case StatusConflict:
		return "conflict"
	case StatusChecksumMismatch:
		return "checksum_mismatch"
	case StatusRateLimited:
		return "rate_limited"
	case StatusVersionMismatch:
		return "version_mismatch"
	case StatusInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// StatusFromKind maps an error kind to the status code carried on the wire.
// Each kind maps to exactly one status.
func StatusFromKind(k harbor.Kind) Status {
	switch k {
	case harbor.KindAuth:
		return StatusUnauthorized
	case harbor.KindForbidden:
		return StatusForbidden
	case harbor.KindNotFound:
		return StatusNotFound
	case harbor.KindAlreadyExists:
		return StatusConflict
	case harbor.KindLocked:
		return StatusConflict
	case harbor.KindRateLimited:
		return StatusRateLimited
	case harbor.KindChecksumMismatch:
		return StatusChecksumMismatch
	case harbor.KindPathTraversal, harbor.KindInvalidArgument, harbor.KindSizeTooLarge:
		return StatusBadRequest
	case harbor.KindProtocol:
		return StatusBadRequest
	case harbor.KindDiskFull, harbor.KindInternal, harbor.KindTransport:
		return StatusInternal
	default:
		return StatusInternal
	}
}
