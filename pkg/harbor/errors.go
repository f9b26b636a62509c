// Package harbor provides the error types and error kinds shared by every
// FileHarbor component. This is a leaf package with no internal dependencies,
// designed to be imported by the wire codec, the file operations layer, the
// connection handler, and the client without causing circular imports.
//
// Import graph: harbor <- wire <- fileops/session <- adapter/client
package harbor

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the closed set of error kinds.
// The connection handler maps each kind to exactly one wire status code,
// and the client retry policy keys its transient/permanent decision off it.
type Kind int

const (
	// KindTransport indicates the connection failed: closed, TLS failure,
	// or a read/write timeout. Terminates the connection.
	KindTransport Kind = iota + 1

	// KindProtocol indicates a malformed frame, frame digest mismatch,
	// unknown command, version mismatch, or a command that is not valid
	// in the connection's current state. Terminates the connection.
	KindProtocol

	// KindAuth indicates the peer certificate was rejected: bad chain,
	// revoked, or no matching client record.
	KindAuth

	// KindForbidden indicates the authenticated client is not permitted
	// to use the requested library.
	KindForbidden

	// KindNotFound indicates the target path does not exist.
	KindNotFound

	// KindAlreadyExists indicates the target path already exists.
	KindAlreadyExists

	// KindLocked indicates a conflicting lock is held on the path.
	// Retryable: the holder will eventually commit, abort, or be reaped.
	KindLocked

	// KindRateLimited indicates the transfer was refused by the rate
	// limiter rather than throttled. Retryable.
	KindRateLimited

	// KindChecksumMismatch indicates a full-file digest did not match the
	// advertised digest. Never retried with the same bytes.
	KindChecksumMismatch

	// KindPathTraversal indicates the supplied relative path escapes the
	// library root or contains forbidden components.
	KindPathTraversal

	// KindInvalidArgument indicates a request parameter failed validation.
	KindInvalidArgument

	// KindSizeTooLarge indicates a payload, body, or listing exceeded its
	// configured maximum.
	KindSizeTooLarge

	// KindDiskFull indicates the library volume has no space left.
	KindDiskFull

	// KindInternal indicates an unexpected I/O or server failure. Logged
	// with full context server-side, surfaced generically to the peer.
	KindInternal
)

// String returns the wire name of the kind, used in error response payloads.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindLocked:
		return "locked"
	case KindRateLimited:
		return "rate_limited"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	case KindPathTraversal:
		return "path_traversal"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindSizeTooLarge:
		return "size_too_large"
	case KindDiskFull:
		return "disk_full"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// KindFromString maps a wire kind name back to its Kind.
// Unknown names map to KindInternal.
func KindFromString(s string) Kind {
	for k := KindTransport; k <= KindInternal; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindInternal
}

// Error is the error type returned by every FileHarbor component.
type Error struct {
	// Kind classifies the error
	Kind Kind

	// Op is the operation that failed ("put_start", "resolve", "handshake")
	Op string

	// Path is the library-relative path involved, if any
	Path string

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is supports errors.Is comparison against sentinel errors built with E:
// two *Errors match when their kinds match.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// E constructs an *Error. Arguments are interpreted by type: string args fill
// Op then Path in order, and an error sets the cause. Arguments of any other
// type are ignored.
func E(kind Kind, args ...any) *Error {
	e := &Error{Kind: kind}
	for _, arg := range args {
		switch a := arg.(type) {
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Path = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// Errorf constructs an *Error with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal if err is not an *Error.
// A nil error has no kind; callers must check err != nil first.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether the client retry policy may re-attempt the
// operation. Transient kinds are transport failures, rate limiting, and
// lock contention.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindRateLimited, KindLocked:
		return true
	default:
		return false
	}
}
