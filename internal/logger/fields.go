package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that audit lines
// can be aggregated and queried by session, library, or command.
const (
	// Session & identity
	KeySessionID = "session_id" // Session identifier assigned at handshake
	KeyClientID  = "client_id"  // Client certificate fingerprint (hex)
	KeyClientIP  = "client_ip"  // Client IP address (without port)
	KeyLibrary   = "library"    // Library id the session is bound to

	// Protocol & operation
	KeyCommand = "command" // Protocol command: PUT_START, GET_CHUNK, LIST, ...
	KeyStatus  = "status"  // Wire status code for the response
	KeyKind    = "kind"    // Error kind when the command failed

	// File system operations
	KeyPath    = "path"     // Library-relative path
	KeyOldPath = "old_path" // Source path for rename operations
	KeyNewPath = "new_path" // Destination path for rename operations
	KeySize    = "size"     // File size in bytes
	KeyOffset  = "offset"   // Byte offset for chunked transfers
	KeyBytes   = "bytes"    // Bytes moved by a chunk or transfer
	KeyDigest  = "digest"   // SHA-256 digest (hex)

	// Performance
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds

	// Errors
	KeyError = "error" // Error message
)
