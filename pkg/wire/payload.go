package wire

// Payload structs for each command. Requests and responses are JSON with
// snake_case keys; binary file content rides in the frame body, never in
// the payload.

// HandshakeRequest is the first frame on every connection.
type HandshakeRequest struct {
	LibraryID       string `json:"library_id"`
	ProtocolVersion uint16 `json:"client_protocol_version"`
}

// HandshakeResponse binds the connection to a session.
type HandshakeResponse struct {
	SessionID       string `json:"session_id"`
	ProtocolVersion uint16 `json:"server_protocol_version"`
	ChunkSizeHint   uint64 `json:"chunk_size_hint"`
}

// ErrorPayload is carried by every non-OK response.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// PutStartRequest begins or resumes an upload.
type PutStartRequest struct {
	Path   string `json:"path"`
	Size   uint64 `json:"size"`
	Digest string `json:"digest"`
	// Mtime is the source file's modification time in Unix seconds,
	// restored on commit when non-zero.
	Mtime int64 `json:"mtime,omitempty"`
}

// PutStartResponse reports where the client should resume from.
type PutStartResponse struct {
	ResumeOffset uint64 `json:"resume_offset"`
}

// PutChunkRequest accompanies a DATA frame whose body is the chunk bytes.
type PutChunkRequest struct {
	Path   string `json:"path"`
	Offset uint64 `json:"offset"`
}

// PutChunkResponse acknowledges the bytes committed so far.
type PutChunkResponse struct {
	BytesCommitted uint64 `json:"bytes_committed"`
}

// PutCommitRequest finalizes an upload.
type PutCommitRequest struct {
	Path string `json:"path"`
}

// PutCommitResponse reports the digest of the committed file.
type PutCommitResponse struct {
	Digest string `json:"digest"`
}

// GetStartRequest begins or resumes a download.
type GetStartRequest struct {
	Path   string `json:"path"`
	Offset uint64 `json:"offset"`
}

// GetStartResponse carries the authoritative size and digest.
type GetStartResponse struct {
	Size   uint64 `json:"size"`
	Digest string `json:"digest"`
	Offset uint64 `json:"offset"`
}

// GetChunkRequest asks for up to MaxBytes starting at Offset.
type GetChunkRequest struct {
	Path     string `json:"path"`
	Offset   uint64 `json:"offset"`
	MaxBytes uint64 `json:"max_bytes"`
}

// GetChunkResponse accompanies a DATA frame whose body is the chunk bytes.
// EOF is true on the frame carrying the final bytes of the file.
type GetChunkResponse struct {
	Offset uint64 `json:"offset"`
	EOF    bool   `json:"eof"`
}

// DeleteRequest removes a file.
type DeleteRequest struct {
	Path string `json:"path"`
}

// RenameRequest moves a file within the library.
type RenameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ListRequest enumerates a directory.
type ListRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// Entry is one result of LIST or MANIFEST.
type Entry struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"` // "file" or "dir"
	Size  uint64 `json:"size"`
	Mtime int64  `json:"mtime"`
	// Digest is only populated by MANIFEST, and only for files.
	Digest string `json:"digest,omitempty"`
}

// ListResponse carries the entries of a LIST or MANIFEST.
type ListResponse struct {
	Entries []Entry `json:"entries"`
}

// MkdirRequest creates a directory and any missing parents.
type MkdirRequest struct {
	Path string `json:"path"`
}

// RmdirRequest removes a directory.
type RmdirRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// ManifestRequest walks a subtree and digests every file.
type ManifestRequest struct {
	Path string `json:"path"`
}

// ChecksumRequest computes a full-file digest.
type ChecksumRequest struct {
	Path string `json:"path"`
}

// ChecksumResponse carries the digest.
type ChecksumResponse struct {
	Digest string `json:"digest"`
}

// StatRequest returns file metadata.
type StatRequest struct {
	Path string `json:"path"`
}

// StatResponse carries size, digest and mtime.
type StatResponse struct {
	Size   uint64 `json:"size"`
	Digest string `json:"digest"`
	Mtime  int64  `json:"mtime"`
}

// ExistsRequest checks for a path.
type ExistsRequest struct {
	Path string `json:"path"`
}

// ExistsResponse reports presence.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}
