package fileops

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

// Upload is the server-side state of one in-flight upload. Bytes land in
// the staging file only; the final path is written exactly once, by the
// atomic rename in Commit.
type Upload struct {
	// Path is the library-relative path, as seen on the wire.
	Path string

	// AbsPath is the resolved final destination.
	AbsPath string

	// StagingPath is AbsPath + StagingSuffix.
	StagingPath string

	// TotalSize is the size advertised by the client in PUT_START.
	TotalSize uint64

	// ExpectedDigest is the full-file digest advertised by the client.
	ExpectedDigest string

	// Mtime, when non-zero, is restored on the final file at commit.
	Mtime int64

	// BytesCommitted is the staging file length. Invariant:
	// BytesCommitted <= TotalSize.
	BytesCommitted uint64

	// StartedAt is when PUT_START was processed.
	StartedAt time.Time

	file *os.File
}

// StartUpload opens (or resumes) the staging file for an upload and
// returns the upload state. The caller holds the exclusive-write lock.
//
// Resume: an existing staging file whose length is <= totalSize keeps its
// bytes and the returned BytesCommitted tells the client where to resume;
// a longer staging file is from a different advertised size and is
// truncated to zero.
func StartUpload(absPath, relPath string, totalSize uint64, expectedDigest string, mtime int64) (*Upload, error) {
	if info, err := os.Lstat(absPath); err == nil && info.IsDir() {
		return nil, harbor.E(harbor.KindInvalidArgument, "put_start", relPath)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, mapOSError("put_start", relPath, err)
	}

	staging := absPath + StagingSuffix
	committed := uint64(0)
	if info, err := os.Lstat(staging); err == nil {
		if uint64(info.Size()) <= totalSize {
			committed = uint64(info.Size())
		} else {
			if err := os.Truncate(staging, 0); err != nil {
				return nil, mapOSError("put_start", relPath, err)
			}
		}
	}

	// Read-write: WriteChunk reads the committed range back to verify
	// idempotent replays.
	f, err := os.OpenFile(staging, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, mapOSError("put_start", relPath, err)
	}

	return &Upload{
		Path:           relPath,
		AbsPath:        absPath,
		StagingPath:    staging,
		TotalSize:      totalSize,
		ExpectedDigest: strings.ToLower(expectedDigest),
		Mtime:          mtime,
		BytesCommitted: committed,
		StartedAt:      time.Now(),
		file:           f,
	}, nil
}

// WriteChunk writes data at offset. The offset must equal the committed
// length: a gap would leave undefined bytes in the file, so it is
// rejected. The one exception is the replay of the most recent chunk — a
// resend whose range ends exactly at the committed length and whose bytes
// match what is already on disk. That happens when the chunk's ack was
// lost; the resend is acknowledged again without rewriting anything.
func (u *Upload) WriteChunk(offset uint64, data []byte) error {
	if offset != u.BytesCommitted {
		if offset < u.BytesCommitted && offset+uint64(len(data)) == u.BytesCommitted {
			return u.verifyReplay(offset, data)
		}
		return harbor.Errorf(harbor.KindInvalidArgument, "put_chunk",
			"offset %d does not match committed length %d", offset, u.BytesCommitted)
	}
	if offset+uint64(len(data)) > u.TotalSize {
		return harbor.Errorf(harbor.KindSizeTooLarge, "put_chunk",
			"write past advertised size %d", u.TotalSize)
	}
	if _, err := u.file.WriteAt(data, int64(offset)); err != nil {
		return mapOSError("put_chunk", u.Path, err)
	}
	u.BytesCommitted += uint64(len(data))
	return nil
}

// verifyReplay accepts a resent chunk idempotently when its bytes equal
// the committed range on disk, and rejects it otherwise.
func (u *Upload) verifyReplay(offset uint64, data []byte) error {
	existing := make([]byte, len(data))
	if _, err := u.file.ReadAt(existing, int64(offset)); err != nil {
		return mapOSError("put_chunk", u.Path, err)
	}
	if !bytes.Equal(existing, data) {
		return harbor.Errorf(harbor.KindInvalidArgument, "put_chunk",
			"replayed chunk at offset %d does not match committed bytes", offset)
	}
	return nil
}

// Commit finalizes the upload: syncs staging, verifies the streamed digest
// against the advertised one, renames staging into place, and restores the
// advertised mtime. On digest mismatch the staging file is deleted and the
// final path is untouched.
func (u *Upload) Commit() (string, error) {
	if u.BytesCommitted != u.TotalSize {
		return "", harbor.Errorf(harbor.KindInvalidArgument, "put_commit",
			"committed %d of %d bytes", u.BytesCommitted, u.TotalSize)
	}
	if err := u.file.Sync(); err != nil {
		u.Abort()
		return "", mapOSError("put_commit", u.Path, err)
	}
	if err := u.file.Close(); err != nil {
		u.file = nil
		u.Abort()
		return "", mapOSError("put_commit", u.Path, err)
	}
	u.file = nil

	digest, err := HashFile(u.StagingPath)
	if err != nil {
		u.Abort()
		return "", err
	}
	if digest != u.ExpectedDigest {
		os.Remove(u.StagingPath)
		return "", harbor.Errorf(harbor.KindChecksumMismatch, "put_commit",
			"computed %s, advertised %s", digest, u.ExpectedDigest)
	}

	if err := os.Rename(u.StagingPath, u.AbsPath); err != nil {
		os.Remove(u.StagingPath)
		return "", mapOSError("put_commit", u.Path, err)
	}
	if u.Mtime != 0 {
		mtime := time.Unix(u.Mtime, 0)
		if err := os.Chtimes(u.AbsPath, mtime, mtime); err != nil {
			// The content is committed; a failed mtime restore is not
			// worth failing the upload over.
			return digest, nil
		}
	}
	return digest, nil
}

// Detach closes the staging file handle but keeps the staging file on
// disk, preserving the resume offset for a later PUT_START.
func (u *Upload) Detach() {
	if u.file != nil {
		u.file.Close()
		u.file = nil
	}
}

// Abort discards the upload: closes and deletes the staging file.
// Safe to call more than once.
func (u *Upload) Abort() {
	if u.file != nil {
		u.file.Close()
		u.file = nil
	}
	os.Remove(u.StagingPath)
}
