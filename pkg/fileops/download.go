package fileops

import (
	"io"
	"os"
	"time"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

// Download is the server-side state of one in-flight download. The size and
// digest captured at GET_START are authoritative for the whole transfer;
// the shared-read lock held by the session guarantees the file cannot be
// replaced underneath it.
type Download struct {
	// Path is the library-relative path, as seen on the wire.
	Path string

	// AbsPath is the resolved source file.
	AbsPath string

	// Size is the file size at GET_START.
	Size uint64

	// Digest is the full-file digest at GET_START.
	Digest string

	// Offset is where streaming begins, equal to the client's resume
	// offset.
	Offset uint64

	// StartedAt is when GET_START was processed.
	StartedAt time.Time

	file *os.File
}

// StartDownload stats and opens the file for streaming from offset.
func StartDownload(absPath, relPath string, offset uint64) (*Download, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, mapOSError("get_start", relPath, err)
	}
	if info.IsDir() {
		return nil, harbor.E(harbor.KindInvalidArgument, "get_start", relPath)
	}
	size := uint64(info.Size())
	if offset > size {
		return nil, harbor.Errorf(harbor.KindInvalidArgument, "get_start",
			"resume offset %d past size %d", offset, size)
	}

	digest, err := HashFile(absPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, mapOSError("get_start", relPath, err)
	}

	return &Download{
		Path:      relPath,
		AbsPath:   absPath,
		Size:      size,
		Digest:    digest,
		Offset:    offset,
		StartedAt: time.Now(),
		file:      f,
	}, nil
}

// ReadChunk returns up to max bytes starting at offset, and whether the
// returned bytes reach the end of the file. The server is free to return
// fewer bytes than max; here the only shortfall is at end of file.
func (d *Download) ReadChunk(offset, max uint64) ([]byte, bool, error) {
	if offset > d.Size {
		return nil, false, harbor.Errorf(harbor.KindInvalidArgument, "get_chunk",
			"offset %d past size %d", offset, d.Size)
	}
	if offset == d.Size {
		return nil, true, nil
	}
	remaining := d.Size - offset
	if max > remaining {
		max = remaining
	}

	buf := make([]byte, max)
	n, err := d.file.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, false, mapOSError("get_chunk", d.Path, err)
	}
	buf = buf[:n]
	return buf, offset+uint64(n) >= d.Size, nil
}

// Close releases the open file. Safe to call more than once.
func (d *Download) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
