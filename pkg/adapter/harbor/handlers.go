package harbor

import (
	"context"
	"encoding/json"

	"github.com/jeffvan302/fileharbor/pkg/fileops"
	"github.com/jeffvan302/fileharbor/pkg/harbor"
	"github.com/jeffvan302/fileharbor/pkg/session"
	"github.com/jeffvan302/fileharbor/pkg/wire"
)

// Command handlers. Every handler resolves client paths through the
// library's resolver, operates via pkg/fileops, and returns either a
// response frame or an error that dispatch converts to a wire status.

// resolve maps a relative path through the library resolver.
func (c *Connection) resolve(rel string) (string, error) {
	return c.lib.Resolver().Resolve(rel)
}

func (c *Connection) handlePutStart(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.PutStartRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}

	locks := c.adapter.registry.Locks()

	// A repeated PUT_START for a path this session is already uploading
	// replaces the previous state and its lock acquisition; the staging
	// file carries the resume offset either way.
	if prev, err := c.sess.Upload(req.Path); err == nil {
		prev.Detach()
		c.sess.DropUpload(req.Path)
		locks.Release(c.lib.ID, prev.AbsPath, c.sess.ID)
	}

	if err := locks.Acquire(c.lib.ID, abs, c.sess.ID, session.LockExclusive, c.lib.SerializeWrites); err != nil {
		return nil, err
	}

	upload, err := fileops.StartUpload(abs, req.Path, req.Size, req.Digest, req.Mtime)
	if err != nil {
		locks.Release(c.lib.ID, abs, c.sess.ID)
		return nil, err
	}
	c.sess.PutUpload(upload)

	return wire.NewResponse(wire.CmdPutStart, wire.PutStartResponse{
		ResumeOffset: upload.BytesCommitted,
	})
}

func (c *Connection) handlePutChunk(ctx context.Context, frame *wire.Frame) (*wire.Frame, error) {
	if frame.Header.Kind != wire.KindData {
		return nil, harbor.Errorf(harbor.KindProtocol, "put_chunk", "PUT_CHUNK requires a DATA frame")
	}
	var req wire.PutChunkRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	upload, err := c.sess.Upload(req.Path)
	if err != nil {
		return nil, err
	}

	// The rate limiter gates the bytes before they touch the disk.
	if err := c.lib.Limiter().Consume(ctx, len(frame.Body)); err != nil {
		return nil, err
	}

	if err := upload.WriteChunk(req.Offset, frame.Body); err != nil {
		return nil, err
	}
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordBytes(c.lib.ID, "in", uint64(len(frame.Body)))
	}

	return wire.NewResponse(wire.CmdPutChunk, wire.PutChunkResponse{
		BytesCommitted: upload.BytesCommitted,
	})
}

func (c *Connection) handlePutCommit(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.PutCommitRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	upload, err := c.sess.Upload(req.Path)
	if err != nil {
		return nil, err
	}

	// Commit is the sole atomic finalization point: whatever happens
	// below, the upload state and the lock are gone afterwards.
	digest, err := upload.Commit()
	c.sess.DropUpload(req.Path)
	c.adapter.registry.Locks().Release(c.lib.ID, upload.AbsPath, c.sess.ID)
	if err != nil {
		return nil, err
	}

	return wire.NewResponse(wire.CmdPutCommit, wire.PutCommitResponse{Digest: digest})
}

func (c *Connection) handleGetStart(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.GetStartRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}

	locks := c.adapter.registry.Locks()

	// A repeated GET_START for a path this session is already reading
	// replaces the previous download and its lock acquisition.
	if prev, err := c.sess.Download(req.Path); err == nil {
		c.sess.DropDownload(req.Path)
		locks.Release(c.lib.ID, prev.AbsPath, c.sess.ID)
	}

	if err := locks.Acquire(c.lib.ID, abs, c.sess.ID, session.LockShared, false); err != nil {
		return nil, err
	}

	download, err := fileops.StartDownload(abs, req.Path, req.Offset)
	if err != nil {
		locks.Release(c.lib.ID, abs, c.sess.ID)
		return nil, err
	}
	c.sess.PutDownload(download)

	return wire.NewResponse(wire.CmdGetStart, wire.GetStartResponse{
		Size:   download.Size,
		Digest: download.Digest,
		Offset: download.Offset,
	})
}

func (c *Connection) handleGetChunk(ctx context.Context, frame *wire.Frame) (*wire.Frame, error) {
	var req wire.GetChunkRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	download, err := c.sess.Download(req.Path)
	if err != nil {
		return nil, err
	}

	max := req.MaxBytes
	if max == 0 || max > wire.MaxBodySize {
		max = wire.MaxBodySize
	}
	if remaining := download.Size - min(req.Offset, download.Size); remaining < max {
		max = remaining
	}

	// Rate-limit before the disk read: the tokens cover the bytes about
	// to leave.
	if err := c.lib.Limiter().Consume(ctx, int(max)); err != nil {
		return nil, err
	}

	chunk, eof, err := download.ReadChunk(req.Offset, max)
	if err != nil {
		return nil, err
	}
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordBytes(c.lib.ID, "out", uint64(len(chunk)))
	}

	if eof {
		abs := download.AbsPath
		c.sess.DropDownload(req.Path)
		c.adapter.registry.Locks().Release(c.lib.ID, abs, c.sess.ID)
	}

	return wire.NewData(wire.CmdGetChunk, wire.StatusOK, wire.GetChunkResponse{
		Offset: req.Offset,
		EOF:    eof,
	}, chunk)
}

func (c *Connection) handleDelete(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.DeleteRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if c.adapter.registry.Locks().IsLocked(c.lib.ID, abs) {
		return nil, harbor.E(harbor.KindLocked, "delete", req.Path)
	}
	if err := fileops.Delete(abs); err != nil {
		return nil, err
	}
	return wire.NewResponse(wire.CmdDelete, nil)
}

func (c *Connection) handleRename(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.RenameRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	from, err := c.resolve(req.From)
	if err != nil {
		return nil, err
	}
	to, err := c.resolve(req.To)
	if err != nil {
		return nil, err
	}
	locks := c.adapter.registry.Locks()
	if locks.IsLocked(c.lib.ID, from) || locks.IsLocked(c.lib.ID, to) {
		return nil, harbor.E(harbor.KindLocked, "rename", req.From)
	}
	if err := fileops.Rename(from, to); err != nil {
		return nil, err
	}
	return wire.NewResponse(wire.CmdRename, nil)
}

func (c *Connection) handleList(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.ListRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	entries, err := fileops.List(c.lib.Root, abs, req.Recursive)
	if err != nil {
		return nil, err
	}
	return newEntriesFrame(wire.CmdList, entries)
}

func (c *Connection) handleManifest(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.ManifestRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	entries, err := fileops.Manifest(c.lib.Root, abs)
	if err != nil {
		return nil, err
	}
	return newEntriesFrame(wire.CmdManifest, entries)
}

// newEntriesFrame carries listing results in the frame body, which has a
// far larger cap than the payload: big directories fit without a second
// round trip.
func newEntriesFrame(cmd wire.Command, entries []wire.Entry) (*wire.Frame, error) {
	body, err := json.Marshal(wire.ListResponse{Entries: entries})
	if err != nil {
		return nil, harbor.E(harbor.KindInternal, "encode entries", err)
	}
	if uint64(len(body)) > wire.MaxBodySize {
		return nil, harbor.Errorf(harbor.KindSizeTooLarge, cmd.String(),
			"listing of %d entries exceeds frame limit", len(entries))
	}
	return wire.NewData(cmd, wire.StatusOK, nil, body)
}

func (c *Connection) handleMkdir(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.MkdirRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if err := fileops.Mkdir(abs); err != nil {
		return nil, err
	}
	return wire.NewResponse(wire.CmdMkdir, nil)
}

func (c *Connection) handleRmdir(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.RmdirRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if err := fileops.Rmdir(abs, req.Recursive); err != nil {
		return nil, err
	}
	return wire.NewResponse(wire.CmdRmdir, nil)
}

func (c *Connection) handleChecksum(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.ChecksumRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	digest, err := fileops.HashFile(abs)
	if err != nil {
		return nil, err
	}
	return wire.NewResponse(wire.CmdChecksum, wire.ChecksumResponse{Digest: digest})
}

func (c *Connection) handleStat(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.StatRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	stat, err := fileops.Stat(abs)
	if err != nil {
		return nil, err
	}
	return wire.NewResponse(wire.CmdStat, stat)
}

func (c *Connection) handleExists(frame *wire.Frame) (*wire.Frame, error) {
	var req wire.ExistsRequest
	if err := frame.Decode(&req); err != nil {
		return nil, err
	}
	abs, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	return wire.NewResponse(wire.CmdExists, wire.ExistsResponse{Exists: fileops.Exists(abs)})
}
