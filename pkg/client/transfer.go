package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/jeffvan302/fileharbor/internal/logger"
	"github.com/jeffvan302/fileharbor/pkg/harbor"
	"github.com/jeffvan302/fileharbor/pkg/wire"
)

// partialSuffix marks the local staging file of an in-progress download,
// mirroring the server's upload staging protocol.
const partialSuffix = ".partial"

// decodeBody unmarshals a DATA frame's JSON body.
func decodeBody(frame *wire.Frame, v any) error {
	if err := json.Unmarshal(frame.Body, v); err != nil {
		return harbor.E(harbor.KindProtocol, "decode "+frame.Header.Command.String(), err)
	}
	return nil
}

// hashLocal computes the streamed SHA-256 of a local file.
func hashLocal(path string) (string, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, harbor.E(harbor.KindNotFound, "open", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, harbor.E(harbor.KindInternal, "hash", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), uint64(n), nil
}

// Upload transfers a local file to the remote path, resuming any partial
// upload the server still holds. Transient failures are retried with the
// configured policy; a checksum mismatch is surfaced without retry.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	return c.withRetry(ctx, func() error {
		return c.uploadOnce(ctx, localPath, remotePath)
	})
}

func (c *Client) uploadOnce(ctx context.Context, localPath, remotePath string) error {
	digest, size, err := hashLocal(localPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return harbor.E(harbor.KindNotFound, "upload", localPath, err)
	}

	var start wire.PutStartResponse
	err = c.call(ctx, wire.CmdPutStart, wire.PutStartRequest{
		Path:   remotePath,
		Size:   size,
		Digest: digest,
		Mtime:  info.ModTime().Unix(),
	}, &start)
	if err != nil {
		return err
	}

	offset := start.ResumeOffset
	if offset > 0 {
		logger.Debug("resuming upload",
			logger.KeyPath, remotePath,
			logger.KeyOffset, offset)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return harbor.E(harbor.KindNotFound, "upload", localPath, err)
	}
	defer f.Close()
	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return harbor.E(harbor.KindInternal, "upload", localPath, err)
	}

	emitter := newProgressEmitter(c.progress, "upload", remotePath, size)
	emitter.emit(offset, false)

	buf := make([]byte, c.chunkSize)
	for offset < size {
		n, err := io.ReadFull(f, buf[:min(uint64(len(buf)), size-offset)])
		if err != nil && err != io.ErrUnexpectedEOF {
			return harbor.E(harbor.KindInternal, "upload read", localPath, err)
		}
		if n == 0 {
			return harbor.Errorf(harbor.KindInternal, "upload read",
				"%s truncated during upload", localPath)
		}

		req, err := wire.NewData(wire.CmdPutChunk, wire.StatusOK, wire.PutChunkRequest{
			Path:   remotePath,
			Offset: offset,
		}, buf[:n])
		if err != nil {
			return err
		}
		resp, err := c.roundTrip(ctx, req)
		if err != nil {
			return err
		}
		var ack wire.PutChunkResponse
		if err := resp.Decode(&ack); err != nil {
			return err
		}

		offset += uint64(n)
		if ack.BytesCommitted != offset {
			return harbor.Errorf(harbor.KindProtocol, "put_chunk",
				"server committed %d, expected %d", ack.BytesCommitted, offset)
		}
		emitter.emit(offset, false)
	}

	var commit wire.PutCommitResponse
	if err := c.call(ctx, wire.CmdPutCommit, wire.PutCommitRequest{Path: remotePath}, &commit); err != nil {
		return err
	}
	if !strings.EqualFold(commit.Digest, digest) {
		return harbor.Errorf(harbor.KindChecksumMismatch, "put_commit",
			"server committed digest %s, local %s", commit.Digest, digest)
	}

	emitter.emit(size, true)
	return nil
}

// Download transfers a remote file to the local path. An existing local
// partial resumes where it left off; the finished file is verified against
// the server's digest before it replaces the partial.
func (c *Client) Download(ctx context.Context, remotePath, localPath string) error {
	return c.withRetry(ctx, func() error {
		return c.downloadOnce(ctx, remotePath, localPath)
	})
}

func (c *Client) downloadOnce(ctx context.Context, remotePath, localPath string) error {
	partial := localPath + partialSuffix

	var offset uint64
	if info, err := os.Stat(partial); err == nil {
		offset = uint64(info.Size())
	}

	var start wire.GetStartResponse
	err := c.call(ctx, wire.CmdGetStart, wire.GetStartRequest{
		Path:   remotePath,
		Offset: offset,
	}, &start)
	if err != nil && harbor.KindOf(err) == harbor.KindInvalidArgument && offset > 0 {
		// The partial is longer than the remote file: it belongs to a
		// different version. Start over.
		if err := os.Remove(partial); err != nil {
			return harbor.E(harbor.KindInternal, "download", partial, err)
		}
		offset = 0
		err = c.call(ctx, wire.CmdGetStart, wire.GetStartRequest{Path: remotePath}, &start)
	}
	if err != nil {
		return err
	}

	if offset > 0 {
		logger.Debug("resuming download",
			logger.KeyPath, remotePath,
			logger.KeyOffset, offset)
	}

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return harbor.E(harbor.KindInternal, "download", partial, err)
	}
	defer f.Close()

	emitter := newProgressEmitter(c.progress, "download", remotePath, start.Size)
	emitter.emit(offset, false)

	for {
		req, err := wire.NewRequest(wire.CmdGetChunk, wire.GetChunkRequest{
			Path:     remotePath,
			Offset:   offset,
			MaxBytes: c.chunkSize,
		})
		if err != nil {
			return err
		}
		resp, err := c.roundTrip(ctx, req)
		if err != nil {
			return err
		}
		var chunk wire.GetChunkResponse
		if err := resp.Decode(&chunk); err != nil {
			return err
		}

		if len(resp.Body) > 0 {
			if _, err := f.WriteAt(resp.Body, int64(offset)); err != nil {
				return harbor.E(harbor.KindInternal, "download write", partial, err)
			}
			offset += uint64(len(resp.Body))
		}
		emitter.emit(offset, false)

		if chunk.EOF {
			break
		}
	}

	if err := f.Sync(); err != nil {
		return harbor.E(harbor.KindInternal, "download", partial, err)
	}
	if err := f.Close(); err != nil {
		return harbor.E(harbor.KindInternal, "download", partial, err)
	}

	digest, _, err := hashLocal(partial)
	if err != nil {
		return err
	}
	if !strings.EqualFold(digest, start.Digest) {
		os.Remove(partial)
		return harbor.Errorf(harbor.KindChecksumMismatch, "download",
			"local digest %s, server advertised %s", digest, start.Digest)
	}

	if err := os.Rename(partial, localPath); err != nil {
		return harbor.E(harbor.KindInternal, "download", localPath, err)
	}
	emitter.emit(offset, true)
	return nil
}
