// Package client implements the FileHarbor transfer engine: connection
// bring-up, handshake, the command surface, and upload/download drivers
// with resume, retry, and progress reporting.
package client

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/jeffvan302/fileharbor/internal/logger"
	"github.com/jeffvan302/fileharbor/pkg/config"
	"github.com/jeffvan302/fileharbor/pkg/harbor"
	"github.com/jeffvan302/fileharbor/pkg/wire"
)

// Client is a connection-oriented transfer engine bound to one library.
//
// A Client is not safe for concurrent use: the protocol is strictly
// ordered within a session. Run one Client per goroutine.
type Client struct {
	cfg    *config.TransferConfig
	tlsCfg *tls.Config

	conn      *tls.Conn
	sessionID string
	chunkSize uint64

	progress ProgressFunc
}

// New builds a Client from the transfer configuration. No connection is
// opened until Connect or the first operation.
func New(cfg *config.TransferConfig) (*Client, error) {
	tlsCfg, err := cfg.LoadTLS()
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, tlsCfg: tlsCfg}, nil
}

// SetProgressFunc registers the progress event consumer. Pass nil to
// disable events.
func (c *Client) SetProgressFunc(fn ProgressFunc) {
	c.progress = fn
}

// SessionID returns the current session id, empty when disconnected.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Connect dials the server, completes the TLS handshake, and performs the
// protocol handshake. A no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: c.tlsCfg}
	rawConn, err := tlsDialer.DialContext(ctx, "tcp", c.cfg.Addr())
	if err != nil {
		return harbor.E(harbor.KindTransport, "connect", err)
	}
	conn := rawConn.(*tls.Conn)

	req, err := wire.NewRequest(wire.CmdHandshake, wire.HandshakeRequest{
		LibraryID:       c.cfg.LibraryID,
		ProtocolVersion: wire.ProtocolVersion,
	})
	if err != nil {
		conn.Close()
		return err
	}
	if err := wire.WriteFrame(ctx, conn, req, c.cfg.ConnectTimeout); err != nil {
		conn.Close()
		return err
	}
	resp, err := wire.ReadFrame(ctx, conn, c.cfg.ConnectTimeout)
	if err != nil {
		conn.Close()
		return err
	}
	if err := resp.Err(); err != nil {
		conn.Close()
		return err
	}

	var hs wire.HandshakeResponse
	if err := resp.Decode(&hs); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.sessionID = hs.SessionID
	c.chunkSize = c.cfg.ChunkSize.Uint64()
	if c.chunkSize == 0 {
		c.chunkSize = hs.ChunkSizeHint
	}
	if c.chunkSize == 0 || c.chunkSize > wire.MaxBodySize {
		c.chunkSize = wire.MaxBodySize
	}

	logger.Debug("session established",
		logger.KeySessionID, c.sessionID,
		logger.KeyLibrary, c.cfg.LibraryID,
		"chunk_size", c.chunkSize)
	return nil
}

// Close sends a best-effort DISCONNECT and closes the transport.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if req, err := wire.NewRequest(wire.CmdDisconnect, nil); err == nil {
		ctx := context.Background()
		if wire.WriteFrame(ctx, c.conn, req, c.cfg.ConnectTimeout) == nil {
			_, _ = wire.ReadFrame(ctx, c.conn, c.cfg.ConnectTimeout)
		}
	}
	err := c.conn.Close()
	c.conn = nil
	c.sessionID = ""
	return err
}

// drop discards the connection after a transport failure so the next
// attempt re-dials.
func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.sessionID = ""
	}
}

// roundTrip sends one request frame and reads its response, converting
// non-OK statuses into errors. Transport failures drop the connection.
func (c *Client) roundTrip(ctx context.Context, req *wire.Frame) (*wire.Frame, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(ctx, c.conn, req, c.cfg.ConnectTimeout); err != nil {
		c.drop()
		return nil, err
	}
	resp, err := wire.ReadFrame(ctx, c.conn, c.cfg.ConnectTimeout)
	if err != nil {
		c.drop()
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// call is roundTrip for commands with a decodable response payload.
func (c *Client) call(ctx context.Context, cmd wire.Command, reqPayload, respPayload any) error {
	req, err := wire.NewRequest(cmd, reqPayload)
	if err != nil {
		return err
	}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if respPayload != nil {
		return resp.Decode(respPayload)
	}
	return nil
}

// Ping round-trips a keep-alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, wire.CmdPing, nil, nil)
}

// Delete removes a remote file.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.withRetry(ctx, func() error {
		return c.call(ctx, wire.CmdDelete, wire.DeleteRequest{Path: path}, nil)
	})
}

// Rename moves a remote file within the library.
func (c *Client) Rename(ctx context.Context, from, to string) error {
	return c.withRetry(ctx, func() error {
		return c.call(ctx, wire.CmdRename, wire.RenameRequest{From: from, To: to}, nil)
	})
}

// Mkdir creates a remote directory and any missing parents.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	return c.withRetry(ctx, func() error {
		return c.call(ctx, wire.CmdMkdir, wire.MkdirRequest{Path: path}, nil)
	})
}

// Rmdir removes a remote directory.
func (c *Client) Rmdir(ctx context.Context, path string, recursive bool) error {
	return c.withRetry(ctx, func() error {
		return c.call(ctx, wire.CmdRmdir, wire.RmdirRequest{Path: path, Recursive: recursive}, nil)
	})
}

// Exists reports whether a remote path exists.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	var resp wire.ExistsResponse
	err := c.withRetry(ctx, func() error {
		return c.call(ctx, wire.CmdExists, wire.ExistsRequest{Path: path}, &resp)
	})
	return resp.Exists, err
}

// Stat returns size, digest and mtime of a remote file.
func (c *Client) Stat(ctx context.Context, path string) (*wire.StatResponse, error) {
	var resp wire.StatResponse
	err := c.withRetry(ctx, func() error {
		return c.call(ctx, wire.CmdStat, wire.StatRequest{Path: path}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Checksum returns the full-file digest of a remote file.
func (c *Client) Checksum(ctx context.Context, path string) (string, error) {
	var resp wire.ChecksumResponse
	err := c.withRetry(ctx, func() error {
		return c.call(ctx, wire.CmdChecksum, wire.ChecksumRequest{Path: path}, &resp)
	})
	return resp.Digest, err
}

// List enumerates a remote directory.
func (c *Client) List(ctx context.Context, path string, recursive bool) ([]wire.Entry, error) {
	return c.listEntries(ctx, wire.CmdList, wire.ListRequest{Path: path, Recursive: recursive})
}

// Manifest enumerates a remote subtree with per-file digests.
func (c *Client) Manifest(ctx context.Context, path string) ([]wire.Entry, error) {
	return c.listEntries(ctx, wire.CmdManifest, wire.ManifestRequest{Path: path})
}

// listEntries handles the DATA-framed entry listings of LIST and MANIFEST.
func (c *Client) listEntries(ctx context.Context, cmd wire.Command, reqPayload any) ([]wire.Entry, error) {
	var entries []wire.Entry
	err := c.withRetry(ctx, func() error {
		req, err := wire.NewRequest(cmd, reqPayload)
		if err != nil {
			return err
		}
		resp, err := c.roundTrip(ctx, req)
		if err != nil {
			return err
		}
		var listing wire.ListResponse
		if err := decodeBody(resp, &listing); err != nil {
			return err
		}
		entries = listing.Entries
		return nil
	})
	return entries, err
}
