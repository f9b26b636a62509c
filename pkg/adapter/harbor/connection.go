package harbor

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/jeffvan302/fileharbor/internal/logger"
	"github.com/jeffvan302/fileharbor/pkg/harbor"
	"github.com/jeffvan302/fileharbor/pkg/library"
	"github.com/jeffvan302/fileharbor/pkg/session"
	"github.com/jeffvan302/fileharbor/pkg/wire"
)

// tlsHandshakeTimeout bounds the TLS handshake; a peer that connects and
// never completes the handshake must not pin a connection slot.
const tlsHandshakeTimeout = 15 * time.Second

// Connection is the per-connection protocol state machine:
//
//	AWAITING_HANDSHAKE -> AUTHENTICATED -> (command loop) -> CLOSING
//
// Within a connection the state machine is single-threaded and strictly
// ordered: frames are consumed and responses emitted in reception order.
type Connection struct {
	adapter *Adapter
	conn    *tls.Conn

	// set after a successful handshake
	sess *session.Session
	lib  *library.Library

	lc *logger.LogContext
}

// newConnection wraps an accepted TCP connection in the server TLS layer.
func newConnection(a *Adapter, raw net.Conn) *Connection {
	host, _, err := net.SplitHostPort(raw.RemoteAddr().String())
	if err != nil {
		host = raw.RemoteAddr().String()
	}
	return &Connection{
		adapter: a,
		conn:    tls.Server(raw, a.config.TLS),
		lc:      logger.NewLogContext(host),
	}
}

// serve runs the connection to completion. parent is the adapter's
// shutdown context; its cancellation aborts every blocking point.
func (c *Connection) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer c.conn.Close()

	ctx = logger.WithContext(ctx, c.lc)

	// TLS handshake. Demands and verifies the client certificate chain.
	hsCtx, hsCancel := context.WithTimeout(ctx, tlsHandshakeTimeout)
	err := c.conn.HandshakeContext(hsCtx)
	hsCancel()
	if err != nil {
		logger.DebugCtx(ctx, "TLS handshake failed", logger.KeyError, err.Error())
		return
	}

	// AWAITING_HANDSHAKE: authenticate the peer and bind a library.
	if !c.awaitHandshake(ctx, cancel) {
		return
	}

	// AUTHENTICATED: command loop.
	c.commandLoop(ctx)

	// CLOSING: release locks, abort transfers, remove the session.
	c.adapter.registry.Terminate(c.sess)
	if c.adapter.metrics != nil {
		c.adapter.metrics.SetActiveSessions(c.adapter.registry.Count())
	}
	logger.InfoCtx(ctx, "session closed")
}

// awaitHandshake consumes the first frame, which must be HANDSHAKE, and
// establishes the session. Any failure sends an error response and leaves
// the connection in CLOSING.
func (c *Connection) awaitHandshake(ctx context.Context, cancel context.CancelFunc) bool {
	frame, err := wire.ReadFrame(ctx, c.conn, c.adapter.config.ReadTimeout)
	if err != nil {
		logger.DebugCtx(ctx, "handshake read failed", logger.KeyError, err.Error())
		return false
	}

	if frame.Header.Kind != wire.KindRequest || frame.Header.Command != wire.CmdHandshake {
		err := harbor.Errorf(harbor.KindProtocol, "handshake",
			"first frame must be HANDSHAKE, got %s", frame.Header.Command)
		c.reject(ctx, wire.CmdHandshake, wire.StatusBadRequest, err, "")
		return false
	}

	var req wire.HandshakeRequest
	if err := frame.Decode(&req); err != nil {
		c.reject(ctx, wire.CmdHandshake, wire.StatusBadRequest, err, "")
		return false
	}
	c.lc.Library = req.LibraryID

	if req.ProtocolVersion != wire.ProtocolVersion {
		err := harbor.Errorf(harbor.KindProtocol, "handshake",
			"protocol version %d not supported", req.ProtocolVersion)
		c.reject(ctx, wire.CmdHandshake, wire.StatusVersionMismatch, err, req.LibraryID)
		return false
	}

	clientID, err := c.adapter.auth.Authenticate(c.conn.ConnectionState())
	if err != nil {
		c.reject(ctx, wire.CmdHandshake, wire.StatusUnauthorized, err, req.LibraryID)
		return false
	}
	c.lc.ClientID = clientID

	lib, err := c.adapter.libraries.Lookup(req.LibraryID)
	if err != nil {
		c.reject(ctx, wire.CmdHandshake, wire.StatusForbidden, err, req.LibraryID)
		return false
	}
	if !c.adapter.libraries.IsAuthorized(req.LibraryID, clientID) {
		err := harbor.Errorf(harbor.KindForbidden, "handshake",
			"client not authorized for library %s", req.LibraryID)
		c.reject(ctx, wire.CmdHandshake, wire.StatusForbidden, err, req.LibraryID)
		return false
	}

	c.lib = lib
	c.sess = c.adapter.registry.Create(clientID, lib.ID,
		c.conn.RemoteAddr().String(), cancel, func() { c.conn.Close() })
	c.lc.SessionID = c.sess.ID

	resp, err := wire.NewResponse(wire.CmdHandshake, wire.HandshakeResponse{
		SessionID:       c.sess.ID,
		ProtocolVersion: wire.ProtocolVersion,
		ChunkSizeHint:   c.adapter.config.ChunkSize,
	})
	if err != nil {
		return false
	}
	if err := wire.WriteFrame(ctx, c.conn, resp, c.adapter.config.WriteTimeout); err != nil {
		c.adapter.registry.Terminate(c.sess)
		return false
	}

	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordHandshake(lib.ID, wire.StatusOK.String())
		c.adapter.metrics.SetActiveSessions(c.adapter.registry.Count())
	}
	logger.InfoCtx(ctx, "session established")
	return true
}

// reject sends a best-effort error response during handshake and records
// the failed attempt.
func (c *Connection) reject(ctx context.Context, cmd wire.Command, status wire.Status, err error, libraryID string) {
	logger.WarnCtx(ctx, "handshake rejected",
		logger.KeyStatus, status.String(),
		logger.KeyError, err.Error())
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordHandshake(libraryID, status.String())
	}
	frame := wire.NewErrorResponse(cmd, status, err)
	_ = wire.WriteFrame(ctx, c.conn, frame, c.adapter.config.WriteTimeout)
}

// commandLoop reads frames and dispatches commands until the peer
// disconnects, an error terminates the connection, or shutdown.
func (c *Connection) commandLoop(ctx context.Context) {
	for {
		frame, err := wire.ReadFrame(ctx, c.conn, c.adapter.config.ReadTimeout)
		if err != nil {
			if harbor.KindOf(err) == harbor.KindProtocol {
				// Best-effort error response; the connection is done
				// either way.
				logger.WarnCtx(ctx, "protocol error", logger.KeyError, err.Error())
				resp := wire.NewErrorResponse(0, wire.StatusBadRequest, err)
				_ = wire.WriteFrame(ctx, c.conn, resp, c.adapter.config.WriteTimeout)
			} else {
				logger.DebugCtx(ctx, "connection read ended", logger.KeyError, err.Error())
			}
			return
		}

		start := time.Now()
		c.lc.Command = frame.Header.Command.String()

		resp, closing := c.dispatch(ctx, frame)

		c.sess.Touch()

		status := wire.StatusOK
		if resp != nil {
			status = resp.Header.Status
			if err := wire.WriteFrame(ctx, c.conn, resp, c.adapter.config.WriteTimeout); err != nil {
				logger.DebugCtx(ctx, "response write failed", logger.KeyError, err.Error())
				return
			}
		}

		if c.adapter.metrics != nil {
			c.adapter.metrics.RecordCommand(frame.Header.Command.String(),
				c.lib.ID, time.Since(start), status.String())
		}
		logger.InfoCtx(ctx, "command",
			logger.KeyStatus, status.String(),
			logger.KeyDurationMs, logger.Duration(start))
		c.lc.Command = ""

		if closing {
			return
		}
	}
}

// dispatch validates the frame and routes it to the command handler.
// It returns the response frame and whether the connection must close.
func (c *Connection) dispatch(ctx context.Context, frame *wire.Frame) (*wire.Frame, bool) {
	cmd := frame.Header.Command

	if !cmd.Valid() || cmd == wire.CmdHandshake {
		err := harbor.Errorf(harbor.KindProtocol, "dispatch",
			"unexpected command %s", cmd)
		return wire.NewErrorResponse(cmd, wire.StatusBadRequest, err), true
	}

	var resp *wire.Frame
	var err error

	switch cmd {
	case wire.CmdPing:
		resp, err = wire.NewResponse(wire.CmdPing, nil)
	case wire.CmdDisconnect:
		resp, _ = wire.NewResponse(wire.CmdDisconnect, nil)
		return resp, true
	case wire.CmdPutStart:
		resp, err = c.handlePutStart(frame)
	case wire.CmdPutChunk:
		resp, err = c.handlePutChunk(ctx, frame)
	case wire.CmdPutCommit:
		resp, err = c.handlePutCommit(frame)
	case wire.CmdGetStart:
		resp, err = c.handleGetStart(frame)
	case wire.CmdGetChunk:
		resp, err = c.handleGetChunk(ctx, frame)
	case wire.CmdDelete:
		resp, err = c.handleDelete(frame)
	case wire.CmdRename:
		resp, err = c.handleRename(frame)
	case wire.CmdList:
		resp, err = c.handleList(frame)
	case wire.CmdMkdir:
		resp, err = c.handleMkdir(frame)
	case wire.CmdRmdir:
		resp, err = c.handleRmdir(frame)
	case wire.CmdManifest:
		resp, err = c.handleManifest(frame)
	case wire.CmdChecksum:
		resp, err = c.handleChecksum(frame)
	case wire.CmdStat:
		resp, err = c.handleStat(frame)
	case wire.CmdExists:
		resp, err = c.handleExists(frame)
	}

	if err != nil {
		kind := harbor.KindOf(err)
		if kind == harbor.KindInternal {
			logger.ErrorCtx(ctx, "command failed",
				logger.KeyKind, kind.String(),
				logger.KeyError, err.Error())
		} else {
			logger.DebugCtx(ctx, "command failed",
				logger.KeyKind, kind.String(),
				logger.KeyError, err.Error())
		}
		status := wire.StatusFromKind(kind)
		// Transport errors (cancelled rate waits, shutdown) and protocol
		// errors (a command that is not valid in the current state) end
		// the connection; everything else is answered and the loop goes
		// on.
		closing := kind == harbor.KindTransport || kind == harbor.KindProtocol
		return wire.NewErrorResponse(cmd, status, err), closing
	}
	return resp, false
}
