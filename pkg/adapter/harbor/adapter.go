// Package harbor implements the FileHarbor server adapter: the TLS
// acceptor, connection lifecycle, and the per-connection protocol state
// machine.
//
// Architecture: the Adapter manages the TCP listener and connection
// lifecycle. Each accepted connection is handled by a Connection that runs
// the handshake and command loop. The adapter coordinates graceful shutdown
// across all active connections using context cancellation and wait groups.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (signals in-flight requests to abort)
//  4. Session registry terminates all sessions
//  5. Wait for active connections to drain, up to ShutdownTimeout
//  6. Force-close any remaining connections after the timeout
package harbor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffvan302/fileharbor/internal/logger"
	"github.com/jeffvan302/fileharbor/pkg/auth"
	"github.com/jeffvan302/fileharbor/pkg/library"
	"github.com/jeffvan302/fileharbor/pkg/metrics"
	"github.com/jeffvan302/fileharbor/pkg/session"
)

// Adapter is the FileHarbor protocol server.
//
// Thread safety: all methods are safe for concurrent use. The shutdown
// mechanism uses sync.Once so Stop() is idempotent.
type Adapter struct {
	config Config

	// auth resolves peer certificates to client ids
	auth *auth.Authenticator

	// libraries is the immutable library set
	libraries *library.Manager

	// registry tracks sessions, locks, and transfer state
	registry *session.Registry

	// metrics is optional; nil disables collection
	metrics metrics.ServerMetrics

	// listener is closed during shutdown to stop accepting
	listener   net.Listener
	listenerMu sync.RWMutex

	// listenerReady is closed when the listener is accepting.
	// Used by tests to synchronize with server startup.
	listenerReady chan struct{}

	// activeConns tracks running connection handlers for graceful shutdown
	activeConns sync.WaitGroup

	// activeConnections maps remote address -> net.Conn for forced closure
	activeConnections sync.Map

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// connSemaphore limits concurrent connections; nil means unlimited
	connSemaphore chan struct{}

	// shutdown signals that graceful shutdown has been initiated
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// shutdownCtx is cancelled during shutdown to abort in-flight requests
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// New creates an Adapter in a stopped state. Call Serve to start accepting.
func New(config Config, authn *auth.Authenticator, libraries *library.Manager,
	registry *session.Registry, m metrics.ServerMetrics) (*Adapter, error) {

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid harbor config: %w", err)
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Adapter{
		config:         config,
		auth:           authn,
		libraries:      libraries,
		registry:       registry,
		metrics:        m,
		listenerReady:  make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// Registry returns the session registry the adapter serves.
func (a *Adapter) Registry() *session.Registry {
	return a.registry
}

// Addr returns the bound listener address, valid once ListenerReady fires.
func (a *Adapter) Addr() net.Addr {
	a.listenerMu.RLock()
	defer a.listenerMu.RUnlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ListenerReady returns a channel closed once the listener accepts
// connections.
func (a *Adapter) ListenerReady() <-chan struct{} {
	return a.listenerReady
}

// IdleTimeoutFor returns the effective idle timeout for a library,
// falling back to the adapter default. Feeds the registry reaper.
func (a *Adapter) IdleTimeoutFor(libraryID string) time.Duration {
	if lib, err := a.libraries.Lookup(libraryID); err == nil && lib.IdleTimeout > 0 {
		return lib.IdleTimeout
	}
	return a.config.IdleTimeout
}

// Serve listens and accepts connections until ctx is done or Stop is
// called. It returns after the graceful shutdown completes.
func (a *Adapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.config.ListenAddr, err)
	}

	a.listenerMu.Lock()
	a.listener = listener
	a.listenerMu.Unlock()
	close(a.listenerReady)

	logger.Info("harbor adapter listening",
		"addr", listener.Addr().String(),
		"libraries", a.libraries.Count(),
		"max_connections", a.config.MaxConnections)

	// Stop accepting when the caller's context ends
	go func() {
		select {
		case <-ctx.Done():
			a.initiateShutdown()
		case <-a.shutdown:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-a.shutdown:
				return a.drainConnections()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return a.drainConnections()
			}
			logger.Warn("accept failed", logger.KeyError, err.Error())
			continue
		}

		if a.connSemaphore != nil {
			select {
			case a.connSemaphore <- struct{}{}:
			default:
				// At capacity: refuse immediately rather than queue a
				// connection that would time out anyway.
				logger.Warn("connection limit reached, refusing",
					"remote", conn.RemoteAddr().String())
				conn.Close()
				continue
			}
		}

		a.activeConns.Add(1)
		a.activeConnections.Store(conn.RemoteAddr().String(), conn)
		count := a.connCount.Add(1)
		if a.metrics != nil {
			a.metrics.SetActiveConnections(count)
		}

		go a.handleConn(conn)
	}
}

// handleConn runs one connection to completion and releases its resources.
func (a *Adapter) handleConn(conn net.Conn) {
	defer func() {
		a.activeConnections.Delete(conn.RemoteAddr().String())
		count := a.connCount.Add(-1)
		if a.metrics != nil {
			a.metrics.SetActiveConnections(count)
		}
		if a.connSemaphore != nil {
			<-a.connSemaphore
		}
		a.activeConns.Done()
	}()

	newConnection(a, conn).serve(a.shutdownCtx)
}

// Stop initiates graceful shutdown and waits for connections to drain.
func (a *Adapter) Stop() error {
	a.initiateShutdown()
	return a.drainConnections()
}

// initiateShutdown closes the listener and cancels in-flight requests.
func (a *Adapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)

		a.listenerMu.RLock()
		listener := a.listener
		a.listenerMu.RUnlock()
		if listener != nil {
			listener.Close()
		}

		a.cancelRequests()
		a.registry.Shutdown()
	})
}

// drainConnections waits for active connections up to ShutdownTimeout,
// then force-closes stragglers.
func (a *Adapter) drainConnections() error {
	done := make(chan struct{})
	go func() {
		a.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("harbor adapter stopped")
		return nil
	case <-time.After(a.config.ShutdownTimeout):
	}

	forced := 0
	a.activeConnections.Range(func(_, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			conn.Close()
			forced++
		}
		return true
	})
	logger.Warn("forced connection close at shutdown", "count", forced)

	a.activeConns.Wait()
	return nil
}
