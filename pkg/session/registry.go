// Package session tracks live sessions, their file locks, and their
// in-flight transfer state. It is the sole mutable shared module in the
// server: the registry and lock table use fine-grained locking, and
// everything else in the process reads immutable state.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeffvan302/fileharbor/internal/logger"
	"github.com/jeffvan302/fileharbor/pkg/fileops"
	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

// Session is the authenticated association between one connection and one
// library. A session is bound to exactly one library for its lifetime.
type Session struct {
	// ID is unique per server lifetime.
	ID string

	// ClientID is the authenticated certificate fingerprint.
	ClientID string

	// LibraryID is the library bound at handshake.
	LibraryID string

	// PeerAddr is the remote address, for logging.
	PeerAddr string

	// CreatedAt is the handshake time.
	CreatedAt time.Time

	// lastActivity is Unix nanoseconds of the last processed command.
	lastActivity atomic.Int64

	// cancel aborts the connection's context: it fires on idle reap and
	// server shutdown, unblocking socket reads, rate-limiter waits, and
	// disk I/O promptly.
	cancel context.CancelFunc

	// closeConn force-closes the transport.
	closeConn func()

	mu        sync.Mutex
	uploads   map[string]*fileops.Upload
	downloads map[string]*fileops.Download
}

// Touch records command activity for the idle reaper.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last processed command.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// PutUpload registers an in-flight upload keyed by relative path.
func (s *Session) PutUpload(u *fileops.Upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[u.Path] = u
}

// Upload returns the active upload for the path.
func (s *Session) Upload(path string) (*fileops.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[path]
	if !ok {
		return nil, harbor.Errorf(harbor.KindInvalidArgument, "upload", "no active upload for %s", path)
	}
	return u, nil
}

// DropUpload unregisters the upload without aborting it (used at commit).
func (s *Session) DropUpload(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, path)
}

// PutDownload registers an in-flight download, closing any previous
// download of the same path.
func (s *Session) PutDownload(d *fileops.Download) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.downloads[d.Path]; ok {
		prev.Close()
	}
	s.downloads[d.Path] = d
}

// Download returns the active download for the path.
func (s *Session) Download(path string) (*fileops.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.downloads[path]
	if !ok {
		return nil, harbor.Errorf(harbor.KindInvalidArgument, "download", "no active download for %s", path)
	}
	return d, nil
}

// DropDownload closes and unregisters the download for the path.
func (s *Session) DropDownload(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.downloads[path]; ok {
		d.Close()
		delete(s.downloads, path)
	}
}

// releaseTransfers tears down every in-flight transfer. With purgeStaging,
// upload staging files are deleted (the idle reaper path); without it they
// stay on disk so a reconnecting client resumes from the committed length.
func (s *Session) releaseTransfers(purgeStaging bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, u := range s.uploads {
		if purgeStaging {
			u.Abort()
		} else {
			u.Detach()
		}
		delete(s.uploads, path)
	}
	for path, d := range s.downloads {
		d.Close()
		delete(s.downloads, path)
	}
}

// Registry is the thread-safe store of live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    *LockTable
}

// NewRegistry creates an empty registry with its lock table.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		locks:    NewLockTable(),
	}
}

// Locks returns the registry's lock table.
func (r *Registry) Locks() *LockTable {
	return r.locks
}

// Create inserts a new session at handshake success. cancel aborts the
// connection context; closeConn force-closes the transport. The id is a
// random UUID; insertion happens under the registry lock.
func (r *Registry) Create(clientID, libraryID, peerAddr string, cancel context.CancelFunc, closeConn func()) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		LibraryID: libraryID,
		PeerAddr:  peerAddr,
		CreatedAt: time.Now(),
		cancel:    cancel,
		closeConn: closeConn,
		uploads:   make(map[string]*fileops.Upload),
		downloads: make(map[string]*fileops.Download),
	}
	s.Touch()

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns a session by id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Terminate tears a session down: cancels its context, releases transfer
// state, releases its locks, closes the transport, and removes it from the
// registry. Staging files stay on disk so an interrupted upload resumes on
// the next connection. Idempotent.
func (r *Registry) Terminate(s *Session) {
	r.terminate(s, false)
}

// Reap is Terminate plus staging deletion, the idle-reaper teardown: a
// session kicked for inactivity does not keep half-written files around.
func (r *Registry) Reap(s *Session) {
	r.terminate(s, true)
}

func (r *Registry) terminate(s *Session, purgeStaging bool) {
	r.mu.Lock()
	_, present := r.sessions[s.ID]
	delete(r.sessions, s.ID)
	r.mu.Unlock()
	if !present {
		return
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.releaseTransfers(purgeStaging)
	r.locks.ReleaseSession(s.ID)
	if s.closeConn != nil {
		s.closeConn()
	}
}

// Shutdown terminates every session. Called before the acceptor exits.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		r.Terminate(s)
	}
}

// RunReaper scans sessions on the given interval and terminates any whose
// last activity exceeds its idle timeout. timeoutFor maps a library id to
// its effective idle timeout. Returns when ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration, timeoutFor func(libraryID string) time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapIdle(timeoutFor)
		}
	}
}

// reapIdle terminates sessions idle past their timeout.
func (r *Registry) reapIdle(timeoutFor func(libraryID string) time.Duration) {
	now := time.Now()

	r.mu.RLock()
	var idle []*Session
	for _, s := range r.sessions {
		timeout := timeoutFor(s.LibraryID)
		if timeout <= 0 {
			continue
		}
		if now.Sub(s.LastActivity()) > timeout {
			idle = append(idle, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range idle {
		logger.Info("reaping idle session",
			logger.KeySessionID, s.ID,
			logger.KeyClientID, s.ClientID,
			logger.KeyLibrary, s.LibraryID,
			"idle", now.Sub(s.LastActivity()).Round(time.Second).String())
		r.Reap(s)
	}
}
