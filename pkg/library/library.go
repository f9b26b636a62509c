// Package library owns the set of libraries the server exposes: named,
// path-rooted storage areas with their own authorization, rate budget, and
// idle policy. The set is read-only for the server's lifetime, so lookups
// are lock-free.
package library

import (
	"fmt"
	"os"
	"time"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
	"github.com/jeffvan302/fileharbor/pkg/pathres"
	"github.com/jeffvan302/fileharbor/pkg/ratelimit"
)

// Library is one named storage area.
type Library struct {
	// ID is the stable opaque identifier clients handshake with.
	ID string

	// Name is the human display name.
	Name string

	// Root is the absolute directory all paths resolve under.
	Root string

	// AuthorizedClients is the set of client ids permitted to bind.
	AuthorizedClients map[string]struct{}

	// RateCap is the byte/second budget shared by all sessions in the
	// library, both directions. 0 means unbounded.
	RateCap uint64

	// IdleTimeout overrides the server default when non-zero.
	IdleTimeout time.Duration

	// SerializeWrites allows at most one session to hold any
	// exclusive-write lock in the library at a time.
	SerializeWrites bool

	resolver *pathres.Resolver
	limiter  *ratelimit.Limiter
}

// Resolver returns the library's path resolver.
func (l *Library) Resolver() *pathres.Resolver {
	return l.resolver
}

// Limiter returns the library's shared rate limiter; nil means unbounded.
func (l *Library) Limiter() *ratelimit.Limiter {
	return l.limiter
}

// Manager holds the immutable library set.
type Manager struct {
	libraries map[string]*Library
}

// NewManager validates the library set and builds per-library resolvers and
// limiters. Every root must exist and be a directory; ids must be unique.
func NewManager(libraries []*Library) (*Manager, error) {
	m := &Manager{libraries: make(map[string]*Library, len(libraries))}
	for _, lib := range libraries {
		if lib.ID == "" {
			return nil, fmt.Errorf("library with empty id")
		}
		if _, dup := m.libraries[lib.ID]; dup {
			return nil, fmt.Errorf("duplicate library id %q", lib.ID)
		}
		info, err := os.Stat(lib.Root)
		if err != nil {
			return nil, fmt.Errorf("library %q root: %w", lib.ID, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("library %q root %q is not a directory", lib.ID, lib.Root)
		}
		resolver, err := pathres.New(lib.Root)
		if err != nil {
			return nil, fmt.Errorf("library %q: %w", lib.ID, err)
		}
		lib.resolver = resolver
		lib.limiter = ratelimit.New(lib.RateCap)
		m.libraries[lib.ID] = lib
	}
	return m, nil
}

// Lookup returns the library with the given id, or a forbidden error.
// An unknown library is reported as forbidden, not not-found, so probing
// for library ids leaks nothing.
func (m *Manager) Lookup(libraryID string) (*Library, error) {
	lib, ok := m.libraries[libraryID]
	if !ok {
		return nil, harbor.Errorf(harbor.KindForbidden, "lookup", "unknown library %q", libraryID)
	}
	return lib, nil
}

// IsAuthorized reports whether the client may bind to the library.
func (m *Manager) IsAuthorized(libraryID, clientID string) bool {
	lib, ok := m.libraries[libraryID]
	if !ok {
		return false
	}
	_, ok = lib.AuthorizedClients[clientID]
	return ok
}

// Resolve maps a relative path inside the library to an absolute path.
func (m *Manager) Resolve(libraryID, rel string) (string, error) {
	lib, err := m.Lookup(libraryID)
	if err != nil {
		return "", err
	}
	return lib.resolver.Resolve(rel)
}

// RateCap returns the configured byte rate of a library, 0 when unknown
// or unbounded.
func (m *Manager) RateCap(libraryID string) uint64 {
	lib, ok := m.libraries[libraryID]
	if !ok {
		return 0
	}
	return lib.RateCap
}

// Count returns the number of configured libraries.
func (m *Manager) Count() int {
	return len(m.libraries)
}

// All returns the libraries in arbitrary order, for startup logging.
func (m *Manager) All() []*Library {
	out := make([]*Library, 0, len(m.libraries))
	for _, lib := range m.libraries {
		out = append(out, lib)
	}
	return out
}
