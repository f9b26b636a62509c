package session

import (
	"sync"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

// LockMode is the kind of file lock held on a path.
type LockMode int

const (
	// LockExclusive is the writer lock: excludes every other lock.
	LockExclusive LockMode = iota + 1

	// LockShared is the reader lock: compatible with other shared locks.
	LockShared
)

func (m LockMode) String() string {
	if m == LockExclusive {
		return "exclusive-write"
	}
	return "shared-read"
}

// lockKey identifies a lock: (library id, resolved absolute path).
type lockKey struct {
	library string
	path    string
}

// lockEntry is the single owner of one lock record. Sessions reference
// locks through the table by key, never through back-pointers.
type lockEntry struct {
	mode    LockMode
	holders map[string]int // session id -> acquisition count
}

// LockTable coordinates file locks across sessions. Exclusive-write locks
// are held by one session; shared-read locks by any number. The table also
// owns the per-library write slot used when a library serializes writes.
type LockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*lockEntry

	// writeSlots maps library id -> session id holding the library's
	// write slot. Present only for libraries with serialized writes.
	writeSlots map[string]string
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		locks:      make(map[lockKey]*lockEntry),
		writeSlots: make(map[string]string),
	}
}

// Acquire takes a lock on (library, path) for the session. Acquisition is
// non-blocking: a conflict returns a locked error immediately, and the
// client retry policy treats it as transient.
//
// serializeWrites additionally requires the library's write slot for
// exclusive locks: while any session holds an exclusive lock in the
// library, no other session may take one, on any path.
func (t *LockTable) Acquire(libraryID, path, sessionID string, mode LockMode, serializeWrites bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := lockKey{library: libraryID, path: path}
	entry := t.locks[key]

	if entry != nil {
		if entry.mode == LockExclusive || mode == LockExclusive {
			// The only compatible combination is shared+shared,
			// unless it is the same session re-acquiring.
			if _, own := entry.holders[sessionID]; !(own && len(entry.holders) == 1) {
				return harbor.Errorf(harbor.KindLocked, "acquire",
					"%s is locked %s", path, entry.mode)
			}
		}
	}

	if mode == LockExclusive && serializeWrites {
		if holder, ok := t.writeSlots[libraryID]; ok && holder != sessionID {
			return harbor.Errorf(harbor.KindLocked, "acquire",
				"library %s writes are serialized", libraryID)
		}
		t.writeSlots[libraryID] = sessionID
	}

	if entry == nil {
		entry = &lockEntry{mode: mode, holders: make(map[string]int)}
		t.locks[key] = entry
	}
	if mode == LockExclusive {
		entry.mode = LockExclusive
	}
	entry.holders[sessionID]++
	return nil
}

// Release drops one acquisition of the session's lock on (library, path).
// Releasing a lock the session does not hold is a no-op.
func (t *LockTable) Release(libraryID, path, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release(lockKey{library: libraryID, path: path}, sessionID)
}

// release drops one acquisition; caller holds t.mu.
func (t *LockTable) release(key lockKey, sessionID string) {
	entry := t.locks[key]
	if entry == nil {
		return
	}
	count, ok := entry.holders[sessionID]
	if !ok {
		return
	}
	if count > 1 {
		entry.holders[sessionID] = count - 1
	} else {
		delete(entry.holders, sessionID)
	}
	if len(entry.holders) == 0 {
		delete(t.locks, key)
	}
	if entry.mode == LockExclusive {
		if _, still := entry.holders[sessionID]; !still {
			t.releaseWriteSlot(key.library, sessionID)
		}
	}
}

// releaseWriteSlot frees the library write slot if no exclusive lock in the
// library is held by the session anymore; caller holds t.mu.
func (t *LockTable) releaseWriteSlot(libraryID, sessionID string) {
	if t.writeSlots[libraryID] != sessionID {
		return
	}
	for key, entry := range t.locks {
		if key.library == libraryID && entry.mode == LockExclusive {
			if _, ok := entry.holders[sessionID]; ok {
				return
			}
		}
	}
	delete(t.writeSlots, libraryID)
}

// ReleaseSession drops every lock held by the session, in every library.
// Called on disconnect, idle reap, and shutdown.
func (t *LockTable) ReleaseSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entry := range t.locks {
		if _, ok := entry.holders[sessionID]; !ok {
			continue
		}
		delete(entry.holders, sessionID)
		if len(entry.holders) == 0 {
			delete(t.locks, key)
		}
	}
	for library, holder := range t.writeSlots {
		if holder == sessionID {
			delete(t.writeSlots, library)
		}
	}
}

// IsLocked reports whether any lock exists on (library, path). Delete and
// rename require the path to be lock-free.
func (t *LockTable) IsLocked(libraryID, path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.locks[lockKey{library: libraryID, path: path}]
	return ok
}

// Held returns the number of locks held by a session, for diagnostics.
func (t *LockTable) Held(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, entry := range t.locks {
		if _, ok := entry.holders[sessionID]; ok {
			count++
		}
	}
	return count
}
