package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

func TestExclusiveExcludesEverything(t *testing.T) {
	lt := NewLockTable()

	require.NoError(t, lt.Acquire("lib", "/r/a", "s1", LockExclusive, false))

	err := lt.Acquire("lib", "/r/a", "s2", LockExclusive, false)
	assert.Equal(t, harbor.KindLocked, harbor.KindOf(err))

	err = lt.Acquire("lib", "/r/a", "s2", LockShared, false)
	assert.Equal(t, harbor.KindLocked, harbor.KindOf(err))

	// A different path is free
	assert.NoError(t, lt.Acquire("lib", "/r/b", "s2", LockExclusive, false))
}

func TestSharedCompatibleWithShared(t *testing.T) {
	lt := NewLockTable()

	require.NoError(t, lt.Acquire("lib", "/r/a", "s1", LockShared, false))
	require.NoError(t, lt.Acquire("lib", "/r/a", "s2", LockShared, false))
	require.NoError(t, lt.Acquire("lib", "/r/a", "s3", LockShared, false))

	// A writer is excluded while readers hold the path
	err := lt.Acquire("lib", "/r/a", "s4", LockExclusive, false)
	assert.Equal(t, harbor.KindLocked, harbor.KindOf(err))

	// Readers drain; the writer gets in
	lt.Release("lib", "/r/a", "s1")
	lt.Release("lib", "/r/a", "s2")
	lt.Release("lib", "/r/a", "s3")
	assert.NoError(t, lt.Acquire("lib", "/r/a", "s4", LockExclusive, false))
}

func TestLockFreedAfterRelease(t *testing.T) {
	lt := NewLockTable()

	require.NoError(t, lt.Acquire("lib", "/r/a", "s1", LockExclusive, false))
	assert.True(t, lt.IsLocked("lib", "/r/a"))

	lt.Release("lib", "/r/a", "s1")
	assert.False(t, lt.IsLocked("lib", "/r/a"))
	assert.NoError(t, lt.Acquire("lib", "/r/a", "s2", LockExclusive, false))
}

func TestReleaseSessionDropsEverything(t *testing.T) {
	lt := NewLockTable()

	require.NoError(t, lt.Acquire("lib", "/r/a", "s1", LockExclusive, true))
	require.NoError(t, lt.Acquire("lib", "/r/b", "s1", LockShared, false))
	require.NoError(t, lt.Acquire("lib2", "/q/c", "s1", LockShared, false))
	assert.Equal(t, 3, lt.Held("s1"))

	lt.ReleaseSession("s1")
	assert.Equal(t, 0, lt.Held("s1"))
	assert.False(t, lt.IsLocked("lib", "/r/a"))
	assert.False(t, lt.IsLocked("lib", "/r/b"))

	// The write slot is free again
	assert.NoError(t, lt.Acquire("lib", "/r/z", "s2", LockExclusive, true))
}

func TestSerializedWritesOneWriterPerLibrary(t *testing.T) {
	lt := NewLockTable()

	require.NoError(t, lt.Acquire("lib", "/r/a", "s1", LockExclusive, true))

	// Another session cannot write anywhere in the library
	err := lt.Acquire("lib", "/r/other", "s2", LockExclusive, true)
	assert.Equal(t, harbor.KindLocked, harbor.KindOf(err))

	// The same session can take more write locks
	require.NoError(t, lt.Acquire("lib", "/r/more", "s1", LockExclusive, true))

	// Reads are unaffected
	assert.NoError(t, lt.Acquire("lib", "/r/read", "s2", LockShared, false))

	// Releasing one of two write locks keeps the slot
	lt.Release("lib", "/r/a", "s1")
	err = lt.Acquire("lib", "/r/other", "s2", LockExclusive, true)
	assert.Equal(t, harbor.KindLocked, harbor.KindOf(err))

	// Releasing the last write lock frees the slot
	lt.Release("lib", "/r/more", "s1")
	assert.NoError(t, lt.Acquire("lib", "/r/other", "s2", LockExclusive, true))
}

func TestSerializedWritesScopedToLibrary(t *testing.T) {
	lt := NewLockTable()

	require.NoError(t, lt.Acquire("lib1", "/r/a", "s1", LockExclusive, true))
	assert.NoError(t, lt.Acquire("lib2", "/q/a", "s2", LockExclusive, true))
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	lt := NewLockTable()
	lt.Release("lib", "/r/a", "ghost")
	assert.False(t, lt.IsLocked("lib", "/r/a"))
}
