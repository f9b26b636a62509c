package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressEmitterThrottles(t *testing.T) {
	var events []Progress
	e := newProgressEmitter(func(p Progress) { events = append(events, p) },
		"upload", "a.bin", 1000)

	// A burst of updates inside the throttle window collapses
	e.emit(100, false)
	e.emit(200, false)
	e.emit(300, false)

	require.Len(t, events, 1)
	assert.Equal(t, uint64(100), events[0].BytesDone)
}

func TestProgressEmitterFinalAlwaysFires(t *testing.T) {
	var events []Progress
	e := newProgressEmitter(func(p Progress) { events = append(events, p) },
		"download", "b.bin", 500)

	e.emit(100, false)
	e.emit(500, true) // inside the throttle window, but final

	require.Len(t, events, 2)
	assert.Equal(t, uint64(500), events[1].BytesDone)
}

func TestProgressEventsAreMonotonic(t *testing.T) {
	var events []Progress
	e := newProgressEmitter(func(p Progress) { events = append(events, p) },
		"upload", "c.bin", 10000)

	bytes := uint64(0)
	for i := 0; i < 20; i++ {
		bytes += 500
		e.emit(bytes, false)
		time.Sleep(15 * time.Millisecond)
	}
	e.emit(10000, true)

	var last uint64
	for _, p := range events {
		assert.GreaterOrEqual(t, p.BytesDone, last, "BytesDone must never decrease")
		last = p.BytesDone
		assert.Equal(t, "upload", p.Op)
		assert.Equal(t, "c.bin", p.Path)
		assert.Equal(t, uint64(10000), p.TotalBytes)
	}
	assert.Equal(t, uint64(10000), last)
}

func TestProgressEmitterNilFunc(t *testing.T) {
	e := newProgressEmitter(nil, "upload", "x", 10)
	e.emit(5, false)
	e.emit(10, true) // must not panic
}
