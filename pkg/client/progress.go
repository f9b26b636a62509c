package client

import (
	"time"
)

// Progress is one transfer progress event. BytesDone is monotonically
// non-decreasing across the events of a single operation.
type Progress struct {
	// Op is "upload" or "download".
	Op string

	// Path is the remote path of the transfer.
	Path string

	// BytesDone counts bytes confirmed so far, including resumed bytes.
	BytesDone uint64

	// TotalBytes is the full size of the file.
	TotalBytes uint64

	// Elapsed is the time since the operation (or the current attempt of
	// it) started.
	Elapsed time.Duration
}

// ProgressFunc consumes progress events.
type ProgressFunc func(Progress)

// progressInterval throttles event emission so a fast transfer does not
// flood the consumer.
const progressInterval = 100 * time.Millisecond

// progressEmitter rate-limits progress callbacks. The final event of an
// operation is always emitted.
type progressEmitter struct {
	fn       ProgressFunc
	op       string
	path     string
	total    uint64
	started  time.Time
	lastEmit time.Time
}

func newProgressEmitter(fn ProgressFunc, op, path string, total uint64) *progressEmitter {
	return &progressEmitter{
		fn:      fn,
		op:      op,
		path:    path,
		total:   total,
		started: time.Now(),
	}
}

// emit reports bytesDone, throttled unless final.
func (p *progressEmitter) emit(bytesDone uint64, final bool) {
	if p.fn == nil {
		return
	}
	now := time.Now()
	if !final && now.Sub(p.lastEmit) < progressInterval {
		return
	}
	p.lastEmit = now
	p.fn(Progress{
		Op:         p.op,
		Path:       p.path,
		BytesDone:  bytesDone,
		TotalBytes: p.total,
		Elapsed:    now.Sub(p.started),
	})
}
