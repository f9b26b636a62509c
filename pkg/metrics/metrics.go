// Package metrics defines the observability interfaces for the server.
// Implementations live in subpackages; a nil interface value disables
// collection with zero overhead.
package metrics

import "time"

// ServerMetrics provides observability for the harbor adapter.
//
// This interface is optional: pass nil to disable metrics collection.
type ServerMetrics interface {
	// RecordHandshake records a handshake attempt and its wire status.
	RecordHandshake(library string, status string)

	// RecordCommand records a completed command with its duration and
	// wire status.
	RecordCommand(command string, library string, duration time.Duration, status string)

	// RecordBytes records file bytes moved for a library, direction
	// "in" (upload) or "out" (download).
	RecordBytes(library string, direction string, bytes uint64)

	// SetActiveSessions updates the live session gauge.
	SetActiveSessions(count int)

	// SetActiveConnections updates the live connection gauge.
	SetActiveConnections(count int32)
}
