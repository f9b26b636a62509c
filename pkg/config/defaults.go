package config

import (
	"time"

	"github.com/jeffvan302/fileharbor/internal/bytesize"
)

// Default values applied for missing fields.
const (
	DefaultPort            = 9410
	DefaultMaxConnections  = 256
	DefaultIdleTimeout     = 10 * time.Minute
	DefaultReadTimeout     = 5 * time.Minute
	DefaultWriteTimeout    = 2 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
	DefaultChunkSize       = 4 * bytesize.MiB
	DefaultMetricsPort     = 9411

	// serializeWritesThreshold is the authorized-set size at or below
	// which a library serializes writes unless configured otherwise.
	serializeWritesThreshold = 4
)

// ApplyDefaults fills missing values in a server config.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Network.Port == 0 {
		cfg.Network.Port = DefaultPort
	}
	if cfg.Network.MaxConnections == 0 {
		cfg.Network.MaxConnections = DefaultMaxConnections
	}
	if cfg.Network.IdleTimeout == 0 {
		cfg.Network.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Network.ReadTimeout == 0 {
		cfg.Network.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Network.WriteTimeout == 0 {
		cfg.Network.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Network.ShutdownTimeout == 0 {
		cfg.Network.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Network.ChunkSize == 0 {
		cfg.Network.ChunkSize = DefaultChunkSize
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// SerializeWritesEnabled resolves the per-library write-serialization toggle:
// explicit configuration wins; otherwise libraries with a small authorized
// set serialize writes.
func (l *LibraryConfig) SerializeWritesEnabled() bool {
	if l.SerializeWrites != nil {
		return *l.SerializeWrites
	}
	return len(l.AuthorizedClients) <= serializeWritesThreshold
}
