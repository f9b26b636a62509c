package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeffvan302/fileharbor/internal/bytesize"
)

// Example returns a starter server configuration rendered as YAML, used by
// the `config example` subcommand.
func Example() (string, error) {
	cfg := Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Network: NetworkConfig{
			Host:            "0.0.0.0",
			Port:            DefaultPort,
			MaxConnections:  DefaultMaxConnections,
			IdleTimeout:     DefaultIdleTimeout,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			ChunkSize:       DefaultChunkSize,
		},
		Security: SecurityConfig{
			CACert:     "/etc/fileharbor/ca.pem",
			CAKey:      "/etc/fileharbor/ca-key.pem",
			ServerCert: "/etc/fileharbor/server.pem",
			ServerKey:  "/etc/fileharbor/server-key.pem",
		},
		Libraries: []LibraryConfig{
			{
				ID:   "documents",
				Name: "Team documents",
				Root: "/srv/fileharbor/documents",
				AuthorizedClients: []string{
					"0000000000000000000000000000000000000000000000000000000000000000",
				},
				RateCap:     10 * bytesize.MiB,
				IdleTimeout: 5 * time.Minute,
			},
		},
		Clients: []ClientConfig{
			{
				Name: "alice-laptop",
				Cert: "/etc/fileharbor/clients/alice.pem",
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    DefaultMetricsPort,
		},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("marshal example config: %w", err)
	}
	return string(data), nil
}
