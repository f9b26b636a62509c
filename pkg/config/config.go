// Package config loads and validates the FileHarbor configuration
// documents: the server document (network, security, libraries, clients,
// logging, metrics) and the client document (connection, identity,
// transfer tuning).
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FILEHARBOR_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/jeffvan302/fileharbor/internal/bytesize"
)

// Config is the server configuration document.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Network contains the listener and transfer tuning
	Network NetworkConfig `mapstructure:"network" yaml:"network"`

	// Security contains the certificate material and revocation list
	Security SecurityConfig `mapstructure:"security" yaml:"security"`

	// Libraries is the set of storage areas the server exposes
	Libraries []LibraryConfig `mapstructure:"libraries" validate:"required,min=1,dive" yaml:"libraries"`

	// Clients is the set of issued client certificates
	Clients []ClientConfig `mapstructure:"clients" validate:"dive" yaml:"clients"`

	// Metrics contains the Prometheus metrics listener configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// NetworkConfig contains the listener and transfer tuning.
type NetworkConfig struct {
	// Host is the listen address; empty binds all interfaces
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the TCP port the server listens on
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// MaxConnections bounds concurrent connections; 0 applies the default
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// IdleTimeout is the default session idle timeout, overridable per
	// library
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// ReadTimeout is the per-frame read deadline; detects half-open TCP
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the per-frame write deadline
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// ShutdownTimeout bounds the graceful-shutdown wait
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// ChunkSize is the chunk size hint offered to clients at handshake.
	// Supports human-readable values: "4Mi", "16MB"
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// SecurityConfig contains the certificate material.
//
// CAKey is carried for the external issuance tooling and is never read by
// the server core.
type SecurityConfig struct {
	// CACert is the path to the CA certificate that signs client certs
	CACert string `mapstructure:"ca_cert" validate:"required" yaml:"ca_cert"`

	// CAKey is the path to the CA signing key (issuance tooling only)
	CAKey string `mapstructure:"ca_key" yaml:"ca_key,omitempty"`

	// ServerCert is the path to the server TLS certificate
	ServerCert string `mapstructure:"server_cert" validate:"required" yaml:"server_cert"`

	// ServerKey is the path to the server TLS private key
	ServerKey string `mapstructure:"server_key" validate:"required" yaml:"server_key"`

	// RevokedFingerprints lists revoked client certificate fingerprints
	// (lowercase hex SHA-256)
	RevokedFingerprints []string `mapstructure:"revoked_fingerprints" validate:"dive,len=64,hexadecimal" yaml:"revoked_fingerprints,omitempty"`
}

// LibraryConfig describes one library.
type LibraryConfig struct {
	// ID is the stable identifier clients handshake with
	ID string `mapstructure:"id" validate:"required" yaml:"id"`

	// Name is the human display name
	Name string `mapstructure:"name" yaml:"name"`

	// Root is the absolute directory the library is rooted at
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// AuthorizedClients lists client ids (certificate fingerprints)
	// permitted to bind to this library
	AuthorizedClients []string `mapstructure:"authorized_clients" validate:"dive,len=64,hexadecimal" yaml:"authorized_clients"`

	// RateCap is the byte/second budget for all sessions in the library,
	// both directions. 0 or absent means unbounded.
	RateCap bytesize.ByteSize `mapstructure:"rate_cap" yaml:"rate_cap,omitempty"`

	// IdleTimeout overrides the network default when set
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout,omitempty"`

	// SerializeWrites allows one writer session at a time in the library.
	// When absent it defaults to on for libraries with at most four
	// authorized clients.
	SerializeWrites *bool `mapstructure:"serialize_writes" yaml:"serialize_writes,omitempty"`
}

// ClientConfig describes one issued client certificate.
type ClientConfig struct {
	// Name is the human display name
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// Cert is the path to the client's PEM certificate. The client id is
	// derived from it: the lowercase hex SHA-256 fingerprint of the DER
	// certificate.
	Cert string `mapstructure:"cert" validate:"required" yaml:"cert"`

	// Revoked rejects all handshakes from this client
	Revoked bool `mapstructure:"revoked" yaml:"revoked,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP listener.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP listener
	// are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics and /healthz
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads the server configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, "FILEHARBOR", configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with a friendlier error when the file is
// missing.
func MustLoad(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}
	return Load(configPath)
}

// setupViper configures environment variable support and the config file.
// Environment variables use the given prefix and underscores, for example
// FILEHARBOR_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, envPrefix, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(configPath)
}

// configDecodeHooks returns the combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can say "4Mi" or "100MB" or a plain number.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files can
// say "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// Validate runs the struct tag rules and the semantic checks the tags
// cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Libraries))
	for _, lib := range cfg.Libraries {
		if _, dup := seen[lib.ID]; dup {
			return fmt.Errorf("duplicate library id %q", lib.ID)
		}
		seen[lib.ID] = struct{}{}

		info, err := os.Stat(lib.Root)
		if err != nil {
			return fmt.Errorf("library %q root: %w", lib.ID, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("library %q root %q is not a directory", lib.ID, lib.Root)
		}
	}

	for _, path := range []string{cfg.Security.CACert, cfg.Security.ServerCert, cfg.Security.ServerKey} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("security material: %w", err)
		}
	}

	return nil
}
