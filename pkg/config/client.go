package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jeffvan302/fileharbor/internal/bytesize"
)

// TransferConfig is the client configuration document.
type TransferConfig struct {
	// Host is the server hostname or address
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// Port is the server TCP port
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// LibraryID is the library to bind at handshake
	LibraryID string `mapstructure:"library_id" validate:"required" yaml:"library_id"`

	// Cert is the path to the client's PEM certificate
	Cert string `mapstructure:"cert" validate:"required" yaml:"cert"`

	// Key is the path to the client's PEM private key
	Key string `mapstructure:"key" validate:"required" yaml:"key"`

	// CACert is the path to the server CA certificate
	CACert string `mapstructure:"ca_cert" validate:"required" yaml:"ca_cert"`

	// ChunkSize is the transfer chunk size; 0 accepts the server's hint
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size,omitempty"`

	// RetryAttempts bounds retries of transient failures
	RetryAttempts int `mapstructure:"retry_attempts" validate:"gte=0" yaml:"retry_attempts"`

	// ConnectTimeout bounds dialing plus the TLS handshake
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// Client config defaults.
const (
	DefaultRetryAttempts  = 3
	DefaultConnectTimeout = 15 * time.Second
)

// LoadTransfer loads the client configuration document.
func LoadTransfer(configPath string) (*TransferConfig, error) {
	v := viper.New()
	setupViper(v, "HARBORCTL", configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg TransferConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Addr returns the host:port dial address.
func (c *TransferConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadTLS builds the mutually authenticated client TLS configuration from
// the configured certificate paths.
func (c *TransferConfig) LoadTLS() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.Cert, c.Key)
	if err != nil {
		return nil, fmt.Errorf("client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(c.CACert)
	if err != nil {
		return nil, fmt.Errorf("CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("CA certificate: no PEM certificates in %s", c.CACert)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
