package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/jeffvan302/fileharbor/pkg/auth"
	"github.com/jeffvan302/fileharbor/pkg/library"
)

// BuildAuthenticator reads each configured client certificate, derives its
// fingerprint, and assembles the authenticator with the revocation list.
func (cfg *Config) BuildAuthenticator() (*auth.Authenticator, error) {
	records := make([]auth.ClientRecord, 0, len(cfg.Clients))
	for _, client := range cfg.Clients {
		pemBytes, err := os.ReadFile(client.Cert)
		if err != nil {
			return nil, fmt.Errorf("client %q certificate: %w", client.Name, err)
		}
		fp, err := auth.FingerprintPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("client %q certificate: %w", client.Name, err)
		}
		records = append(records, auth.ClientRecord{
			ID:      fp,
			Name:    client.Name,
			Revoked: client.Revoked,
		})
	}

	crl := make([]string, len(cfg.Security.RevokedFingerprints))
	for i, fp := range cfg.Security.RevokedFingerprints {
		crl[i] = strings.ToLower(fp)
	}

	return auth.New(records, crl), nil
}

// BuildLibraries converts the library configs into the runtime library set.
func (cfg *Config) BuildLibraries() ([]*library.Library, error) {
	libs := make([]*library.Library, 0, len(cfg.Libraries))
	for _, lc := range cfg.Libraries {
		authorized := make(map[string]struct{}, len(lc.AuthorizedClients))
		for _, id := range lc.AuthorizedClients {
			authorized[strings.ToLower(id)] = struct{}{}
		}
		libs = append(libs, &library.Library{
			ID:                lc.ID,
			Name:              lc.Name,
			Root:              lc.Root,
			AuthorizedClients: authorized,
			RateCap:           lc.RateCap.Uint64(),
			IdleTimeout:       lc.IdleTimeout,
			SerializeWrites:   lc.SerializeWritesEnabled(),
		})
	}
	return libs, nil
}

// LoadServerTLSMaterial reads the server certificate, key, and client CA
// pool from the configured paths.
func (cfg *Config) LoadServerTLSMaterial() (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(cfg.Security.ServerCert, cfg.Security.ServerKey)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("server certificate: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.Security.CACert)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return tls.Certificate{}, nil, fmt.Errorf("CA certificate: no PEM certificates in %s", cfg.Security.CACert)
	}

	return cert, pool, nil
}
