// Package auth validates peer certificates and maps them to client
// identities. The TLS layer has already verified the chain against the
// server CA by the time Authenticate runs; this package answers who the
// peer is and whether they are still welcome.
package auth

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

// ClientRecord describes one issued client certificate.
type ClientRecord struct {
	// ID is the lowercase hex SHA-256 fingerprint of the DER certificate.
	ID string

	// Name is the human display name.
	Name string

	// Revoked rejects all new handshakes for this client.
	Revoked bool
}

// Fingerprint computes the client id of a certificate: the lowercase hex
// SHA-256 digest of its DER encoding. This derivation is applied everywhere
// a client id appears (config keys, CRL entries, registry lookups).
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// FingerprintPEM computes the client id of a PEM-encoded certificate.
func FingerprintPEM(pemBytes []byte) (string, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return "", errors.New("no certificate PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", err
	}
	return Fingerprint(cert), nil
}

// Authenticator resolves TLS peers to client identities. The record set and
// CRL are immutable after construction; reads are lock-free.
type Authenticator struct {
	clients map[string]*ClientRecord
	crl     map[string]struct{}
}

// New builds an Authenticator from the configured client records and
// revocation list. CRL entries are certificate fingerprints.
func New(records []ClientRecord, crl []string) *Authenticator {
	a := &Authenticator{
		clients: make(map[string]*ClientRecord, len(records)),
		crl:     make(map[string]struct{}, len(crl)),
	}
	for i := range records {
		rec := records[i]
		a.clients[rec.ID] = &rec
	}
	for _, fp := range crl {
		a.crl[fp] = struct{}{}
	}
	return a
}

// Authenticate extracts the peer certificate from a completed TLS
// connection state and returns the resolved client id.
//
// Rejected with an authentication error: no peer certificate, no matching
// client record, a revoked record, or a fingerprint on the CRL.
func (a *Authenticator) Authenticate(state tls.ConnectionState) (string, error) {
	if len(state.PeerCertificates) == 0 {
		return "", harbor.Errorf(harbor.KindAuth, "authenticate", "no peer certificate")
	}
	leaf := state.PeerCertificates[0]
	fp := Fingerprint(leaf)

	if _, revoked := a.crl[fp]; revoked {
		return "", harbor.Errorf(harbor.KindAuth, "authenticate", "certificate %s is revoked", fp[:12])
	}

	rec, ok := a.clients[fp]
	if !ok {
		return "", harbor.Errorf(harbor.KindAuth, "authenticate", "unknown client certificate %s", fp[:12])
	}
	if rec.Revoked {
		return "", harbor.Errorf(harbor.KindAuth, "authenticate", "client %s is revoked", rec.Name)
	}

	return rec.ID, nil
}

// Lookup returns the record for a client id, or nil.
func (a *Authenticator) Lookup(clientID string) *ClientRecord {
	return a.clients[clientID]
}
