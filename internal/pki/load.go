package pki

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var ErrNoCACertificate = errors.New("no ca certificate found")

// LoadFiles reads a PEM key pair and an optional PEM CA bundle. The pool is
// nil when caFile is empty.
func LoadFiles(keyFile, certFile, caFile string) (*tls.Certificate, *x509.CertPool, error) {
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read key: %w", err)
	}
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read certificate: %w", err)
	}
	certificate, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot load %v: %w", certFile, err)
	}
	if caFile == "" {
		return &certificate, nil, nil
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, nil, fmt.Errorf("cannot load %v: %w", caFile, ErrNoCACertificate)
	}
	return &certificate, pool, nil
}
