package mote

import (
	"crypto/tls"
	"errors"
	"fmt"

	piondtls "github.com/pion/dtls/v2"
	"github.com/plgd-dev/cinfo/internal/pki"
)

var ErrNoCredentials = errors.New("coaps requires a pre-shared key or a certificate")

// Security holds the DTLS credentials for coaps motes. A pre-shared key takes
// precedence over certificates.
type Security struct {
	PSKIdentity        string
	PSK                []byte
	KeyFile            string
	CertFile           string
	CAFile             string
	InsecureSkipVerify bool
}

func (s Security) DTLSConfig() (*piondtls.Config, error) {
	if len(s.PSK) > 0 {
		psk := append([]byte(nil), s.PSK...)
		return &piondtls.Config{
			PSK: func(hint []byte) ([]byte, error) {
				return psk, nil
			},
			PSKIdentityHint: []byte(s.PSKIdentity),
			CipherSuites:    []piondtls.CipherSuiteID{piondtls.TLS_PSK_WITH_AES_128_CCM_8},
		}, nil
	}
	if s.CertFile == "" || s.KeyFile == "" {
		return nil, ErrNoCredentials
	}
	certificate, pool, err := pki.LoadFiles(s.KeyFile, s.CertFile, s.CAFile)
	if err != nil {
		return nil, fmt.Errorf("cannot load dtls credentials: %w", err)
	}
	return &piondtls.Config{
		Certificates:         []tls.Certificate{*certificate},
		ExtendedMasterSecret: piondtls.RequireExtendedMasterSecret,
		RootCAs:              pool,
		InsecureSkipVerify:   s.InsecureSkipVerify || pool == nil,
	}, nil
}
