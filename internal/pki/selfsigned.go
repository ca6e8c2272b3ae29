// Package pki produces the self-signed certificate pair used when no TLS
// material is configured.
package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"grimm.is/converge/internal/brand"
	"grimm.is/converge/internal/clock"
)

const defaultValidity = 365 * 24 * time.Hour

// SelfSigned lazily generates one certificate and its key. Both halves come
// from the same generation so the cert and key files always match.
type SelfSigned struct {
	CommonName string
	DNSNames   []string
	Validity   time.Duration
	Clock      clock.Clock

	once sync.Once
	cert []byte
	key  []byte
	err  error
}

// NewSelfSigned returns a generator for hostname. An empty hostname uses
// "localhost".
func NewSelfSigned(hostname string, clk clock.Clock) *SelfSigned {
	if hostname == "" {
		hostname = "localhost"
	}
	return &SelfSigned{
		CommonName: hostname,
		DNSNames:   []string{hostname},
		Clock:      clk,
	}
}

// Cert returns the PEM encoded certificate.
func (s *SelfSigned) Cert() ([]byte, error) {
	s.once.Do(s.generate)
	return s.cert, s.err
}

// Key returns the PEM encoded RSA private key.
func (s *SelfSigned) Key() ([]byte, error) {
	s.once.Do(s.generate)
	return s.key, s.err
}

func (s *SelfSigned) generate() {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		s.err = fmt.Errorf("failed to generate private key: %w", err)
		return
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		s.err = fmt.Errorf("failed to generate serial: %w", err)
		return
	}

	validity := s.Validity
	if validity == 0 {
		validity = defaultValidity
	}
	now := clock.OrReal(s.Clock).Now()

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   s.CommonName,
			Organization: []string{brand.Name},
		},
		NotBefore: now,
		NotAfter:  now.Add(validity),

		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              s.DNSNames,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		s.err = fmt.Errorf("failed to create certificate: %w", err)
		return
	}

	s.cert = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	s.key = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
}

// ParseCertificate decodes the first PEM certificate in data.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no PEM certificate found")
	}
	return x509.ParseCertificate(block.Bytes)
}
