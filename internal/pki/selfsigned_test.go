package pki

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/converge/internal/clock"
)

func TestSelfSigned(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSelfSigned("dash.example.com", clock.NewMockClock(now))

	certPEM, err := s.Cert()
	require.NoError(t, err)
	keyPEM, err := s.Key()
	require.NoError(t, err)

	cert, err := ParseCertificate(certPEM)
	require.NoError(t, err)
	assert.Equal(t, "dash.example.com", cert.Subject.CommonName)
	assert.Equal(t, []string{"dash.example.com"}, cert.DNSNames)
	assert.True(t, cert.NotBefore.Equal(now))
	assert.True(t, cert.NotAfter.Equal(now.Add(365*24*time.Hour)))

	_, err = tls.X509KeyPair(certPEM, keyPEM)
	assert.NoError(t, err, "cert and key must match")
}

func TestSelfSigned_GeneratesOnce(t *testing.T) {
	s := NewSelfSigned("", nil)
	a, err := s.Cert()
	require.NoError(t, err)
	b, err := s.Cert()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "localhost", s.CommonName)
}

func TestParseCertificate_Invalid(t *testing.T) {
	_, err := ParseCertificate([]byte("not pem"))
	assert.Error(t, err)
}
