package tls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/clientdesk/internal/config"
)

// writeTestCertificate creates a self-signed certificate and key valid for the given duration
func writeTestCertificate(t *testing.T, valid time.Duration) (certFile, keyFile string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "desk.studio.test"},
		Issuer:                pkix.Name{CommonName: "desk.studio.test"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(valid),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"desk.studio.test"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0600))
	return certFile, keyFile
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadCertificate(t *testing.T) {
	certFile, keyFile := writeTestCertificate(t, 30*24*time.Hour)

	t.Run("valid certificate", func(t *testing.T) {
		cfg, err := LoadCertificate(certFile, keyFile)
		require.NoError(t, err)
		require.Len(t, cfg.Certificates, 1)
		assert.Equal(t, uint16(0x0303), cfg.MinVersion)
	})

	t.Run("missing files", func(t *testing.T) {
		_, err := LoadCertificate("/nonexistent/cert.pem", "/nonexistent/key.pem")
		assert.Error(t, err)
	})

	t.Run("invalid certificate", func(t *testing.T) {
		invalid := filepath.Join(t.TempDir(), "invalid.pem")
		require.NoError(t, os.WriteFile(invalid, []byte("invalid"), 0644))
		_, err := LoadCertificate(invalid, keyFile)
		assert.Error(t, err)
	})
}

func TestInspect(t *testing.T) {
	certFile, keyFile := writeTestCertificate(t, 10*24*time.Hour+time.Hour)
	cfg, err := LoadCertificate(certFile, keyFile)
	require.NoError(t, err)

	info, err := Inspect(cfg)
	require.NoError(t, err)
	assert.Equal(t, "desk.studio.test", info.Subject)
	assert.Equal(t, []string{"desk.studio.test"}, info.DNSNames)
	assert.Equal(t, 10, info.DaysLeft)

	_, err = Inspect(nil)
	assert.Error(t, err)
}

func TestSetup(t *testing.T) {
	certFile, keyFile := writeTestCertificate(t, 30*24*time.Hour)

	t.Run("disabled", func(t *testing.T) {
		tlsConfig, acme, err := Setup(config.TLSConfig{}, discardLogger())
		require.NoError(t, err)
		assert.Nil(t, tlsConfig)
		assert.Nil(t, acme)
	})

	t.Run("files", func(t *testing.T) {
		tlsConfig, acme, err := Setup(config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}, discardLogger())
		require.NoError(t, err)
		assert.NotNil(t, tlsConfig)
		assert.Nil(t, acme)
	})

	t.Run("bad files", func(t *testing.T) {
		_, _, err := Setup(config.TLSConfig{Enabled: true, CertFile: "/nope", KeyFile: "/nope"}, discardLogger())
		assert.Error(t, err)
	})

	t.Run("acme", func(t *testing.T) {
		cfg := config.TLSConfig{
			Enabled: true,
			ACME: config.ACMEConfig{
				Enabled:  true,
				Email:    "ops@studio.test",
				Domains:  []string{"desk.studio.test"},
				CacheDir: t.TempDir(),
				HTTPAddr: ":8081",
			},
		}
		tlsConfig, acme, err := Setup(cfg, discardLogger())
		require.NoError(t, err)
		require.NotNil(t, acme)
		assert.NotNil(t, tlsConfig.GetCertificate)
		assert.Equal(t, []string{"desk.studio.test"}, acme.Domains())
		assert.Equal(t, ":8081", acme.ChallengeServer().Addr)
	})
}

func TestChallengeServerRedirects(t *testing.T) {
	m := NewACMEManager(config.ACMEConfig{
		Email:    "ops@studio.test",
		Domains:  []string{"desk.studio.test"},
		CacheDir: t.TempDir(),
		HTTPAddr: ":80",
	})

	req := httptest.NewRequest(http.MethodGet, "http://desk.studio.test/api/v1/me?x=1", nil)
	rec := httptest.NewRecorder()
	m.ChallengeServer().Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://desk.studio.test/api/v1/me?x=1", rec.Header().Get("Location"))
}
