// Package tls provides HTTPS certificates for the API server, either from
// PEM files or from Let's Encrypt through autocert.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/foxzi/clientdesk/internal/config"
)

// CertificateInfo describes a loaded certificate
type CertificateInfo struct {
	Subject  string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
	DNSNames []string
}

// Setup returns the server TLS configuration for cfg. The ACME manager is
// non-nil when certificates come from Let's Encrypt; its challenge handler
// must be reachable over plain HTTP.
func Setup(cfg config.TLSConfig, logger *slog.Logger) (*tls.Config, *ACMEManager, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	if cfg.ACME.Enabled {
		m := NewACMEManager(cfg.ACME)
		logger.Info("ACME (Let's Encrypt) enabled", "domains", cfg.ACME.Domains)
		return m.TLSConfig(), m, nil
	}

	tlsConfig, err := LoadCertificate(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, nil, err
	}

	info, err := Inspect(tlsConfig)
	if err == nil {
		logger.Info("TLS enabled with manual certificate", "subject", info.Subject, "days_left", info.DaysLeft)
		if info.DaysLeft < 14 {
			logger.Warn("TLS certificate expires soon", "not_after", info.NotAfter)
		}
	}
	return tlsConfig, nil, nil
}

// LoadCertificate loads a certificate and key from PEM files
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Inspect reports the leaf of the first static certificate in cfg
func Inspect(cfg *tls.Config) (*CertificateInfo, error) {
	if cfg == nil || len(cfg.Certificates) == 0 || len(cfg.Certificates[0].Certificate) == 0 {
		return nil, errors.New("no static certificate configured")
	}

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &CertificateInfo{
		Subject:  leaf.Subject.CommonName,
		Issuer:   leaf.Issuer.CommonName,
		NotAfter: leaf.NotAfter,
		DaysLeft: int(time.Until(leaf.NotAfter).Hours() / 24),
		DNSNames: leaf.DNSNames,
	}, nil
}

// ACMEManager obtains and renews certificates from Let's Encrypt
type ACMEManager struct {
	manager  *autocert.Manager
	domains  []string
	httpAddr string
}

// NewACMEManager creates an autocert manager limited to the configured domains
func NewACMEManager(cfg config.ACMEConfig) *ACMEManager {
	return &ACMEManager{
		manager: &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      cfg.Email,
			HostPolicy: autocert.HostWhitelist(cfg.Domains...),
			Cache:      autocert.DirCache(cfg.CacheDir),
		},
		domains:  cfg.Domains,
		httpAddr: cfg.HTTPAddr,
	}
}

// Domains returns the configured domains
func (a *ACMEManager) Domains() []string {
	return a.domains
}

// TLSConfig returns a server configuration fetching certificates on demand
func (a *ACMEManager) TLSConfig() *tls.Config {
	cfg := a.manager.TLSConfig()
	cfg.MinVersion = tls.VersionTLS12
	return cfg
}

// ChallengeServer returns the plain HTTP server answering HTTP-01
// challenges. Other requests are redirected to HTTPS.
func (a *ACMEManager) ChallengeServer() *http.Server {
	return &http.Server{
		Addr:              a.httpAddr,
		Handler:           a.manager.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
