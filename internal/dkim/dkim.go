// Package dkim signs outgoing messages and manages DKIM keys.
package dkim

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/emersion/go-msgauth/dkim"

	"github.com/foxzi/clientdesk/internal/config"
)

// DefaultKeyBits is the RSA key size used by GenerateKey when bits is zero
const DefaultKeyBits = 2048

// signedHeaders are the headers covered by the signature
var signedHeaders = []string{
	"From", "Reply-To", "To", "Subject", "Date", "Message-ID",
	"MIME-Version", "Content-Type",
}

// Signer signs messages for one domain
type Signer struct {
	key      *rsa.PrivateKey
	domain   string
	selector string
}

// NewSigner creates a signer for domain and selector
func NewSigner(key *rsa.PrivateKey, domain, selector string) *Signer {
	return &Signer{key: key, domain: domain, selector: selector}
}

// FromConfig creates a signer from the smtp DKIM settings.
// It returns nil without error when signing is disabled.
func FromConfig(cfg config.DKIMConfig) (*Signer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	key, err := LoadPrivateKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load DKIM key: %w", err)
	}
	return NewSigner(key, cfg.Domain, cfg.Selector), nil
}

// Sign returns the message with a DKIM-Signature header prepended
func (s *Signer) Sign(message []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := s.SignTo(&out, bytes.NewReader(message)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// SignTo reads a message from r and writes the signed message to w
func (s *Signer) SignTo(w io.Writer, r io.Reader) error {
	options := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.selector,
		Signer:                 s.key,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
		HeaderKeys:             signedHeaders,
	}

	if err := dkim.Sign(w, r, options); err != nil {
		return fmt.Errorf("failed to sign message: %w", err)
	}
	return nil
}

// Domain returns the signing domain
func (s *Signer) Domain() string {
	return s.domain
}

// Selector returns the DKIM selector
func (s *Signer) Selector() string {
	return s.selector
}

// PublicKey returns the signer's public key
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// KeyPair returns the signing key with its DNS identity
func (s *Signer) KeyPair() *KeyPair {
	return &KeyPair{PrivateKey: s.key, Domain: s.domain, Selector: s.selector}
}

// KeyPair is a generated DKIM key with its DNS identity
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	Domain     string
	Selector   string
}

// GenerateKey creates a new RSA key pair
func GenerateKey(domain, selector string, bits int) (*KeyPair, error) {
	if domain == "" || selector == "" {
		return nil, errors.New("domain and selector are required")
	}
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if bits < 1024 {
		return nil, fmt.Errorf("key size %d is too small", bits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &KeyPair{PrivateKey: key, Domain: domain, Selector: selector}, nil
}

// WritePrivateKey encodes the private key as PKCS#1 PEM
func (kp *KeyPair) WritePrivateKey(w io.Writer) error {
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	}
	if err := pem.Encode(w, block); err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	return nil
}

// SavePrivateKey writes the private key to path with owner-only permissions
func (kp *KeyPair) SavePrivateKey(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer file.Close()

	return kp.WritePrivateKey(file)
}

// DNSName returns the name of the TXT record to publish
func (kp *KeyPair) DNSName() string {
	return fmt.Sprintf("%s._domainkey.%s", kp.Selector, kp.Domain)
}

// DNSRecord returns the TXT record value
func (kp *KeyPair) DNSRecord() (string, error) {
	pub, err := kp.PublicKeyBase64()
	if err != nil {
		return "", err
	}
	return "v=DKIM1; k=rsa; p=" + pub, nil
}

// PublicKeyBase64 returns the p= value of the TXT record
func (kp *KeyPair) PublicKeyBase64() (string, error) {
	pub, err := x509.MarshalPKIXPublicKey(&kp.PrivateKey.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

// LoadPrivateKey reads an RSA key in PKCS#1 or PKCS#8 PEM form
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes an RSA key from PEM data
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not RSA")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}
