package provision

import (
	"bytes"
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"

	"github.com/blacktop/otad/internal/decode"
	"github.com/blacktop/otad/internal/utils"
	"github.com/pkg/errors"
)

const (
	// CertFileName holds the server certificate chain
	CertFileName = "server.crt"
	// KeyFileName holds the server private key
	KeyFileName = "server.pem"
	// CommonNameFileName holds the domain the certificate was issued for
	CommonNameFileName = "commonName.txt"
	// PlaceholderCommonName is written when no real certificate is available
	PlaceholderCommonName = "localhost"
)

// ErrNoCertificate is returned by Load when the store only holds the fallback files
var ErrNoCertificate = errors.New("provision: no certificate has been provisioned")

// Paths are the locations of the persisted certificate files
type Paths struct {
	Cert       string
	Key        string
	CommonName string
}

// Store persists the TLS identity as three flat files in one directory.
// Every write replaces the file atomically.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory
func (s *Store) Dir() string {
	return s.dir
}

// Paths returns the file locations
func (s *Store) Paths() Paths {
	return Paths{
		Cert:       filepath.Join(s.dir, CertFileName),
		Key:        filepath.Join(s.dir, KeyFileName),
		CommonName: filepath.Join(s.dir, CommonNameFileName),
	}
}

// WriteFallback writes an empty certificate, an empty key and the placeholder common name
func (s *Store) WriteFallback() error {
	return s.write(nil, nil, []byte(PlaceholderCommonName))
}

// Write replaces the stored identity with the pack's certificate chain, key and domain
func (s *Store) Write(pack *decode.CertificatePack) error {
	if pack == nil {
		return errors.New("provision: nil certificate pack")
	}
	return s.write([]byte(pack.Chain()), []byte(pack.Key), []byte(pack.DomainCommonName))
}

func (s *Store) write(cert, key, commonName []byte) error {
	p := s.Paths()
	if err := utils.WriteFileAtomic(p.Cert, cert, 0o644); err != nil {
		return errors.Wrap(err, "provision: failed to write certificate")
	}
	if err := utils.WriteFileAtomic(p.Key, key, 0o600); err != nil {
		return errors.Wrap(err, "provision: failed to write key")
	}
	if err := utils.WriteFileAtomic(p.CommonName, commonName, 0o644); err != nil {
		return errors.Wrap(err, "provision: failed to write common name")
	}
	return nil
}

// CommonName returns the stored domain name, or the placeholder if none is stored
func (s *Store) CommonName() string {
	data, err := os.ReadFile(s.Paths().CommonName)
	if err != nil {
		return PlaceholderCommonName
	}
	if cn := strings.TrimSpace(string(data)); cn != "" {
		return cn
	}
	return PlaceholderCommonName
}

// Load reads the stored key pair.
//
// ErrNoCertificate is returned when both the certificate and key files are
// empty or absent, which is the state left behind by a failed provisioning run.
func (s *Store) Load() (tls.Certificate, string, error) {
	p := s.Paths()
	certPEM, err := readOptional(p.Cert)
	if err != nil {
		return tls.Certificate{}, "", errors.Wrap(err, "provision: failed to read certificate")
	}
	keyPEM, err := readOptional(p.Key)
	if err != nil {
		return tls.Certificate{}, "", errors.Wrap(err, "provision: failed to read key")
	}
	cn := s.CommonName()
	if len(bytes.TrimSpace(certPEM)) == 0 && len(bytes.TrimSpace(keyPEM)) == 0 {
		return tls.Certificate{}, cn, ErrNoCertificate
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, cn, errors.Wrap(err, "provision: invalid key pair")
	}
	return cert, cn, nil
}

func readOptional(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}
