package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/otad/internal/provision"
	"github.com/pkg/errors"
)

// wildcardLabel replaces the leading "*" of a wildcard common name
const wildcardLabel = "local"

// hostForCommonName turns a certificate common name into a host the certificate is valid for
func hostForCommonName(cn string) string {
	cn = strings.TrimSpace(cn)
	if rest, ok := strings.CutPrefix(cn, "*."); ok {
		return wildcardLabel + "." + rest
	}
	if cn == "" {
		return provision.PlaceholderCommonName
	}
	return cn
}

// newTLSConfig builds the session TLS config from the persisted certificate files.
//
// The empty fallback files left by a failed provisioning run yield an ephemeral
// self-signed certificate; the session starts but the device will not trust it.
func newTLSConfig(store *provision.Store) (*tls.Config, string, error) {
	if store == nil {
		return nil, "", errors.New("no certificate store configured")
	}
	cert, cn, err := store.Load()
	host := hostForCommonName(cn)
	switch {
	case errors.Is(err, provision.ErrNoCertificate):
		log.WithField("host", host).Warn("no provisioned certificate, serving a self-signed one (installs will not validate)")
		cert, err = selfSignedCertificate(host)
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to create self-signed certificate")
		}
	case err != nil:
		return nil, "", err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, host, nil
}

func selfSignedCertificate(host string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: host},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	if ip := net.ParseIP(host); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
	} else {
		tmpl.DNSNames = []string{host}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}, nil
}
