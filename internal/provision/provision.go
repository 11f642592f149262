// Package provision retrieves the TLS identity used by install sessions and persists it locally.
package provision

import (
	"context"

	"github.com/apex/log"
	"github.com/blacktop/otad/internal/decode"
	"github.com/blacktop/otad/internal/metrics"
	"github.com/pkg/errors"
)

// DefaultURL is the provisioning endpoint
const DefaultURL = "https://backloop.dev/pack.json"

// Fetcher retrieves a raw response body
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config is the provisioner config
type Config struct {
	URL string
}

// Provisioner fetches a certificate pack and writes it to a Store
type Provisioner struct {
	fetcher Fetcher
	store   *Store
	url     string
}

// NewProvisioner creates a new Provisioner
func NewProvisioner(fetcher Fetcher, store *Store, conf *Config) *Provisioner {
	p := &Provisioner{
		fetcher: fetcher,
		store:   store,
		url:     DefaultURL,
	}
	if conf != nil && conf.URL != "" {
		p.url = conf.URL
	}
	return p
}

// Run provisions synchronously.
//
// The fallback files are written before any network I/O so the store is always
// complete, then replaced only if the pack is fetched, decoded and valid.
// The returned error is informational: the store is usable either way.
func (p *Provisioner) Run(ctx context.Context) (err error) {
	defer func() { metrics.RecordProvision(err) }()

	if err := p.store.WriteFallback(); err != nil {
		log.WithError(err).Error("failed to write fallback certificate files")
		return err
	}

	log.WithField("url", p.url).Debug("fetching certificate pack")
	data, err := p.fetcher.Fetch(ctx, p.url)
	if err != nil {
		log.WithError(err).Error("failed to fetch certificate pack")
		return err
	}

	pack, err := decode.ParseCertificatePack(data)
	if err != nil {
		return err
	}
	if err := pack.Validate(); err != nil {
		log.WithError(err).Error("certificate pack is invalid")
		return errors.Wrap(err, "provision: invalid certificate pack")
	}

	if err := p.store.Write(pack); err != nil {
		log.WithError(err).Error("failed to write certificate files")
		// a partial write may have replaced some of the files
		if ferr := p.store.WriteFallback(); ferr != nil {
			log.WithError(ferr).Error("failed to restore fallback certificate files")
		}
		return err
	}

	log.WithFields(log.Fields{
		"domain": pack.DomainCommonName,
		"issuer": pack.IssuerCommonName,
		"dir":    p.store.Dir(),
	}).Info("Provisioned server certificate")

	return nil
}

// Provision runs on its own goroutine and calls done exactly once when finished
func (p *Provisioner) Provision(ctx context.Context, done func(error)) {
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("provisioning panicked: %v", r)
				err = errors.Errorf("provision: panic: %v", r)
			}
			if done != nil {
				done(err)
			}
		}()
		err = p.Run(ctx)
	}()
}
