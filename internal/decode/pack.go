package decode

import (
	"bytes"
	_ "embed"
	"encoding/pem"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"
)

//go:embed schema/pack.schema.json
var packSchemaJSON string

var (
	packSchemaOnce sync.Once
	packSchema     *jsonschema.Schema
	packSchemaErr  error
)

// CertificatePack is the TLS identity returned by the provisioning endpoint
type CertificatePack struct {
	Cert             string `json:"cert"`
	CA               string `json:"ca,omitempty"`
	Key              string `json:"-"`
	IssuerCommonName string `json:"-"`
	DomainCommonName string `json:"-"`
}

// Chain returns the server certificate followed by the CA certificate
func (p *CertificatePack) Chain() string {
	if p.CA == "" {
		return p.Cert
	}
	chain := p.Cert
	if !strings.HasSuffix(chain, "\n") {
		chain += "\n"
	}
	return chain + p.CA
}

// Validate checks that the certificate and the reassembled key are well formed PEM
func (p *CertificatePack) Validate() error {
	block, _ := pem.Decode([]byte(p.Cert))
	if block == nil || block.Type != "CERTIFICATE" {
		return errors.New("certificate is not a PEM encoded CERTIFICATE block")
	}
	block, rest := pem.Decode([]byte(p.Key))
	if block == nil || !strings.HasSuffix(block.Type, "PRIVATE KEY") {
		return errors.New("key halves do not form a PEM encoded PRIVATE KEY block")
	}
	if len(bytes.TrimSpace(rest)) > 0 {
		return errors.New("unexpected trailing data after PRIVATE KEY block")
	}
	return nil
}

func compiledPackSchema() (*jsonschema.Schema, error) {
	packSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(packSchemaJSON))
		if err != nil {
			packSchemaErr = errors.Wrap(err, "failed to parse pack schema")
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("pack.schema.json", doc); err != nil {
			packSchemaErr = errors.Wrap(err, "failed to add pack schema")
			return
		}
		packSchema, packSchemaErr = c.Compile("pack.schema.json")
	})
	return packSchema, packSchemaErr
}

// ParseCertificatePack decodes a provisioning response.
//
// The private key travels as two fragments, key1 and key2, that are joined in
// that order; decoding fails if either one is missing.
func ParseCertificatePack(data []byte) (*CertificatePack, error) {
	if !gjson.ValidBytes(data) {
		return nil, newDecodeError(SchemaCertificatePack, errors.New("invalid JSON"))
	}

	sch, err := compiledPackSchema()
	if err != nil {
		return nil, newDecodeError(SchemaCertificatePack, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, newDecodeError(SchemaCertificatePack, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, newDecodeError(SchemaCertificatePack, err)
	}

	var pack CertificatePack
	if err := unmarshal(SchemaCertificatePack, data, &pack); err != nil {
		return nil, err
	}

	key1 := gjson.GetBytes(data, "key1")
	key2 := gjson.GetBytes(data, "key2")
	if key1.String() == "" || key2.String() == "" {
		return nil, newDecodeError(SchemaCertificatePack, errors.New("missing private key fragment"))
	}
	pack.Key = key1.String() + key2.String()

	pack.IssuerCommonName = gjson.GetBytes(data, "info.issuer.commonName").String()
	pack.DomainCommonName = gjson.GetBytes(data, "info.domains.commonName").String()

	return &pack, nil
}
