package decode

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packJSON(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	pack := map[string]any{
		"cert": "cert",
		"ca":   "ca",
		"key1": "AAA",
		"key2": "BBB",
		"info": map[string]any{
			"issuer":  map[string]any{"commonName": "Test Issuer"},
			"domains": map[string]any{"commonName": "*.backloop.dev"},
		},
	}
	for k, v := range fields {
		if v == nil {
			delete(pack, k)
			continue
		}
		pack[k] = v
	}
	data, err := json.Marshal(pack)
	require.NoError(t, err)
	return data
}

func testKeyPair(t *testing.T) (certPEM, keyPEM string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "local.backloop.dev"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	kder, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: kder}))
	return certPEM, keyPEM
}

func TestParseCertificatePack(t *testing.T) {
	pack, err := ParseCertificatePack(packJSON(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "AAABBB", pack.Key)
	assert.Equal(t, "cert", pack.Cert)
	assert.Equal(t, "ca", pack.CA)
	assert.Equal(t, "Test Issuer", pack.IssuerCommonName)
	assert.Equal(t, "*.backloop.dev", pack.DomainCommonName)
	assert.Equal(t, "cert\nca", pack.Chain())
}

func TestParseCertificatePackErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("<html>")},
		{name: "missing key1", data: packJSON(t, map[string]any{"key1": nil})},
		{name: "missing key2", data: packJSON(t, map[string]any{"key2": nil})},
		{name: "empty key2", data: packJSON(t, map[string]any{"key2": ""})},
		{name: "key is not a string", data: packJSON(t, map[string]any{"key1": 42})},
		{name: "missing domain", data: packJSON(t, map[string]any{"info": map[string]any{}})},
		{name: "missing cert", data: packJSON(t, map[string]any{"cert": nil})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pack, err := ParseCertificatePack(tt.data)
			assert.Nil(t, pack)
			var derr *DecodeError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, SchemaCertificatePack, derr.Schema)
			assert.NotContains(t, err.Error(), "AAA")
		})
	}
}

func TestCertificatePackKeyOrder(t *testing.T) {
	certPEM, keyPEM := testKeyPair(t)
	mid := len(keyPEM) / 2
	key1, key2 := keyPEM[:mid], keyPEM[mid:]

	pack, err := ParseCertificatePack(packJSON(t, map[string]any{
		"cert": certPEM,
		"key1": key1,
		"key2": key2,
	}))
	require.NoError(t, err)
	assert.Equal(t, keyPEM, pack.Key)
	assert.NoError(t, pack.Validate())

	swapped, err := ParseCertificatePack(packJSON(t, map[string]any{
		"cert": certPEM,
		"key1": key2,
		"key2": key1,
	}))
	require.NoError(t, err)
	assert.Equal(t, key2+key1, swapped.Key)
	assert.Error(t, swapped.Validate(), "swapped key halves must not form a valid PEM block")
}

func TestParseSourceCatalog(t *testing.T) {
	data := []byte(`{
		"name": "Example Source",
		"identifier": "dev.example.source",
		"apps": [{
			"name": "Example",
			"bundleIdentifier": "dev.example.app",
			"developerName": "Example Dev",
			"version": "1.0",
			"versionDate": "2024-02-01",
			"downloadURL": "https://example.dev/1.0.ipa",
			"size": 1024,
			"versions": [
				{"version": "1.2.0", "date": "2024-05-01T10:00:00Z", "downloadURL": "https://example.dev/1.2.0.ipa"},
				{"version": "1.10.0", "date": "2024-06-01T10:00:00+02:00", "downloadURL": "https://example.dev/1.10.0.ipa"},
				{"version": "nightly", "date": "2024-07-01", "downloadURL": "https://example.dev/nightly.ipa"}
			]
		}],
		"news": [{"title": "Hello", "identifier": "hello", "date": "2024-01-01T00:00:00Z"}]
	}`)

	src, err := ParseSourceCatalog(data)
	require.NoError(t, err)
	require.Len(t, src.Apps, 1)
	assert.Equal(t, "Example Source", src.Name)
	assert.Equal(t, 2024, src.Apps[0].VersionDate.Year())
	assert.Equal(t, time.February, src.Apps[0].VersionDate.Month())
	require.Len(t, src.News, 1)

	latest, ok := src.Apps[0].Latest()
	require.True(t, ok)
	assert.Equal(t, "1.10.0", latest.Version)
}

func TestSourceAppLatestLegacy(t *testing.T) {
	app := SourceApp{Version: "2.0", DownloadURL: "https://example.dev/2.0.ipa"}
	latest, ok := app.Latest()
	require.True(t, ok)
	assert.Equal(t, "2.0", latest.Version)

	_, ok = SourceApp{}.Latest()
	assert.False(t, ok)
}

func TestParseSourceCatalogBadDate(t *testing.T) {
	_, err := ParseSourceCatalog([]byte(`{"name":"x","apps":[{"name":"a","versionDate":"yesterday"}]}`))
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, SchemaSourceCatalog, derr.Schema)
}

func TestParseCredits(t *testing.T) {
	credits, err := ParseCredits([]byte(`[{"name":"a","github":"a-gh","desc":"dev"},{"name":"b"}]`))
	require.NoError(t, err)
	require.Len(t, credits, 2)
	assert.Equal(t, "a-gh", credits[0].GitHub)

	_, err = ParseCredits([]byte(`{"name":"not a list"}`))
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, SchemaCredits, derr.Schema)
	assert.True(t, strings.Contains(err.Error(), "credits"))
}

func TestDateRoundTrip(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-04T05:06:07Z"`), &d))
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-04T05:06:07Z"`, string(b))

	var zero Date
	require.NoError(t, json.Unmarshal([]byte(`null`), &zero))
	assert.True(t, zero.IsZero())
}
