package server

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigVerify(t *testing.T) {
	conf := &Config{MaxBodySize: 1 << 10}
	require.NoError(t, conf.verify())
	assert.Equal(t, DefaultPortMin, conf.PortMin)
	assert.Equal(t, DefaultPortMax, conf.PortMax)
	assert.Equal(t, MinBodySize, conf.MaxBodySize)
	assert.Equal(t, DefaultWorkers, conf.Workers)
	assert.Equal(t, DefaultHost, conf.Host)
	assert.NotEmpty(t, conf.BasePath)

	for _, bad := range []*Config{
		{PortMin: 9000, PortMax: 8000},
		{PortMin: -1, PortMax: 8000},
		{PortMin: 4000, PortMax: 70000},
	} {
		assert.Error(t, bad.verify())
	}
}

func TestRandomPort(t *testing.T) {
	conf := DefaultConfig()
	for range 1000 {
		p := conf.randomPort()
		assert.GreaterOrEqual(t, p, DefaultPortMin)
		assert.LessOrEqual(t, p, DefaultPortMax)
	}
	conf.PortMin, conf.PortMax = 5555, 5555
	assert.Equal(t, 5555, conf.randomPort())
}

func TestResolvePackagePath(t *testing.T) {
	conf := &Config{BasePath: "/srv/apps"}
	assert.Equal(t, filepath.Join("/srv/apps", "a.ipa"), conf.resolvePackagePath("a.ipa"))
	assert.Equal(t, "/tmp/b.ipa", conf.resolvePackagePath("/tmp/b.ipa"))
	assert.Equal(t, "", conf.resolvePackagePath(""))
}

func TestTLSEnabled(t *testing.T) {
	assert.True(t, (&Config{UseProvisionedTLS: true}).TLSEnabled())
	assert.False(t, (&Config{UseProvisionedTLS: true, CustomServer: true}).TLSEnabled())
	assert.False(t, (&Config{}).TLSEnabled())
}

func TestHostForCommonName(t *testing.T) {
	tests := map[string]string{
		"*.backloop.dev":   "local.backloop.dev",
		"ota.example.test": "ota.example.test",
		" ":                "localhost",
		"":                 "localhost",
	}
	for cn, want := range tests {
		assert.Equal(t, want, hostForCommonName(cn), cn)
	}
}

func TestSelfSignedCertificate(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1"} {
		cert, err := selfSignedCertificate(host)
		require.NoError(t, err)
		require.Len(t, cert.Certificate, 1)
		assert.NotNil(t, cert.PrivateKey)
	}
}
