package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blacktop/otad/internal/provision"
	"github.com/blacktop/otad/internal/server"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func load(t *testing.T, yml string) (*Config, error) {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yml)))
	return Load(v)
}

func TestDefaults(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	c, err := load(t, "")
	require.NoError(t, err)

	sc := c.ServerConfig()
	assert.True(t, sc.UseProvisionedTLS)
	assert.False(t, sc.CustomServer)
	assert.Equal(t, server.DefaultPortMin, sc.PortMin)
	assert.Equal(t, server.DefaultPortMax, sc.PortMax)
	assert.Equal(t, server.MinBodySize, sc.MaxBodySize)
	assert.Equal(t, server.DefaultWorkers, sc.Workers)
	assert.Equal(t, server.DefaultHost, sc.Host)
	assert.Equal(t, float64(server.DefaultRateLimit), sc.RateLimit)
	assert.Equal(t, server.DefaultRateBurst, sc.RateBurst)
	assert.Equal(t, filepath.Join("/home/tester", ".config", "otad", "apps"), sc.BasePath)

	assert.Equal(t, provision.DefaultURL, c.ProvisionConfig().URL)
	assert.Equal(t, filepath.Join("/home/tester", ".config", "otad", "certs"), c.Store().Dir())
	assert.Equal(t, 30*time.Second, c.FetchConfig().Timeout)
}

func TestLoad(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	c, err := load(t, `
server:
  use_provisioned_tls: false
  custom_server: true
  base_path: ~/apps
  host: 192.168.1.20
  port_min: 5000
  port_max: 5010
  max_body_size: 1 GiB
  workers: 8
  rate_limit: 0
provision:
  url: https://certs.example.test/pack.json
  dir: /var/lib/otad/certs
  proxy: http://proxy.example.test:3128
  insecure: true
  timeout: 5s
`)
	require.NoError(t, err)

	sc := c.ServerConfig()
	assert.False(t, sc.UseProvisionedTLS)
	assert.True(t, sc.CustomServer)
	assert.Equal(t, "/home/tester/apps", sc.BasePath)
	assert.Equal(t, "192.168.1.20", sc.Host)
	assert.Equal(t, 5000, sc.PortMin)
	assert.Equal(t, 5010, sc.PortMax)
	assert.Equal(t, int64(1<<30), sc.MaxBodySize)
	assert.Equal(t, 8, sc.Workers)
	assert.Zero(t, sc.RateLimit)

	fc := c.FetchConfig()
	assert.Equal(t, "http://proxy.example.test:3128", fc.Proxy)
	assert.True(t, fc.Insecure)
	assert.Equal(t, 5*time.Second, fc.Timeout)
	assert.Equal(t, "https://certs.example.test/pack.json", c.ProvisionConfig().URL)
	assert.Equal(t, "/var/lib/otad/certs", c.Store().Dir())
}

func TestBodySizeFloor(t *testing.T) {
	c, err := load(t, "server:\n  max_body_size: 1 MB\n")
	require.NoError(t, err)
	assert.Equal(t, server.MinBodySize, c.ServerConfig().MaxBodySize)
}

func TestVerifyErrors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{name: "inverted ports", yml: "server:\n  port_min: 8000\n  port_max: 4000\n"},
		{name: "port too large", yml: "server:\n  port_min: 4000\n  port_max: 70000\n"},
		{name: "bad body size", yml: "server:\n  max_body_size: lots\n"},
		{name: "negative workers", yml: "server:\n  workers: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.yml)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("OTAD_SERVER_WORKERS", "6")
	t.Setenv("OTAD_PROVISION_PROXY", "http://env-proxy:8080")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("otad")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 6, c.ServerConfig().Workers)
	assert.Equal(t, "http://env-proxy:8080", c.FetchConfig().Proxy)
}

func TestByteSize(t *testing.T) {
	assert.Equal(t, "128 MiB", ByteSize(server.MinBodySize).String())

	c, err := load(t, "server:\n  max_body_size: 268435456\n")
	require.NoError(t, err)
	assert.Equal(t, int64(256<<20), c.ServerConfig().MaxBodySize)
}

func TestMarshalYAML(t *testing.T) {
	c, err := load(t, "")
	require.NoError(t, err)
	out, err := yaml.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(out), "max_body_size: 128 MiB")
	assert.Contains(t, string(out), "url: "+provision.DefaultURL)
}

func TestSchema(t *testing.T) {
	data, err := json.Marshal(Schema())
	require.NoError(t, err)
	for _, key := range []string{"use_provisioned_tls", "max_body_size", "rate_limit", "provision", "timeout"} {
		assert.Contains(t, string(data), `"`+key+`"`)
	}
	assert.Contains(t, string(data), "128 MiB")
}
