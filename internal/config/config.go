// Package config is used to load the configuration file
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/blacktop/otad/internal/fetch"
	"github.com/blacktop/otad/internal/provision"
	"github.com/blacktop/otad/internal/server"
	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/spf13/viper"
)

// ByteSize is a size in bytes that can be written as "128 MiB" or "1GB"
type ByteSize int64

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// MarshalYAML implements yaml.Marshaler
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

// JSONSchema accepts a byte count or a human readable size
func (ByteSize) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer", Minimum: json.Number("0")},
			{Type: "string", Examples: []any{"128 MiB", "1GB"}},
		},
	}
}

// Schema returns the JSON schema of the configuration file
func Schema() *jsonschema.Schema {
	schema := jsonschema.Reflect(&Config{})
	schema.Description = "otad configuration file"
	return schema
}

// byteSizeHook decodes human readable sizes into ByteSize
func byteSizeHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeFor[ByteSize]() || f.Kind() != reflect.String {
			return data, nil
		}
		size, err := humanize.ParseBytes(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %v", data, err)
		}
		return ByteSize(size), nil
	}
}

type serverConf struct {
	UseProvisionedTLS bool     `json:"use_provisioned_tls" mapstructure:"use_provisioned_tls" yaml:"use_provisioned_tls"`
	CustomServer      bool     `json:"custom_server" mapstructure:"custom_server" yaml:"custom_server"`
	BasePath          string   `json:"base_path" mapstructure:"base_path" yaml:"base_path"`
	Host              string   `json:"host" mapstructure:"host" yaml:"host"`
	PortMin           int      `json:"port_min" mapstructure:"port_min" yaml:"port_min"`
	PortMax           int      `json:"port_max" mapstructure:"port_max" yaml:"port_max"`
	MaxBodySize       ByteSize `json:"max_body_size" mapstructure:"max_body_size" yaml:"max_body_size"`
	Workers           int      `json:"workers" mapstructure:"workers" yaml:"workers"`
	RateLimit         float64  `json:"rate_limit" mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst         int      `json:"rate_burst" mapstructure:"rate_burst" yaml:"rate_burst"`
	Debug             bool     `json:"debug" mapstructure:"debug" yaml:"debug"`
}

type provisionConf struct {
	URL      string        `json:"url" mapstructure:"url" yaml:"url"`
	Dir      string        `json:"dir" mapstructure:"dir" yaml:"dir"`
	Proxy    string        `json:"proxy" mapstructure:"proxy" yaml:"proxy"`
	Insecure bool          `json:"insecure" mapstructure:"insecure" yaml:"insecure"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

// Config is the configuration struct
type Config struct {
	Server    serverConf    `json:"server" mapstructure:"server" yaml:"server"`
	Provision provisionConf `json:"provision" mapstructure:"provision" yaml:"provision"`
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %v", err)
	}
	return filepath.Join(home, ".config", "otad"), nil
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.use_provisioned_tls", true)
	v.SetDefault("server.custom_server", false)
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.host", server.DefaultHost)
	v.SetDefault("server.port_min", server.DefaultPortMin)
	v.SetDefault("server.port_max", server.DefaultPortMax)
	v.SetDefault("server.max_body_size", ByteSize(server.MinBodySize).String())
	v.SetDefault("server.workers", server.DefaultWorkers)
	v.SetDefault("server.rate_limit", server.DefaultRateLimit)
	v.SetDefault("server.rate_burst", server.DefaultRateBurst)
	v.SetDefault("server.debug", false)
	v.SetDefault("provision.url", provision.DefaultURL)
	v.SetDefault("provision.dir", "")
	v.SetDefault("provision.proxy", "")
	v.SetDefault("provision.insecure", false)
	v.SetDefault("provision.timeout", 30*time.Second)
}

func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

func (c *Config) verify() error {
	if c.Server.BasePath == "" || c.Provision.Dir == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		if c.Server.BasePath == "" {
			c.Server.BasePath = filepath.Join(dir, "apps")
		}
		if c.Provision.Dir == "" {
			c.Provision.Dir = filepath.Join(dir, "certs")
		}
	}
	c.Server.BasePath = expandPath(c.Server.BasePath)
	c.Provision.Dir = expandPath(c.Provision.Dir)

	if c.Server.PortMin == 0 && c.Server.PortMax == 0 {
		c.Server.PortMin, c.Server.PortMax = server.DefaultPortMin, server.DefaultPortMax
	} else if c.Server.PortMin <= 0 || c.Server.PortMax > 65535 || c.Server.PortMin > c.Server.PortMax {
		return fmt.Errorf("config: invalid port range %d-%d", c.Server.PortMin, c.Server.PortMax)
	}

	if int64(c.Server.MaxBodySize) < server.MinBodySize {
		c.Server.MaxBodySize = ByteSize(server.MinBodySize)
	}

	if c.Server.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	if c.Provision.URL == "" {
		c.Provision.URL = provision.DefaultURL
	}
	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load unmarshals and verifies the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var c *Config

	if err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		byteSizeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}

// ServerConfig returns the install server config
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		UseProvisionedTLS: c.Server.UseProvisionedTLS,
		CustomServer:      c.Server.CustomServer,
		BasePath:          c.Server.BasePath,
		Host:              c.Server.Host,
		PortMin:           c.Server.PortMin,
		PortMax:           c.Server.PortMax,
		MaxBodySize:       int64(c.Server.MaxBodySize),
		Workers:           c.Server.Workers,
		RateLimit:         c.Server.RateLimit,
		RateBurst:         c.Server.RateBurst,
	}
}

// FetchConfig returns the remote fetcher config
func (c *Config) FetchConfig() *fetch.Config {
	return &fetch.Config{
		Proxy:    c.Provision.Proxy,
		Insecure: c.Provision.Insecure,
		Timeout:  c.Provision.Timeout,
	}
}

// ProvisionConfig returns the provisioner config
func (c *Config) ProvisionConfig() *provision.Config {
	return &provision.Config{URL: c.Provision.URL}
}

// Store returns the certificate store
func (c *Config) Store() *provision.Store {
	return provision.NewStore(c.Provision.Dir)
}
