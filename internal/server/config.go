package server

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
)

const (
	// DefaultPortMin is the low end of the random port range
	DefaultPortMin = 4000
	// DefaultPortMax is the high end of the random port range
	DefaultPortMax = 8000
	// MinBodySize is the smallest accepted body limit; IPAs are routinely this large
	MinBodySize int64 = 128 << 20
	// DefaultWorkers bounds the number of requests handled at once
	DefaultWorkers = 4
	// DefaultHost is the URL host used when TLS is not configured
	DefaultHost = "localhost"
	// DefaultRateLimit is the per-client request rate, in requests per second
	DefaultRateLimit = 20
	// DefaultRateBurst is the per-client request burst
	DefaultRateBurst = 40
)

// Config is the install server config
type Config struct {
	// UseProvisionedTLS serves HTTPS with the certificate from the provisioning store
	UseProvisionedTLS bool
	// CustomServer disables the built-in TLS identity; the caller fronts the session itself
	CustomServer bool
	// BasePath is where relative package paths are resolved
	BasePath string
	// Host is the URL host used in manifests when TLS is not configured
	Host    string
	PortMin int
	PortMax int
	// MaxBodySize is the per-request body limit
	MaxBodySize int64
	// Workers is the number of requests handled concurrently
	Workers int
	// RateLimit is the per-client requests per second; zero disables limiting
	RateLimit float64
	RateBurst int
}

// DefaultConfig returns the documented defaults
func DefaultConfig() *Config {
	return &Config{
		UseProvisionedTLS: true,
		BasePath:          defaultBasePath(),
		Host:              DefaultHost,
		PortMin:           DefaultPortMin,
		PortMax:           DefaultPortMax,
		MaxBodySize:       MinBodySize,
		Workers:           DefaultWorkers,
		RateLimit:         DefaultRateLimit,
		RateBurst:         DefaultRateBurst,
	}
}

func defaultBasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "otad", "apps")
	}
	return filepath.Join(home, ".config", "otad", "apps")
}

// TLSEnabled reports whether sessions are served over HTTPS
func (c *Config) TLSEnabled() bool {
	return c.UseProvisionedTLS && !c.CustomServer
}

func (c *Config) verify() error {
	if c.PortMin == 0 && c.PortMax == 0 {
		c.PortMin, c.PortMax = DefaultPortMin, DefaultPortMax
	}
	if c.PortMin <= 0 || c.PortMax > 65535 || c.PortMin > c.PortMax {
		return fmt.Errorf("config: invalid port range %d-%d", c.PortMin, c.PortMax)
	}
	if c.MaxBodySize < MinBodySize {
		c.MaxBodySize = MinBodySize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: invalid rate limit %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.BasePath == "" {
		c.BasePath = defaultBasePath()
	}
	return nil
}

func (c *Config) randomPort() int {
	return c.PortMin + rand.IntN(c.PortMax-c.PortMin+1)
}

func (c *Config) resolvePackagePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.BasePath, path)
}
