// Package fetch is a small HTTPS GET client that returns raw response bodies.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/otad/internal/utils"
	"github.com/pkg/errors"
	"golang.org/x/net/http/httpproxy"
)

// maxLoggedBody caps how much of an error response body is logged
const maxLoggedBody = 4096

// TransportError is returned when the request never produced an HTTP response
// (DNS, TLS handshake, connection reset, ...)
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch: GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is returned for responses outside of [200,299]
type HTTPError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch: GET %s: %d %s", e.URL, e.StatusCode, e.Reason)
}

// DataError is returned when a successful response has an empty body
type DataError struct {
	URL string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("fetch: GET %s: empty response body", e.URL)
}

// Config is the fetcher config
type Config struct {
	Proxy    string
	Insecure bool
	Timeout  time.Duration
}

// Fetcher issues single GET requests. It is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a new Fetcher
func New(conf *Config) *Fetcher {
	if conf == nil {
		conf = &Config{}
	}
	return &Fetcher{
		userAgent: utils.RandomAgent(),
		client: &http.Client{
			Timeout: conf.Timeout,
			Transport: &http.Transport{
				Proxy:             GetProxy(conf.Proxy),
				TLSClientConfig:   &tls.Config{InsecureSkipVerify: conf.Insecure},
				ForceAttemptHTTP2: true,
			},
		},
	}
}

// NewWithClient creates a Fetcher around an existing http.Client
func NewWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client, userAgent: utils.RandomAgent()}
}

// GetProxy takes either an input string or read the environment and returns a proxy function
func GetProxy(proxy string) func(*http.Request) (*url.URL, error) {
	if len(proxy) > 0 {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			log.WithError(err).Error("bad proxy url")
			return http.ProxyFromEnvironment
		}
		log.Debugf("proxy set to: %s", proxyURL)
		return http.ProxyURL(proxyURL)
	}

	conf := httpproxy.FromEnvironment()
	if len(conf.HTTPProxy) > 0 || len(conf.HTTPSProxy) > 0 {
		log.WithFields(log.Fields{
			"http_proxy":  conf.HTTPProxy,
			"https_proxy": conf.HTTPSProxy,
			"no_proxy":    conf.NoProxy,
		}).Debug("proxy info from environment")
	}

	return http.ProxyFromEnvironment
}

// Fetch performs one GET and returns the response body
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch: cannot create http request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	res, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		herr := &HTTPError{
			URL:        rawURL,
			StatusCode: res.StatusCode,
			Reason:     http.StatusText(res.StatusCode),
		}
		if body, _ := io.ReadAll(io.LimitReader(res.Body, maxLoggedBody)); len(body) > 0 {
			log.WithFields(log.Fields{
				"url":    rawURL,
				"status": res.StatusCode,
			}).Debugf("error response body: %s", body)
		}
		return nil, herr
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	if len(body) == 0 {
		return nil, &DataError{URL: rawURL}
	}

	return body, nil
}

// FetchAsync runs Fetch on its own goroutine and calls done exactly once with the result
func (f *Fetcher) FetchAsync(ctx context.Context, rawURL string, done func([]byte, error)) {
	go func() {
		done(f.Fetch(ctx, rawURL))
	}()
}
