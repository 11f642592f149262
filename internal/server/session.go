// Package server implements the per-app OTA install server.
//
// A Session binds one random port and serves the install manifest, the two
// manifest icons and the IPA payload to the device's system installer. Its
// Status moves through Ready, SendingManifest, SendingPayload and ends in
// Completed or Broken.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/otad/internal/ipa"
	"github.com/blacktop/otad/internal/metrics"
	"github.com/blacktop/otad/internal/provision"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	bindHost = "0.0.0.0"

	readHeaderTimeout = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// App is what a session serves
type App struct {
	// PackagePath is the IPA to stream; it may be empty or not exist yet
	PackagePath string
	Metadata    ipa.Metadata
	// Icons are the manifest icons; nil renders placeholders
	Icons *ipa.IconSet
}

// Session is one install server instance serving one app on one port
type Session struct {
	id          string
	port        int
	host        string
	scheme      string
	packagePath string
	meta        ipa.Metadata

	manifest []byte
	icons    *ipa.IconSet

	srv   *http.Server
	hub   *statusHub
	done  chan struct{}
	serve chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewSession builds and starts an install server for app.
//
// The listener is bound before NewSession returns; any bind or TLS failure is
// returned as a *StartupError. Cancelling ctx shuts the session down.
func NewSession(ctx context.Context, conf *Config, store *provision.Store, app App) (*Session, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	if err := conf.verify(); err != nil {
		return nil, &StartupError{Op: "config", Err: err}
	}
	if err := app.Metadata.Validate(); err != nil {
		return nil, &StartupError{Op: "metadata", Err: err}
	}

	s := &Session{
		id:          uuid.NewString(),
		port:        conf.randomPort(),
		scheme:      "http",
		host:        conf.Host,
		packagePath: conf.resolvePackagePath(app.PackagePath),
		meta:        app.Metadata,
		icons:       app.Icons,
		done:        make(chan struct{}),
		serve:       make(chan struct{}),
	}

	var tlsConf *tls.Config
	if conf.TLSEnabled() {
		var err error
		tlsConf, s.host, err = newTLSConfig(store)
		if err != nil {
			return nil, &StartupError{Op: "tls", Err: err}
		}
		s.scheme = "https"
	}

	if s.icons == nil {
		icons, err := ipa.IconsFromImage(nil)
		if err != nil {
			return nil, &StartupError{Op: "icons", Err: err}
		}
		s.icons = icons
	}

	manifest, err := NewManifest(s.baseURL(), s.payloadPath(), s.meta).Bytes()
	if err != nil {
		return nil, &StartupError{Op: "manifest", Err: err}
	}
	s.manifest = manifest

	engine := NewEngine(conf)
	s.addRoutes(engine)

	addr := net.JoinHostPort(bindHost, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, &StartupError{Op: "bind", Addr: addr, Err: err}
	}
	var l net.Listener = noDelayListener{ln.(*net.TCPListener)}
	if tlsConf != nil {
		l = tls.NewListener(l, tlsConf)
	}

	s.srv = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.hub = newStatusHub(s.onTransition)

	go func() {
		defer close(s.serve)
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("install server stopped unexpectedly")
			s.hub.set(Status{State: Broken, Err: err})
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Shutdown(sctx); err != nil {
				log.WithError(err).Warn("install server shutdown")
			}
		case <-s.done:
		}
	}()

	metrics.SessionStarted()
	log.WithFields(log.Fields{
		"id":   s.id,
		"addr": addr,
		"url":  s.baseURL().String(),
		"app":  s.meta.String(),
	}).Info("Started install server")

	return s, nil
}

func (s *Session) onTransition(st Status) {
	metrics.RecordTransition(st.State.String())
	ctx := log.WithFields(log.Fields{"id": s.id, "status": st.State.String()})
	if st.Err != nil {
		ctx.WithError(st.Err).Warn("install status changed")
		return
	}
	ctx.Debug("install status changed")
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Port returns the bound port
func (s *Session) Port() int { return s.port }

// Host returns the host used in the session URLs
func (s *Session) Host() string { return s.host }

// PackagePath returns the IPA path being served
func (s *Session) PackagePath() string { return s.packagePath }

// Metadata returns the app metadata
func (s *Session) Metadata() ipa.Metadata { return s.meta }

// Status returns the current status
func (s *Session) Status() Status { return s.hub.get() }

// Subscribe returns a channel that first receives the current status and then
// every transition in order. The channel is closed on shutdown; cancel stops
// delivery early.
func (s *Session) Subscribe() (<-chan Status, func()) {
	return s.hub.subscribe()
}

// Wait blocks until the session reaches a terminal state, shuts down, or ctx is done
func (s *Session) Wait(ctx context.Context) (Status, error) {
	ch, cancel := s.Subscribe()
	defer cancel()
	last := s.Status()
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return last, nil
			}
			last = st
			if st.State.Terminal() {
				return st, nil
			}
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}

func (s *Session) baseURL() *url.URL {
	return &url.URL{
		Scheme: s.scheme,
		Host:   net.JoinHostPort(s.host, strconv.Itoa(s.port)),
		Path:   "/",
	}
}

func (s *Session) manifestPath() string { return "/" + s.id + ".plist" }
func (s *Session) payloadPath() string  { return "/" + s.id + ".ipa" }

// ManifestURL is the URL of the install manifest
func (s *Session) ManifestURL() string {
	return s.baseURL().JoinPath(s.manifestPath()).String()
}

// PayloadURL is the URL of the IPA payload
func (s *Session) PayloadURL() string {
	return s.baseURL().JoinPath(s.payloadPath()).String()
}

// InstallURL is the page that redirects the device to DeepLink
func (s *Session) InstallURL() string {
	return s.baseURL().JoinPath(installPath).String()
}

// DeepLink is the itms-services URL that starts the install
func (s *Session) DeepLink() string {
	return DeepLink(s.ManifestURL())
}

// Done is closed once the session has shut down
func (s *Session) Done() <-chan struct{} { return s.done }

// Shutdown stops the listener and releases the session. It is safe to call
// more than once and from several goroutines; only the first call does work.
func (s *Session) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		if err := s.srv.Shutdown(ctx); err != nil {
			s.shutdownErr = fmt.Errorf("server: shutdown: %w", err)
			s.srv.Close()
		}
		<-s.serve
		s.hub.close()
		close(s.done)
		metrics.SessionStopped()
		log.WithField("id", s.id).Info("Stopped install server")
	})
	return s.shutdownErr
}
