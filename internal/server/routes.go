package server

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/apex/log"
	"github.com/blacktop/otad/internal/metrics"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const (
	pingPath      = "/ping"
	installPath   = "/i"
	smallIconPath = "/app57x57.png"
	largeIconPath = "/app512x512.png"

	// payloadChunkSize is the copy buffer used when streaming the IPA
	payloadChunkSize = 64 << 10
)

var (
	//go:embed templates
	templatesFs embed.FS

	tmpl = template.Must(template.ParseFS(templatesFs, "templates/*.html"))
)

type installPage struct {
	DisplayName string
	BundleID    string
	Version     string
	DeepLink    template.URL
}

func (s *Session) addRoutes(r *gin.Engine) {
	r.GET(pingPath, func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.GET("/", s.index)
	r.GET("/index.html", s.index)
	r.GET(installPath, s.install)
	r.GET(s.manifestPath(), s.serveManifest)
	r.GET(smallIconPath, s.serveIcon(func() []byte { return s.icons.Small }))
	r.GET(largeIconPath, s.serveIcon(func() []byte { return s.icons.Large }))
	r.GET(s.payloadPath(), s.servePayload)
}

func (s *Session) index(c *gin.Context) {
	s.render(c, "index.html", nil)
}

func (s *Session) install(c *gin.Context) {
	s.render(c, "install.html", installPage{
		DisplayName: s.meta.DisplayName,
		BundleID:    s.meta.BundleID,
		Version:     s.meta.Version,
		DeepLink:    template.URL(s.DeepLink()),
	})
}

func (s *Session) render(c *gin.Context, name string, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Errorf("failed to execute the template: %s", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Session) serveManifest(c *gin.Context) {
	s.hub.set(Status{State: SendingManifest})
	c.Data(http.StatusOK, "text/xml", s.manifest)
}

func (s *Session) serveIcon(icon func() []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.hub.set(Status{State: SendingManifest})
		c.Data(http.StatusOK, "image/png", icon())
	}
}

func (s *Session) servePayload(c *gin.Context) {
	s.hub.set(Status{State: SendingPayload})

	f, err := os.Open(s.packagePath)
	if err != nil {
		s.hub.set(Status{State: Completed, Err: &StreamError{Path: s.packagePath, Err: err}})
		c.String(http.StatusNotFound, "404 page not found")
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err == nil && fi.IsDir() {
		err = errors.Errorf("%s is a directory", s.packagePath)
	}
	if err != nil {
		s.hub.set(Status{State: Completed, Err: &StreamError{Path: s.packagePath, Err: err}})
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Length", strconv.FormatInt(fi.Size(), 10))
	c.Status(http.StatusOK)

	log.WithFields(log.Fields{
		"id":   s.id,
		"size": humanize.Bytes(uint64(fi.Size())),
	}).Info("Streaming payload")

	// hide ReaderFrom/WriterTo so the copy goes through the chunk buffer
	n, err := io.CopyBuffer(struct{ io.Writer }{c.Writer}, struct{ io.Reader }{f}, make([]byte, payloadChunkSize))
	metrics.RecordPayloadBytes(n)
	if err == nil && n != fi.Size() {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		s.hub.set(Status{State: Completed, Err: &StreamError{Path: s.packagePath, Written: n, Err: err}})
		return
	}
	s.hub.set(Status{State: Completed})
}
