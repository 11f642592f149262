package server

import (
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/otad/internal/metrics"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

// NewEngine creates the router used by a session.
//
// The gin mode is process wide and is left to the caller.
func NewEngine(conf *Config) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = false
	// the device talks to us directly; never trust forwarding headers
	if err := r.SetTrustedProxies(nil); err != nil {
		log.WithError(err).Warn("failed to reset trusted proxies")
	}
	r.Use(gin.Recovery(), requestLogger(), bodyLimit(conf.MaxBodySize))
	if conf.Workers > 0 {
		r.Use(workerLimit(conf.Workers))
	}
	if conf.RateLimit > 0 {
		r.Use(newRateLimiter(conf.RateLimit, conf.RateBurst).handler())
	}
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "404 page not found")
	})
	return r
}

// workerLimit bounds how many handlers run at once. Idle and half-open
// connections hold no slot.
func workerLimit(workers int) gin.HandlerFunc {
	sem := semaphore.NewWeighted(int64(workers))
	return func(c *gin.Context) {
		if err := sem.Acquire(c.Request.Context(), 1); err != nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}

func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		metrics.RecordRequest(c.FullPath(), status)

		var size uint64
		if n := c.Writer.Size(); n > 0 {
			size = uint64(n)
		}
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"size":    humanize.Bytes(size),
			"latency": time.Since(start).Round(time.Millisecond),
			"remote":  c.ClientIP(),
		}).Debug("request")
	}
}
