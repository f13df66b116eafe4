// Package server serves read-only sweep progress on a unix socket.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vftune/pkg/config"
	"github.com/charlie0129/vftune/pkg/events"
	"github.com/charlie0129/vftune/pkg/metrics"
	"github.com/charlie0129/vftune/pkg/sweep"
	"github.com/charlie0129/vftune/pkg/version"
)

// ProgressSource provides the progress of the running sweep. *sweep.Sweep
// implements it.
type ProgressSource interface {
	Progress() sweep.Progress
}

type Server struct {
	source ProgressSource
	conf   *config.RawFileConfig
	hub    *events.EventHub

	router *gin.Engine
	srv    *http.Server
	path   string
}

// New builds the server. conf is the effective configuration of the sweep,
// hub may be nil.
func New(source ProgressSource, conf *config.RawFileConfig, hub *events.EventHub) *Server {
	s := &Server{
		source: source,
		conf:   conf,
		hub:    hub,
	}
	s.router = s.setupRoutes()
	s.srv = &http.Server{Handler: s.router}
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", s.getStatus)
	router.GET("/results", s.getResults)
	router.GET("/config", s.getConfig)
	router.GET("/version", getVersion)
	router.GET("/events", s.streamEvents)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	return router
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the unix socket at path and serves in the background. A
// stale socket file left by a crashed run is replaced.
func (s *Server) Start(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", path)
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", path)
	}
	s.path = path

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("http server stopped")
		}
	}()

	return nil
}

// Shutdown stops the server and removes the socket.
func (s *Server) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down http server")
	err := s.srv.Shutdown(ctx)
	if s.path != "" {
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			logrus.WithError(rmErr).Warnf("failed to remove socket %s", s.path)
		}
	}
	return err
}

func (s *Server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.source.Progress())
}

func (s *Server) getResults(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.source.Progress().Results)
}

func (s *Server) getConfig(c *gin.Context) {
	if s.conf == nil {
		_ = c.AbortWithError(http.StatusNotFound, errors.New("no configuration"))
		return
	}
	c.IndentedJSON(http.StatusOK, s.conf)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (s *Server) streamEvents(c *gin.Context) {
	if s.hub == nil {
		_ = c.AbortWithError(http.StatusNotFound, errors.New("events are not enabled"))
		return
	}

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Content-Type", "text/event-stream")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
