// Package testserver is a scriptable Lantern server for tests: REST routes
// are registered per test and every gateway connection is handed to the test
// as a Session.
package testserver

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/gateway"
)

// Request is a recorded REST call.
type Request struct {
	Method   string
	Path     string
	RawPath  string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Server wraps an httptest.Server running a gin router.
type Server struct {
	*httptest.Server

	router   *gin.Engine
	api      *gin.RouterGroup
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	requests []Request
	dials    int
	reject   int

	sessions chan *Session
}

// New starts a server. Callers must Close it.
func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		router: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions: make(chan *Session, 16),
	}
	s.router.UseRawPath = true
	s.router.Use(gin.Recovery())
	s.router.Use(s.recordMiddleware())
	s.api = s.router.Group("/api/v1")
	s.api.GET("/gateway", s.handleGateway)

	s.Server = httptest.NewServer(s.router)
	return s
}

// Handle registers a REST route under /api/v1.
func (s *Server) Handle(method, path string, h gin.HandlerFunc) {
	s.api.Handle(method, path, h)
}

// Requests returns every REST call seen so far, gateway upgrades excluded.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent REST call.
func (s *Server) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// Dials counts gateway upgrade attempts, rejected ones included.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// RejectNext makes the next n gateway upgrades fail with 503.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	s.reject = n
	s.mu.Unlock()
}

// Driver returns a driver pointed at the server.
func (s *Server) Driver(opts ...driver.Option) *driver.Driver {
	d, err := driver.New(s.URL, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Accept waits for the next gateway connection.
func (s *Server) Accept(ctx context.Context) (*Session, error) {
	select {
	case sess := <-s.sessions:
		return sess, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recordMiddleware keeps a copy of every REST request.
func (s *Server) recordMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		if c.Request.URL.Path != "/api/v1/gateway" {
			var body []byte
			if c.Request.Body != nil {
				body, _ = io.ReadAll(c.Request.Body)
				c.Request.Body = io.NopCloser(bytes.NewReader(body))
			}
			s.mu.Lock()
			s.requests = append(s.requests, Request{
				Method:   c.Request.Method,
				Path:     c.Request.URL.Path,
				RawPath:  c.Request.URL.EscapedPath(),
				RawQuery: c.Request.URL.RawQuery,
				Header:   c.Request.Header.Clone(),
				Body:     body,
			})
			s.mu.Unlock()
		}

		c.Next()

		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleGateway(c *gin.Context) {
	s.mu.Lock()
	s.dials++
	reject := s.reject > 0
	if reject {
		s.reject--
	}
	s.mu.Unlock()
	if reject {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	enc, err := driver.ParseEncoding(c.Query("encoding"))
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	codec := gateway.Codec{Encoding: enc, Compress: c.Query("compress") == "true"}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	q, _ := url.ParseQuery(c.Request.URL.RawQuery)
	s.sessions <- &Session{Codec: codec, Query: q, conn: conn}
}

// JSON writes v with the given status using gin's renderer.
func JSON(status int, v any) gin.HandlerFunc {
	return func(c *gin.Context) { c.JSON(status, v) }
}

// Status replies with an empty body.
func Status(status int) gin.HandlerFunc {
	return func(c *gin.Context) { c.Status(status) }
}
