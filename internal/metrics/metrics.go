// Package metrics 为长时间运行的命令（watch、tui）采集 Prometheus 指标，
// 并在配置的地址上暴露 /metrics。
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lantern"

// Metrics holds the client collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	events       *prometheus.CounterVec
	sessionEnds  *prometheus.CounterVec
	connects     prometheus.Counter
	connected    prometheus.Gauge
	uploadBytes  prometheus.Counter
	journalFails prometheus.Counter
}

// New registers all collectors, plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "REST requests by method and status code.",
		}, []string{"method", "code"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "REST request latency.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "events_total",
			Help:      "Gateway messages received by opcode.",
		}, []string{"op"}),
		sessionEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Errors surfaced by the gateway connection, by reason.",
		}, []string{"reason"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connects_total",
			Help:      "Gateway sockets established.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connected",
			Help:      "1 while a gateway socket is open.",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "File bytes acknowledged by the server.",
		}),
		journalFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_failures_total",
			Help:      "Journal entries that could not be stored.",
		}),
	}
	m.registry.MustRegister(
		m.apiRequests, m.apiDuration, m.events, m.sessionEnds,
		m.connects, m.connected, m.uploadBytes, m.journalFails,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// InstrumentClient wraps c's transport so every driver request is counted
// and timed. c is modified in place and returned.
func (m *Metrics) InstrumentClient(c *http.Client) *http.Client {
	if c == nil {
		c = &http.Client{}
	}
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c.Transport = promhttp.InstrumentRoundTripperCounter(m.apiRequests,
		promhttp.InstrumentRoundTripperDuration(m.apiDuration, next))
	return c
}

// Event counts one gateway message.
func (m *Metrics) Event(op string) { m.events.WithLabelValues(op).Inc() }

// Connected records a socket coming up.
func (m *Metrics) Connected() {
	m.connects.Inc()
	m.connected.Set(1)
}

// Disconnected records a socket going away, labelled by reason.
func (m *Metrics) Disconnected(reason string) {
	m.connected.Set(0)
	m.sessionEnds.WithLabelValues(reason).Inc()
}

// Uploaded adds acknowledged upload bytes.
func (m *Metrics) Uploaded(n int64) { m.uploadBytes.Add(float64(n)) }

// JournalFailed counts a dropped journal write.
func (m *Metrics) JournalFailed() { m.journalFails.Inc() }

// Handler returns a gin engine serving /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

// Serve listens on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
