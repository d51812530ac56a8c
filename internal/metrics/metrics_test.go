package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "{}")
	}))
	defer srv.Close()

	m := New()
	c := m.InstrumentClient(&http.Client{})
	for _, path := range []string{"/ok", "/ok", "/missing"} {
		resp, err := c.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("get", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("get", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.apiDuration))
}

func TestGatewayCounters(t *testing.T) {
	m := New()
	m.Connected()
	m.Event("Ready")
	m.Event("MessageCreate")
	m.Event("MessageCreate")
	m.Disconnected("AuthFailed")
	m.Uploaded(1024)
	m.JournalFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("MessageCreate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionEnds.WithLabelValues("AuthFailed")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.uploadBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.journalFails))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Event("Hello")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `lantern_gateway_events_total{op="Hello"} 1`))

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}
