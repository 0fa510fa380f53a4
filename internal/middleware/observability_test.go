package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wabadash/internal/metrics"
	"wabadash/internal/service"
	"wabadash/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func routeLabels(t *testing.T, reg *prometheus.Registry) map[string]string {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	labels := map[string]string{}
	for _, mf := range families {
		if mf.GetName() != "wabadash_http_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			var route, status string
			for _, lp := range metric.GetLabel() {
				switch lp.GetName() {
				case "route":
					route = lp.GetValue()
				case "status_code":
					status = lp.GetValue()
				}
			}
			labels[route] = status
		}
	}
	return labels
}

func newRouter(logger *logrus.Logger, m *metrics.Metrics, verbose bool, h http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(ObservabilityMiddleware(logger, m, verbose))
	r.HandleFunc("/api/responses/{id}", h)
	return r
}

func TestObservabilityMiddleware(t *testing.T) {
	logger, buf := bufferLogger()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)

	var seenRequestID, seenTraceID string
	router := newRouter(logger, m, false, func(w http.ResponseWriter, r *http.Request) {
		seenRequestID = tracing.RequestID(r.Context())
		seenTraceID = tracing.TraceID(r.Context())
		assert.False(t, service.IsVerboseLogging(r.Context()))
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/responses/abc-123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(seenRequestID, "req_"))
	assert.Equal(t, seenRequestID, w.Header().Get(HeaderRequestID))
	assert.Equal(t, seenTraceID, w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, seenTraceID)

	assert.Equal(t, map[string]string{"/api/responses/{id}": "200"}, routeLabels(t, reg))

	lines := logLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "HTTP request completed", lines[1]["msg"])
	assert.Equal(t, "info", lines[1]["level"])
	assert.Equal(t, seenRequestID, lines[1][service.LogFieldRequestID])
	assert.Equal(t, float64(2), lines[1][service.LogFieldSize])
}

func TestObservabilityMiddleware_PropagatesInboundIDs(t *testing.T) {
	logger, _ := bufferLogger()

	var seenRequestID, seenTraceID string
	router := newRouter(logger, nil, false, func(w http.ResponseWriter, r *http.Request) {
		seenRequestID = tracing.RequestID(r.Context())
		seenTraceID = tracing.TraceID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/responses/1", nil)
	req.Header.Set(HeaderRequestID, "client-req-1")
	req.Header.Set(HeaderTraceID, "client-trace-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "client-req-1", seenRequestID)
	assert.Equal(t, "client-trace-1", seenTraceID)
	assert.Equal(t, "client-req-1", w.Header().Get(HeaderRequestID))
}

func TestObservabilityMiddleware_StatusLogLevels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success", http.StatusCreated, "info"},
		{"client error", http.StatusNotFound, "warning"},
		{"server error", http.StatusBadGateway, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := bufferLogger()
			reg := prometheus.NewRegistry()
			m := metrics.NewWithRegistry(reg, reg)

			router := newRouter(logger, m, false, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/responses/9", nil))

			lines := logLines(t, buf)
			require.NotEmpty(t, lines)
			last := lines[len(lines)-1]
			assert.Equal(t, tt.level, last["level"])
			assert.Equal(t, float64(tt.status), last[service.LogFieldStatusCode])
		})
	}
}

func TestObservabilityMiddleware_VerboseMasksCredentials(t *testing.T) {
	logger, buf := bufferLogger()

	router := newRouter(logger, nil, true, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, service.IsVerboseLogging(r.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/responses/1", nil)
	req.Header.Set("Authorization", "Bearer super-secret-token")
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, buf.String(), "super-secret-token")
	assert.Contains(t, buf.String(), "headers")
}

func TestInboundID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "abc-123", "abc-123"},
		{"trimmed", "  abc  ", "abc"},
		{"empty", "", ""},
		{"control characters", "abc\ndef", ""},
		{"too long", strings.Repeat("a", maxInboundID+1), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inboundID(tt.in))
		})
	}
}

func TestResponseWrapper_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = rw.Write([]byte("hello"))
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, int64(5), rw.responseSize)
}
