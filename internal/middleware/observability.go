package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wabadash/internal/httputil"
	"wabadash/internal/metrics"
	"wabadash/internal/privacy"
	"wabadash/internal/service"
	"wabadash/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	routeUnmatched = "unmatched"
	maxInboundID   = 128
)

// ObservabilityMiddleware traces, measures and logs every request. It
// propagates request and trace ids through the context and response headers.
func ObservabilityMiddleware(logger *logrus.Logger, m *metrics.Metrics, verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)

			ctx, span := tracing.StartSpan(r.Context(), "HTTP "+r.Method+" "+route,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.host", r.Host),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
				attribute.String("client.address", httputil.GetClientIP(r)),
			)
			defer span.End()

			requestID := inboundID(r.Header.Get(HeaderRequestID))
			if requestID == "" {
				requestID = tracing.NewRequestID()
			}
			traceID := tracing.OtelTraceID(ctx)
			if traceID == "" {
				traceID = inboundID(r.Header.Get(HeaderTraceID))
			}
			if traceID == "" {
				traceID = requestID
			}

			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithTraceID(ctx, traceID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			if verbose {
				ctx = context.WithValue(ctx, service.VerboseContextKey, true)
			}
			r = r.WithContext(ctx)

			w.Header().Set(HeaderRequestID, requestID)
			w.Header().Set(HeaderTraceID, traceID)

			done := m.TrackInFlight()
			defer done()

			entry := logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: requestID,
				service.LogFieldTraceID:   traceID,
				service.LogFieldMethod:    r.Method,
				service.LogFieldURL:       r.URL.Path,
				service.LogFieldRemoteIP:  httputil.GetClientIP(r),
			})
			if verbose {
				entry.WithFields(headerFields(r.Header)).Debug("HTTP request started")
			} else {
				entry.WithField(service.LogFieldUserAgent, r.Header.Get("User-Agent")).Debug("HTTP request started")
			}

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			m.ObserveHTTP(r.Method, route, wrapper.statusCode, duration)
			finishSpan(span, wrapper)

			level := logrus.InfoLevel
			switch {
			case wrapper.statusCode >= http.StatusInternalServerError:
				level = logrus.ErrorLevel
			case wrapper.statusCode >= http.StatusBadRequest:
				level = logrus.WarnLevel
			}

			entry.WithFields(logrus.Fields{
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldSize:       wrapper.responseSize,
			}).Log(level, "HTTP request completed")
		})
	}
}

func finishSpan(span oteltrace.Span, wrapper *responseWrapper) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", wrapper.statusCode),
		attribute.Int64("http.response.size", wrapper.responseSize),
	)
	if wrapper.statusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
		return
	}
	span.SetStatus(codes.Ok, "")
}

// routeTemplate labels metrics by the matched route pattern so that ids in
// the path do not explode label cardinality
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return routeUnmatched
}

// inboundID accepts a caller-supplied id only when it is short and printable
func inboundID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxInboundID {
		return ""
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return id
}

// headerFields lists request headers for verbose logging with credentials masked
func headerFields(h http.Header) logrus.Fields {
	raw := make(map[string]any, len(h))
	for name, values := range h {
		key := strings.ToLower(name)
		value := strings.Join(values, ",")
		switch key {
		case "authorization", "cookie", "x-hub-signature-256":
			raw[key] = privacy.MaskSecret(value)
		default:
			raw[key] = value
		}
	}
	return logrus.Fields{"headers": privacy.MaskSensitiveFields(raw)}
}

// responseWrapper captures response metrics
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}

// Flush lets streaming handlers work through the wrapper
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
