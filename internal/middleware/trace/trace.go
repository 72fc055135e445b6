// Package trace assigns request ids, logs request completion and feeds the
// HTTP metrics.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	routeKey     ContextKey = "route"
)

// HeaderRequestID echoes the request id back to clients.
const HeaderRequestID = "X-Request-ID"

type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.StructuredLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewMiddleware(extractIP func(*http.Request) string, logger *applog.StructuredLogger, m *metrics.Metrics) *Middleware {
	return &Middleware{extractIP: extractIP, logger: logger, metrics: m, now: time.Now}
}

// route is filled in by the handler that matched, so the metrics label is
// the registered pattern rather than the raw path.
type route struct{ pattern string }

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > 64 {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		rt := &route{}
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = context.WithValue(ctx, routeKey, rt)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := m.now().Sub(start)
		m.metrics.ObserveHTTP(r.Method, rt.pattern, rw.statusCode, duration)
		if m.logger != nil {
			m.logger.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
		}
	})
}

// SetRoute records the matched route pattern for the current request.
func SetRoute(ctx context.Context, pattern string) {
	if rt, ok := ctx.Value(routeKey).(*route); ok {
		rt.pattern = pattern
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// GenerateRequestID returns "req_" followed by 16 hex characters.
func GenerateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(b)
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestID adapts GetRequestID for log.RequestIDMiddleware.
func RequestID(r *http.Request) string { return GetRequestID(r.Context()) }
