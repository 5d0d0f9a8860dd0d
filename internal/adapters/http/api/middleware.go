package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/hanta/pkg/logger"
	"github.com/okian/hanta/pkg/metrics"
)

// MetricsMiddleware records request count, latency and error class for
// endpoint. Server errors are also logged.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	log := logger.Named("http")
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.status()
		code := strconv.Itoa(status)
		elapsed := time.Since(start)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(elapsed.Milliseconds()))

		class, ok := errorClass(status)
		if !ok {
			return
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, class)
		metrics.RecordErrorByComponent("http", class)
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			log.Error(r.Context(), "request failed",
				logger.String("endpoint", endpoint),
				logger.String("method", r.Method),
				logger.Int("status", status),
				logger.Duration("elapsed", elapsed),
			)
		}
	}
}

// errorClass buckets failed statuses for the error counters.
func errorClass(status int) (string, bool) {
	switch {
	case status < http.StatusBadRequest:
		return "", false
	case status == http.StatusUnauthorized:
		return "unauthorized", true
	case status == http.StatusNotFound:
		return "not_found", true
	case status == http.StatusUnprocessableEntity:
		return "score_mismatch", true
	case status == http.StatusTooManyRequests:
		return "rate_limit", true
	case status == http.StatusServiceUnavailable:
		return "unavailable", true
	case status >= http.StatusInternalServerError:
		return "server_error", true
	default:
		return "client_error", true
	}
}

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}
