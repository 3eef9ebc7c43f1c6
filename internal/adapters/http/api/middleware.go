package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/phillpas/ktm/pkg/logger"
	"github.com/phillpas/ktm/pkg/metrics"
)

// MetricsMiddleware records count, latency and error code per endpoint.
// A panicking handler is answered with 500 and counted under "panic".
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				metrics.RecordErrorByComponent("api", "panic")
				logger.Get().Error(r.Context(), "handler panic",
					logger.String("endpoint", endpoint),
					logger.String("panic", fmt.Sprint(p)))
				if !rec.wroteHeader {
					writeError(rec, http.StatusInternalServerError, "internal_error", nil)
				}
			}

			status := strconv.Itoa(rec.status)
			metrics.RecordHTTPRequest(endpoint, r.Method, status)
			metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(time.Since(start).Microseconds())/1000)
			if rec.status >= http.StatusBadRequest {
				metrics.RecordErrorByEndpoint(endpoint, r.Method, rec.errorCode())
			}
		}()

		next.ServeHTTP(rec, r)
	}
}

// statusRecorder remembers the status and, when set through writeError,
// the API error code of a response.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	code        string
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.status = status
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) errorCode() string {
	if rw.code != "" {
		return rw.code
	}
	if rw.status >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}
