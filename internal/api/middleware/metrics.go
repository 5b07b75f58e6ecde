package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector counts requests and error responses. The counters
// live on the app so the health endpoint can report them.
type MetricsCollector struct {
	requests *atomic.Int64
	errors   *atomic.Int64
}

func NewMetricsCollector(requests, errors *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requests: requests,
		errors:   errors,
	}
}

// Middleware counts every request, and every response at or above 400
// as an error.
func (c *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.requests.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			c.errors.Add(1)
		}
	})
}
