package middleware

import (
	"net/http"
	"time"

	"github.com/iudanet/pidash/internal/server/metrics"
)

// MetricsMiddleware записывает latency запросов по шаблону маршрута
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			// ServeMux заполняет Pattern; неизвестные пути не плодят label values
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
