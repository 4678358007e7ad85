package middleware

import (
	"net/http"

	"github.com/juju/ratelimit"
	"go.uber.org/zap"
)

// RateLimit applies a global token bucket to the calculation endpoint. The
// bucket refills at perMinute/60 tokens per second and holds burst tokens, so
// short spikes pass while sustained load is shed with 429.
func RateLimit(perMinute, burst int, logger *zap.Logger) func(http.Handler) http.Handler {
	if burst < 1 {
		burst = 1
	}
	bucket := ratelimit.NewBucketWithRate(float64(perMinute)/60.0, int64(burst))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bucket.TakeAvailable(1) == 0 {
				logger.Warn("request rate limited",
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestID(r.Context())),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
