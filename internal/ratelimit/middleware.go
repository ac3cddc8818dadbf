package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/api"
	"github.com/elskow/crm-auth/internal/apperror"
	"github.com/elskow/crm-auth/internal/config"
)

var ErrRateLimited = apperror.New(apperror.RateLimited, "too many requests, try again later")

// KeyFunc extracts the caller identity from a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by remote address. Run chi's middleware.RealIP in
// front of the limiter when the service sits behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware limits requests per caller for one named policy. Records of
// different policies never share a counter.
func Middleware(l *Limiter, name string, policy config.RateLimitPolicy, key KeyFunc, log *zap.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := key(r)
			result := l.Check(name+":"+identity, policy.Window, policy.MaxRequests)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := result.RetryAfter(l.now())
				w.Header().Set("Retry-After", strconv.Itoa(int((retryAfter+time.Second-1)/time.Second)))
				log.Warn("rate limit exceeded",
					zap.String("policy", name),
					zap.String("client", identity),
					zap.Time("reset_at", result.ResetAt))
				api.WriteError(w, log, ErrRateLimited.WithDetails(map[string]any{
					"retry_after_seconds": int(retryAfter.Seconds()),
				}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
