package channel

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"

	"wabot/internal/metrics"
)

// requestLogger logs one line per request and counts it by route and status.
func requestLogger(logger *slog.Logger, collector *metrics.MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logger.Info("http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
			)

			if collector != nil {
				collector.Counter(collector.Prefix()+"_http_requests_total", "HTTP requests served.", metrics.Labels(map[string]string{
					"method": r.Method,
					"route":  route,
					"status": strconv.Itoa(status),
				})).Inc()
			}
		})
	}
}

// cors allows requests without an Origin header, requests from an allowed
// origin, and any origin when allowAll is set. Other origins get 403 before
// handlers.CORS writes the Access-Control headers.
func cors(allowed []string, allowAll bool) func(http.Handler) http.Handler {
	originAllowed := func(origin string) bool {
		return allowAll || slices.Contains(allowed, origin)
	}
	withHeaders := handlers.CORS(
		handlers.AllowedOriginValidator(originAllowed),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Signature-256", "X-Hub-Signature-256"}),
		handlers.AllowCredentials(),
		handlers.MaxAge(600),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
	return func(next http.Handler) http.Handler {
		h := withHeaders(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && !originAllowed(origin) {
				respondError(w, http.StatusForbidden, "Not allowed by CORS")
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

// bodyLimit caps request bodies at n bytes.
func bodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit applies rl per client IP. RealIP runs earlier so RemoteAddr
// already holds the forwarded address.
func rateLimit(rl *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			ok, remaining, retryAfter := rl.Allow(key)

			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(rl.Limit()))
			h.Set("RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				secs := int(math.Ceil(retryAfter.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				h.Set("RateLimit-Reset", strconv.Itoa(secs))
				logger.Warn("rate limit exceeded", "client", key, "path", r.URL.Path)
				respondJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":      "Too many requests from this IP, please try again later.",
					"retryAfter": fmt.Sprintf("%d seconds", secs),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireToken guards admin routes with a bearer token when one is configured.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="wabot admin"`)
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
