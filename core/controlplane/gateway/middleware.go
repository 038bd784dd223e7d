package gateway

import (
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

const (
	defaultRateLimitRPS   = 50
	defaultRateLimitBurst = 100

	envRateLimitRPS   = "API_RATE_LIMIT_RPS"
	envRateLimitBurst = "API_RATE_LIMIT_BURST"
	envCORSOrigins    = "CORS_ALLOW_ORIGINS"
)

// newLimiter returns nil when either setting is not positive, which disables
// rate limiting.
func newLimiter(rps, burst int) *rate.Limiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func newLimiterFromEnv() *rate.Limiter {
	return newLimiter(
		positiveIntEnv(envRateLimitRPS, defaultRateLimitRPS),
		positiveIntEnv(envRateLimitBurst, defaultRateLimitBurst),
	)
}

func (s *server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.Allow() {
			writeErrorBody(w, http.StatusTooManyRequests, errorBody{Code: "RATE_LIMITED", Message: "rate limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if !isAllowedOrigin(r) {
				writeErrorBody(w, http.StatusForbidden, errorBody{Code: "FORBIDDEN", Message: "origin not allowed"})
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Location, X-Evaluation-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin accepts requests without an Origin, any origin when
// CORS_ALLOW_ORIGINS is "*", listed origins, and otherwise only loopback or
// same-host origins.
func isAllowedOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	allowed, allowAll := allowedOriginsFromEnv()
	if allowAll {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	if len(allowed) > 0 {
		_, ok := allowed[origin]
		return ok
	}
	host := strings.ToLower(u.Hostname())
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return host == strings.ToLower(requestHostname(r.Host))
}

func allowedOriginsFromEnv() (map[string]struct{}, bool) {
	raw := strings.TrimSpace(os.Getenv(envCORSOrigins))
	if raw == "" {
		return nil, false
	}
	if raw == "*" {
		return nil, true
	}
	set := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			set[p] = struct{}{}
		}
	}
	return set, false
}

func requestHostname(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func positiveIntEnv(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
