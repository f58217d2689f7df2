package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimit returns middleware that applies a fixed-window per-client-IP
// limit of `limit` requests per `window`. State lives in memory; the map is
// pruned lazily as windows roll over. Used on the login endpoints to stop
// nonce flooding.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	rl := &rateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*clientWindow),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(extractClientIP(r)) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientWindow struct {
	start time.Time
	count int
}

type rateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*clientWindow
}

func (rl *rateLimiter) allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.windows[ip]
	if !ok || now.Sub(cw.start) >= rl.window {
		// New window; also a cheap moment to drop other expired entries.
		for k, v := range rl.windows {
			if now.Sub(v.start) >= rl.window {
				delete(rl.windows, k)
			}
		}
		rl.windows[ip] = &clientWindow{start: now, count: 1}
		return true
	}

	cw.count++
	return cw.count <= rl.limit
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
