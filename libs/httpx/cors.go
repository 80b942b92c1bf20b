package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS adds basic CORS handling. If AllowedOrigins is empty, it is a no-op.
func WithCORS(cfg CORSPolicy) Middleware {
	if len(cfg.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	origins := trimmed(cfg.AllowedOrigins)
	methods := strings.Join(trimmed(cfg.AllowedMethods), ", ")
	headers := strings.Join(trimmed(cfg.AllowedHeaders), ", ")
	maxAge := int(cfg.MaxAge.Seconds())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin, ok := matchOrigin(origin, origins, cfg.AllowCredentials)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if maxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			}
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func matchOrigin(origin string, allowed []string, allowCredentials bool) (string, bool) {
	for _, candidate := range allowed {
		if candidate == "*" {
			if allowCredentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	return "", false
}
