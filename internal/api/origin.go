package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/cors"
)

// originAllowed reports whether a browser request may reach the API.
// Requests without an Origin header (CLI tools, scripts) and same-origin
// requests always pass; cross-origin requests need an exact allow-list entry
// or "*".
func originAllowed(allowed []string, r *http.Request, origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, candidate := range allowed {
		candidate = strings.TrimRight(strings.TrimSpace(candidate), "/")
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return originAllowed(origins, r, origin)
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

// rejectForeignOrigins answers 403 to cross-origin requests that are not on
// the allow-list.
func (s *Server) rejectForeignOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !originAllowed(s.origins, r, r.Header.Get("Origin")) {
			writeError(s.logger, w, http.StatusForbidden, "origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}
