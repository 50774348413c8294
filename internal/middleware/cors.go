package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nexusrtb/catalyst/internal/config"
)

// CORSConfig controls cross-origin access to the HTTP surface. Sync pixels
// and the bid-request endpoint are both called cross-origin from publisher
// pages, so CORS has to be on by default rather than opt-in.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig allows any origin to read responses but not to send
// credentials, matching the cookie-less pubid/rxid contract used by /br.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           config.CORSMaxAge,
	}
}

type CORS struct {
	config *CORSConfig
}

func NewCORS(cfg *CORSConfig) *CORS {
	if cfg == nil {
		cfg = DefaultCORSConfig()
	}
	return &CORS{config: cfg}
}

func (c *CORS) allowedOrigin(origin string) string {
	for _, allowed := range c.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return allowed
		}
	}
	return ""
}

// Middleware answers preflight OPTIONS requests directly and stamps CORS
// headers on every response; it must sit outermost in the chain so
// preflights never reach auth/rate-limit middleware downstream.
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed := c.allowedOrigin(origin)
		if allowed == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		if allowed == "*" {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
		}
		if c.config.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", strings.Join(c.config.AllowedMethods, ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(c.config.AllowedHeaders, ", "))
			h.Set("Access-Control-Max-Age", strconv.Itoa(c.config.MaxAge))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
