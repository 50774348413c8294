package middleware

import (
	"net/http"
	"os"
	"strings"
	"sync"
)

// SecurityConfig controls the static security headers applied to every
// response. A zero value with Enabled left false behaves like the
// middleware was never installed.
type SecurityConfig struct {
	Enabled                 bool
	XFrameOptions           string
	XContentTypeOptions     string
	XXSSProtection          string
	ContentSecurityPolicy   string
	ReferrerPolicy          string
	StrictTransportSecurity string
	PermissionsPolicy       string
	CacheControl            string
}

// DefaultSecurityConfig returns a conservative header set suitable for a
// JSON API with no embeddable content.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		Enabled:             true,
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		XXSSProtection:      "1; mode=block",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		CacheControl:        "no-store",
	}
}

// Security applies a fixed set of response headers and lets HSTS and CSP
// be toggled at runtime without restarting the process.
type Security struct {
	mu     sync.RWMutex
	config *SecurityConfig
}

func NewSecurity(config *SecurityConfig) *Security {
	if config == nil {
		config = DefaultSecurityConfig()
	}
	return &Security{config: config}
}

// SetEnabled toggles header injection without touching the rest of the config.
func (s *Security) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Enabled = enabled
}

// SetCSP updates the Content-Security-Policy header applied going forward.
func (s *Security) SetCSP(csp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.ContentSecurityPolicy = csp
}

// SetHSTS updates the Strict-Transport-Security header applied going forward.
func (s *Security) SetHSTS(hsts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.StrictTransportSecurity = hsts
}

// GetConfig returns a copy of the current config, safe to read concurrently.
func (s *Security) GetConfig() SecurityConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.config
}

// Middleware sets security headers on every response. Cache-Control is
// skipped for /metrics so scrapers aren't told to never cache a response
// they poll every few seconds anyway.
func (s *Security) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.GetConfig()
		if cfg.Enabled {
			h := w.Header()
			setIfNotEmpty(h, "X-Frame-Options", cfg.XFrameOptions)
			setIfNotEmpty(h, "X-Content-Type-Options", cfg.XContentTypeOptions)
			setIfNotEmpty(h, "X-XSS-Protection", cfg.XXSSProtection)
			setIfNotEmpty(h, "Content-Security-Policy", cfg.ContentSecurityPolicy)
			setIfNotEmpty(h, "Referrer-Policy", cfg.ReferrerPolicy)
			setIfNotEmpty(h, "Strict-Transport-Security", cfg.StrictTransportSecurity)
			setIfNotEmpty(h, "Permissions-Policy", cfg.PermissionsPolicy)
			if !strings.HasPrefix(r.URL.Path, "/metrics") {
				setIfNotEmpty(h, "Cache-Control", cfg.CacheControl)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func setIfNotEmpty(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

// envOrDefault returns the named environment variable, or def if it is unset
// or empty.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
