package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nexusrtb/catalyst/pkg/logger"
)

func init() {
	logger.Init(logger.Config{
		Level:      "error",
		Format:     "json",
		TimeFormat: time.RFC3339,
	})
}

// Global test server instance to avoid metrics registration conflicts.
var testServer *Server

func TestNewServer_MinimalConfig(t *testing.T) {
	if testServer != nil {
		t.Skip("Skipping to avoid Prometheus metrics conflict")
	}

	cfg := &ServerConfig{
		Port:                  "8080",
		Timeout:               1000 * time.Millisecond,
		HostURL:               "https://example.com",
		BillingPath:           "bill",
		EventDomain:           "https://example.com",
		SchainASI:             "example.com",
		SchainName:            "catalyst",
		SchainMaxHops:         10,
		CatalogPollInterval:   30 * time.Second,
		CountersFlushInterval: 10 * time.Second,
	}

	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	testServer = server

	if server.config.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", server.config.Port)
	}

	if server.httpServer == nil {
		t.Error("Expected HTTP server to be initialized")
	}

	if server.metrics == nil {
		t.Error("Expected metrics to be initialized")
	}

	if server.auctionDeps == nil {
		t.Error("Expected auction dependencies to be initialized")
	}

	if server.billingDeps == nil {
		t.Error("Expected billing dependencies to be initialized")
	}

	if server.rateLimiter == nil {
		t.Error("Expected rate limiter to be initialized")
	}

	if server.demand == nil || server.publishers == nil {
		t.Error("Expected demand and publisher catalogues to be initialized")
	}
}

func TestServerConfig_RedisURLFromMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cfg := &ServerConfig{
		RedisURL: "redis://" + mr.Addr(),
	}

	if cfg.RedisURL == "" {
		t.Error("Expected Redis URL to be set")
	}
}

func TestServer_HealthRoute(t *testing.T) {
	if testServer == nil {
		t.Skip("Test server not initialized")
	}

	req := httptest.NewRequest("GET", "/hi", nil)
	rr := httptest.NewRecorder()

	testServer.httpServer.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	if rr.Body.String() != "hi!" {
		t.Errorf("Expected body 'hi!', got %q", rr.Body.String())
	}
}

func TestServer_SyncRoute_MissingPubID(t *testing.T) {
	if testServer == nil {
		t.Skip("Test server not initialized")
	}

	req := httptest.NewRequest("GET", "/sync", nil)
	rr := httptest.NewRecorder()

	testServer.httpServer.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 from /sync without pubid, got %d", rr.Code)
	}
}

func TestServer_BillingRoute(t *testing.T) {
	if testServer == nil {
		t.Skip("Test server not initialized")
	}

	req := httptest.NewRequest("GET", "/"+testServer.config.BillingPath, nil)
	rr := httptest.NewRecorder()

	testServer.httpServer.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 from billing callback, got %d", rr.Code)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	requestID := rr.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Error("Expected X-Request-ID header to be set")
	}

	if len(requestID) != 16 {
		t.Errorf("Expected request ID to be 16 characters, got %d", len(requestID))
	}
}

func TestLoggingMiddleware_WithExistingRequestID(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "custom-request-id")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	requestID := rr.Header().Get("X-Request-ID")
	if requestID != "custom-request-id" {
		t.Errorf("Expected request ID 'custom-request-id', got '%s'", requestID)
	}
}

func TestGenerateRequestID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateRequestID()

		if len(id) != 16 {
			t.Errorf("Expected ID length 16, got %d", len(id))
		}

		if ids[id] {
			t.Errorf("Duplicate ID generated: %s", id)
		}
		ids[id] = true
	}
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	rw := &responseWriter{
		ResponseWriter: httptest.NewRecorder(),
		statusCode:     http.StatusOK,
	}

	rw.WriteHeader(http.StatusNotFound)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", rw.statusCode)
	}
}

func TestServer_BuildHandler(t *testing.T) {
	if testServer == nil {
		t.Skip("Test server not initialized")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test"))
	})

	handler := testServer.buildHandler(mux)

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	if rr.Header().Get("X-Content-Type-Options") == "" {
		t.Error("Expected security headers to be present")
	}

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header to be present")
	}
}

func TestServer_AllRoutes(t *testing.T) {
	if testServer == nil {
		t.Skip("Test server not initialized")
	}

	routes := []struct {
		path           string
		expectedStatus int
	}{
		{"/hi", http.StatusOK},
		{"/status", http.StatusOK},
		{"/info/bidders", http.StatusOK},
		{"/sync", http.StatusBadRequest},
		{"/" + testServer.config.BillingPath, http.StatusNoContent},
		{"/metrics", http.StatusOK},
		{"/admin/dashboard", http.StatusOK},
		{"/admin/metrics", http.StatusOK},
	}

	for _, route := range routes {
		t.Run(route.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", route.path, nil)
			rr := httptest.NewRecorder()

			testServer.httpServer.Handler.ServeHTTP(rr, req)

			if rr.Code != route.expectedStatus {
				t.Errorf("Expected status %d for %s, got %d", route.expectedStatus, route.path, rr.Code)
			}
		})
	}
}

func TestServer_InitDatabase_NoConfig(t *testing.T) {
	cfg := &ServerConfig{
		Port:           "8080",
		Timeout:        1000 * time.Millisecond,
		HostURL:        "https://example.com",
		DatabaseConfig: nil,
	}

	server := &Server{config: cfg}
	err := server.initDatabase()

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if server.db != nil {
		t.Error("Expected no database connection when config is nil")
	}

	if server.publisher != nil {
		t.Error("Expected no publisher store when config is nil")
	}

	if server.sqlDB != nil {
		t.Error("Expected no *sql.DB when config is nil")
	}
}

func TestServer_InitRedis_NoURL(t *testing.T) {
	cfg := &ServerConfig{
		Port:     "8080",
		Timeout:  1000 * time.Millisecond,
		HostURL:  "https://example.com",
		RedisURL: "",
	}

	server := &Server{config: cfg}
	err := server.initRedis()

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if server.redisClient != nil {
		t.Error("Expected no Redis client when URL is empty")
	}
}
