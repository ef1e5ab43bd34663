package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"log/slog"

	"lattice/internal/config"
	"lattice/internal/gateway"
	"lattice/internal/store"
)

func TestOriginAllowedForCORSMatchesWildcardAndLoopback(t *testing.T) {
	allowed := []string{"https://example.com", "https://*.preview.example.com"}

	if !originAllowedForCORS("https://example.com", allowed) {
		t.Fatal("expected exact match to be allowed")
	}
	if !originAllowedForCORS("https://feature-1.preview.example.com", allowed) {
		t.Fatal("expected trailing-wildcard prefix match to be allowed")
	}
	if !originAllowedForCORS("http://localhost:3000", allowed) {
		t.Fatal("expected loopback origin to always be allowed")
	}
	if originAllowedForCORS("https://evil.com", allowed) {
		t.Fatal("expected an unrelated origin to be rejected")
	}
}

func TestCorsMiddlewareSetsHeadersForAllowedOrigin(t *testing.T) {
	handler := corsMiddleware([]string{"https://example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("expected CORS origin header to be set, got %q", got)
	}
}

func TestCorsMiddlewareHandlesPreflight(t *testing.T) {
	handler := corsMiddleware([]string{"https://example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("expected preflight requests to short-circuit before reaching the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for a preflight request, got %d", rec.Code)
	}
}

func TestSecurityHeadersMiddlewareSetsExpectedHeaders(t *testing.T) {
	handler := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("expected X-Frame-Options: DENY")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected X-Content-Type-Options: nosniff")
	}
}

func TestNewServerServesHealthEndpoint(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "lattice.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: "this-is-a-32-byte-or-longer-secret"},
	}

	gw := gateway.New(gateway.Config{Log: slog.Default()})

	srv, err := NewServer(cfg, db, gw, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error constructing server: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}
}

func TestRetryAfterSecondsRoundsUpAndFloorsAtOne(t *testing.T) {
	if got := retryAfterSeconds(500 * time.Millisecond); got != 1 {
		t.Fatalf("expected sub-second windows to floor at 1, got %d", got)
	}
	if got := retryAfterSeconds(90 * time.Second); got != 90 {
		t.Fatalf("expected 90s window to report 90, got %d", got)
	}
}
