package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitMiddlewareRejectsOverBudget(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	ipResolver := newResolver(t)

	handler := RateLimitMiddleware(limiter, ipResolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = "198.51.100.9:1234"
		return req
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newReq())
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within budget, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the budget is exhausted, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header on the rejection")
	}
}

func TestRateLimitMiddlewareTracksIPsIndependently(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	ipResolver := newResolver(t)

	handler := RateLimitMiddleware(limiter, ipResolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	reqA := httptest.NewRequest(http.MethodGet, "/ws", nil)
	reqA.RemoteAddr = "198.51.100.1:1234"
	recA := httptest.NewRecorder()
	handler.ServeHTTP(recA, reqA)
	if recA.Code != http.StatusOK {
		t.Fatalf("expected first request from IP A to succeed, got %d", recA.Code)
	}

	reqB := httptest.NewRequest(http.MethodGet, "/ws", nil)
	reqB.RemoteAddr = "198.51.100.2:1234"
	recB := httptest.NewRecorder()
	handler.ServeHTTP(recB, reqB)
	if recB.Code != http.StatusOK {
		t.Fatalf("expected first request from a different IP B to also succeed, got %d", recB.Code)
	}
}
