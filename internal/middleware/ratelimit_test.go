package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		if !rl.Allow("key", 3, time.Minute) {
			t.Fatalf("request %d blocked, want allowed", i+1)
		}
	}
	if rl.Allow("key", 3, time.Minute) {
		t.Error("4th request allowed, want blocked")
	}
	// Different keys are independent.
	if !rl.Allow("other", 3, time.Minute) {
		t.Error("different key blocked")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	if !rl.Allow("key", 1, time.Minute) {
		t.Fatal("first request blocked")
	}
	if rl.Allow("key", 1, time.Minute) {
		t.Fatal("second request allowed within window")
	}

	clock = clock.Add(2 * time.Minute)
	if !rl.Allow("key", 1, time.Minute) {
		t.Error("request blocked after window expired")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	rl.Allow("stale", 1, time.Second)
	rl.Allow("fresh", 1, time.Hour)

	clock = clock.Add(time.Minute)
	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["stale"]; ok {
		t.Error("stale entry survived cleanup")
	}
	if _, ok := rl.entries["fresh"]; !ok {
		t.Error("fresh entry removed by cleanup")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter()
	handler := RateLimit(rl, RealIP, 2, time.Minute)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.5:4321"
	if ip := RealIP(req); ip != "192.168.1.5" {
		t.Errorf("RealIP = %q, want %q", ip, "192.168.1.5")
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := RealIP(req); ip != "203.0.113.9" {
		t.Errorf("RealIP = %q, want %q", ip, "203.0.113.9")
	}
}
