package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gestix.app/internal/obs"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	restore := obs.SetLogger(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestRateLimitExceeded(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestID(newRateLimiter(1, 1).Middleware(base))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(context.Background()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first call 200, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(context.Background()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", rr2.Header().Get("Retry-After"))
	}

	var body map[string]any
	if err := json.Unmarshal(rr2.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rate limit body: %v", err)
	}
	if body["error"] == nil || body["error"] == "" {
		t.Fatalf("expected error message in body")
	}
	if body["request_id"] != rr2.Header().Get("X-Request-ID") {
		t.Fatalf("expected request_id %q in body, got %v", rr2.Header().Get("X-Request-ID"), body["request_id"])
	}
}

func TestRateLimitIgnoresForwardingHeaders(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := newRateLimiter(1, 0.01).Middleware(base)

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "198.51.100.7:" + strconv.Itoa(40000+i)
		req.Header.Set("Client-IP", "8.8."+strconv.Itoa(i)+".1")
		req.Header.Set("X-Forwarded-For", "9.9."+strconv.Itoa(i)+".1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 19 {
		t.Fatalf("expected 19 of 20 requests limited from one peer, got %d", limited)
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	lim := newRateLimiter(1, 1)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return now }

	if !lim.allow("198.51.100.1") || !lim.allow("198.51.100.2") {
		t.Fatal("first request of each client must pass")
	}
	if lim.allow("198.51.100.1") {
		t.Fatal("second immediate request must be limited")
	}
	now = now.Add(time.Second)
	if !lim.allow("198.51.100.1") {
		t.Fatal("token must refill after one second")
	}
}

func TestRateLimitSweepsIdleBuckets(t *testing.T) {
	lim := newRateLimiter(1, 1)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return now }

	lim.allow("198.51.100.1")
	now = now.Add(10 * time.Minute)
	lim.allow("198.51.100.2")

	lim.mu.Lock()
	defer lim.mu.Unlock()
	if _, ok := lim.buckets["198.51.100.1"]; ok {
		t.Fatal("idle bucket was not swept")
	}
	if len(lim.buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(lim.buckets))
	}
}

func TestRequestIDReusesSaneHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "abc-123" {
		t.Fatalf("expected inbound id to be reused, got %q", seen)
	}
	if rr.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected response header, got %q", rr.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if len(seen) != 36 {
		t.Fatalf("expected generated uuid for oversized header, got %q", seen)
	}
}

func TestLoggingJSONEmitsStructuredEntry(t *testing.T) {
	logs := observeLogs(t)

	handler := RequestID(LoggingJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.RemoteAddr = "127.0.0.1:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	entries := logs.FilterMessage("request_complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request_complete entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for _, key := range []string{"request_id", "method", "path", "status", "duration_ms", "remote_ip", "user_agent"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", fields["status"])
	}
	if fields["path"] != "/log-test" || fields["user_agent"] != "middleware-test" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields["request_id"] != rr.Header().Get("X-Request-ID") {
		t.Fatalf("request_id mismatch: %v", fields["request_id"])
	}
}

func TestLoggingJSONRemoteIPIsPeer(t *testing.T) {
	logs := observeLogs(t)

	handler := LoggingJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	req.Header.Set("Client-IP", "8.8.8.8")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request_complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request_complete entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["remote_ip"] != "198.51.100.7" {
		t.Fatalf("remote_ip must be the connection peer, got %v", fields["remote_ip"])
	}
	if fields["client_ip"] != "8.8.8.8" {
		t.Fatalf("unexpected client_ip: %v", fields["client_ip"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store, got %q", rr.Header().Get("Cache-Control"))
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected DENY, got %q", rr.Header().Get("X-Frame-Options"))
	}
}

func TestCORSAllowsCredentialsForLocalOrigin(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), nil)

	req := httptest.NewRequest(http.MethodGet, "/check_session", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("expected origin echo, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/check_session", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin for foreign site: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}
