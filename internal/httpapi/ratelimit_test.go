package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenLimiterRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 2, func() time.Time { return now })

	if !limiter.allow("1.2.3.4") || !limiter.allow("1.2.3.4") {
		t.Fatalf("expected burst of two to pass")
	}
	if limiter.allow("1.2.3.4") {
		t.Fatalf("expected third call to be limited")
	}
	if !limiter.allow("5.6.7.8") {
		t.Fatalf("expected other key to pass")
	}
	now = now.Add(time.Second)
	if !limiter.allow("1.2.3.4") {
		t.Fatalf("expected refill after one second")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call("/api/requests"); code != http.StatusOK {
		t.Fatalf("expected first call to pass, got %d", code)
	}
	if code := call("/api/requests"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := call("/healthz"); code != http.StatusOK {
		t.Fatalf("expected health checks to bypass the limiter, got %d", code)
	}
}

func TestClientIPForwardedFor(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8, 127.0.0.1"})
	if err != nil {
		t.Fatalf("parse proxies: %v", err)
	}

	cases := []struct {
		name    string
		proxies TrustedProxies
		remote  string
		xff     []string
		want    string
	}{
		{"no proxies ignores header", nil, "203.0.113.9:5000", []string{"1.1.1.1"}, "203.0.113.9"},
		{"untrusted peer ignores header", proxies, "203.0.113.9:5000", []string{"1.1.1.1"}, "203.0.113.9"},
		{"trusted peer uses appended hop", proxies, "10.1.2.3:5000", []string{"1.1.1.1, 198.51.100.7"}, "198.51.100.7"},
		{"skips trusted hops", proxies, "127.0.0.1:5000", []string{"198.51.100.7, 10.9.9.9"}, "198.51.100.7"},
		{"joins repeated headers", proxies, "10.1.2.3:5000", []string{"1.1.1.1", "198.51.100.7"}, "198.51.100.7"},
		{"all hops trusted", proxies, "10.1.2.3:5000", []string{"10.0.0.5"}, "10.0.0.5"},
		{"no header", proxies, "10.1.2.3:5000", nil, "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if got := tc.proxies.ClientIP(req); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatalf("expected bad prefix to fail")
	}
	if _, err := ParseTrustedProxies([]string{"proxy.internal"}); err == nil {
		t.Fatalf("expected hostname to fail")
	}
}

func TestRateLimiterIgnoresSpoofedForwardedFor(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(forged string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v/harbor/claim/confirm", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set("X-Forwarded-For", forged)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call("1.1.1.1"); code != http.StatusOK {
		t.Fatalf("expected first call to pass, got %d", code)
	}
	if code := call("2.2.2.2"); code != http.StatusTooManyRequests {
		t.Fatalf("expected rotated header to share the peer bucket, got %d", code)
	}
}

func TestLoggingMiddlewareAssignsRequestID(t *testing.T) {
	var seen string
	handler := LoggingMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromRequest(r)
		w.WriteHeader(http.StatusTeapot)
	}))
	before := requestsErrors.Value()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated request id to reach handler and response, got %q / %q", seen, rec.Header().Get("X-Request-ID"))
	}
	if requestsErrors.Value() != before+1 {
		t.Fatalf("expected error counter to increase")
	}
}
