package security

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPDirect(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:54321"

	if got := ClientIP(r, false, 0); got != "203.0.113.7" {
		t.Errorf("ClientIP = %q, want 203.0.113.7", got)
	}
}

func TestClientIPIgnoresHeadersWhenProxyUntrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:54321"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	r.Header.Set("X-Real-IP", "198.51.100.2")

	if got := ClientIP(r, false, 0); got != "203.0.113.7" {
		t.Errorf("ClientIP = %q, want RemoteAddr host when proxy untrusted", got)
	}
}

func TestClientIPForwardedFor(t *testing.T) {
	tests := []struct {
		name              string
		xff               string
		trustedProxyCount int
		want              string
	}{
		{"single proxy", "198.51.100.1", 1, "198.51.100.1"},
		{"two entries one trusted proxy", "198.51.100.1, 10.0.0.1", 1, "198.51.100.1"},
		{"three entries two trusted proxies", "198.51.100.1, 10.0.0.1, 10.0.0.2", 2, "198.51.100.1"},
		{"zero count assumes one proxy", "198.51.100.1, 10.0.0.1", 0, "198.51.100.1"},
		{"spoofed extra entry skipped", "6.6.6.6, 198.51.100.1, 10.0.0.1", 1, "198.51.100.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "10.0.0.2:443"
			r.Header.Set("X-Forwarded-For", tt.xff)

			if got := ClientIP(r, true, tt.trustedProxyCount); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPRealIPFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.2:443"
	r.Header.Set("X-Real-IP", "198.51.100.9")

	if got := ClientIP(r, true, 1); got != "198.51.100.9" {
		t.Errorf("ClientIP = %q, want X-Real-IP value", got)
	}
}

func TestClientIPInvalidHeaderValues(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:54321"
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.Header.Set("X-Real-IP", "also-not-an-ip")

	if got := ClientIP(r, true, 1); got != "203.0.113.7" {
		t.Errorf("ClientIP = %q, want RemoteAddr fallback for garbage headers", got)
	}
}
