package security

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetSecurityHeaders(w, "https://auth.example.com")

	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'self'") {
		t.Errorf("Content-Security-Policy = %q, want default-src 'self'", got)
	}
	if got := w.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("HTTPS issuer should set Strict-Transport-Security")
	}
}

func TestSetSecurityHeadersNoHSTSOverHTTP(t *testing.T) {
	w := httptest.NewRecorder()
	SetSecurityHeaders(w, "http://localhost:8080")

	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HTTP issuer should not set Strict-Transport-Security, got %q", got)
	}
}

func TestSetNoStoreHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetNoStoreHeaders(w)

	if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if got := w.Header().Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q, want no-cache", got)
	}
}
