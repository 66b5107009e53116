package server

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/identity/mock"
	"github.com/gatewarden/gatewarden/security"
	"github.com/gatewarden/gatewarden/storage/memory"
)

func newServerWithConfig(t *testing.T, config *Config) (*Server, error) {
	t.Helper()
	store := memory.NewWithInterval(time.Hour)
	t.Cleanup(store.Stop)
	return New(store, store, store, mock.NewMockProvider(), config, slog.Default())
}

func TestNewRejectsInvalidExpiryPolicy(t *testing.T) {
	tests := []struct {
		name   string
		expiry security.ExpiryPolicy
	}{
		{
			name: "negative code TTL",
			expiry: security.ExpiryPolicy{
				StateTTL:        10 * time.Minute,
				CodeTTL:         -time.Minute,
				AccessTokenTTL:  time.Hour,
				RefreshTokenTTL: 30 * 24 * time.Hour,
				BlockDuration:   15 * time.Minute,
			},
		},
		{
			name: "code TTL below minimum",
			expiry: security.ExpiryPolicy{
				StateTTL:        10 * time.Minute,
				CodeTTL:         30 * time.Second,
				AccessTokenTTL:  time.Hour,
				RefreshTokenTTL: 30 * 24 * time.Hour,
				BlockDuration:   15 * time.Minute,
			},
		},
		{
			name: "access TTL below minimum",
			expiry: security.ExpiryPolicy{
				StateTTL:        10 * time.Minute,
				CodeTTL:         10 * time.Minute,
				AccessTokenTTL:  time.Minute,
				RefreshTokenTTL: 30 * 24 * time.Hour,
				BlockDuration:   15 * time.Minute,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newServerWithConfig(t, &Config{
				Issuer: "https://auth.example.com",
				Expiry: tt.expiry,
			})
			if err == nil {
				t.Fatal("expected construction to fail")
			}
			if !strings.Contains(err.Error(), "expiry policy") {
				t.Errorf("error = %v, want an expiry policy error", err)
			}
		})
	}
}

func TestNewRejectsInvalidBruteForcePolicy(t *testing.T) {
	_, err := newServerWithConfig(t, &Config{
		Issuer: "https://auth.example.com",
		BruteForce: security.BruteForceConfig{
			AttemptWindow: time.Minute,
			MaxAttempts:   -1,
			BlockDuration: 15 * time.Minute,
		},
	})
	if err == nil {
		t.Fatal("expected construction to fail")
	}
	if !strings.Contains(err.Error(), "brute force policy") {
		t.Errorf("error = %v, want a brute force policy error", err)
	}
}

func TestNewHTTPSEnforcement(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"https issuer", &Config{Issuer: "https://auth.example.com"}, false},
		{"http localhost", &Config{Issuer: "http://localhost:8080"}, false},
		{"http loopback", &Config{Issuer: "http://127.0.0.1:8080"}, false},
		{"http production host", &Config{Issuer: "http://auth.example.com"}, true},
		{"http production host with override", &Config{Issuer: "http://auth.example.com", AllowInsecureHTTP: true}, false},
		{"garbage scheme", &Config{Issuer: "ftp://auth.example.com"}, true},
		{"empty issuer", &Config{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newServerWithConfig(t, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	config := applyDefaults(&Config{})

	if config.Expiry != security.DefaultExpiryPolicy() {
		t.Error("zero expiry policy should take the defaults")
	}
	if config.BruteForce != security.DefaultBruteForceConfig() {
		t.Error("zero brute force config should take the defaults")
	}
	if config.TrustedProxyCount != 1 {
		t.Errorf("TrustedProxyCount = %d, want 1", config.TrustedProxyCount)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	store := memory.NewWithInterval(time.Hour)
	t.Cleanup(store.Stop)
	idp := mock.NewMockProvider()
	config := &Config{Issuer: "https://auth.example.com"}

	if _, err := New(nil, store, store, idp, config, nil); err == nil {
		t.Error("nil code store accepted")
	}
	if _, err := New(store, nil, store, idp, config, nil); err == nil {
		t.Error("nil token store accepted")
	}
	if _, err := New(store, store, nil, idp, config, nil); err == nil {
		t.Error("nil client store accepted")
	}
	if _, err := New(store, store, store, nil, config, nil); err == nil {
		t.Error("nil identity provider accepted")
	}
}

func TestNewBuildsAuditorFromConfig(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	store := memory.NewWithInterval(time.Hour)
	t.Cleanup(store.Stop)

	srv, err := New(store, store, store, mock.NewMockProvider(),
		&Config{Issuer: "https://auth.example.com", AuditEnabled: true}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if srv.Auditor == nil {
		t.Fatal("auditor should be built during construction")
	}
	srv.Auditor.LogAuthFailure("user-1", "client-1", "203.0.113.7", "bad secret")
	if !strings.Contains(buf.String(), "security_audit") {
		t.Error("enabled auditor should emit security_audit events")
	}

	// AuditEnabled off: the auditor exists but stays silent
	buf.Reset()
	srv, err = New(store, store, store, mock.NewMockProvider(),
		&Config{Issuer: "https://auth.example.com"}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Auditor.LogAuthFailure("user-1", "client-1", "203.0.113.7", "bad secret")
	if buf.Len() != 0 {
		t.Errorf("disabled auditor should stay silent, logged %q", buf.String())
	}
}
