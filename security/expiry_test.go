package security

import (
	"testing"
	"time"
)

func TestDefaultExpiryPolicy(t *testing.T) {
	p := DefaultExpiryPolicy()

	if p.StateTTL != 10*time.Minute {
		t.Errorf("StateTTL = %v, want 10m", p.StateTTL)
	}
	if p.CodeTTL != 10*time.Minute {
		t.Errorf("CodeTTL = %v, want 10m", p.CodeTTL)
	}
	if p.AccessTokenTTL != time.Hour {
		t.Errorf("AccessTokenTTL = %v, want 1h", p.AccessTokenTTL)
	}
	if p.RefreshTokenTTL != 30*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 720h", p.RefreshTokenTTL)
	}
	if p.BlockDuration != 15*time.Minute {
		t.Errorf("BlockDuration = %v, want 15m", p.BlockDuration)
	}

	if err := p.Validate(); err != nil {
		t.Errorf("default policy should validate, got %v", err)
	}
}

func TestExpiryPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ExpiryPolicy)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(p *ExpiryPolicy) {},
		},
		{
			name:    "state TTL below minimum",
			mutate:  func(p *ExpiryPolicy) { p.StateTTL = 30 * time.Second },
			wantErr: true,
		},
		{
			name:    "code TTL below minimum",
			mutate:  func(p *ExpiryPolicy) { p.CodeTTL = 59 * time.Second },
			wantErr: true,
		},
		{
			name:    "access token TTL below minimum",
			mutate:  func(p *ExpiryPolicy) { p.AccessTokenTTL = 4 * time.Minute },
			wantErr: true,
		},
		{
			name:   "access token TTL at minimum",
			mutate: func(p *ExpiryPolicy) { p.AccessTokenTTL = 5 * time.Minute },
		},
		{
			name:    "zero refresh token TTL",
			mutate:  func(p *ExpiryPolicy) { p.RefreshTokenTTL = 0 },
			wantErr: true,
		},
		{
			name:    "negative block duration",
			mutate:  func(p *ExpiryPolicy) { p.BlockDuration = -time.Minute },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultExpiryPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComputeExpiry(t *testing.T) {
	p := DefaultExpiryPolicy()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		kind ExpiryKind
		want time.Time
	}{
		{ExpiryKindState, now.Add(10 * time.Minute)},
		{ExpiryKindCode, now.Add(10 * time.Minute)},
		{ExpiryKindAccessToken, now.Add(time.Hour)},
		{ExpiryKindRefreshToken, now.Add(30 * 24 * time.Hour)},
		{ExpiryKindBlock, now.Add(15 * time.Minute)},
	}

	for _, tt := range tests {
		got := p.ComputeExpiry(tt.kind, now)
		if !got.Equal(tt.want) {
			t.Errorf("ComputeExpiry(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestComputeExpiryUnknownKindFallsBackToCodeTTL(t *testing.T) {
	p := DefaultExpiryPolicy()
	now := time.Now()
	got := p.ComputeExpiry("bogus", now)
	if !got.Equal(now.Add(p.CodeTTL)) {
		t.Errorf("unknown kind should use code TTL, got %v", got)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if IsExpired(now.Add(time.Second), now) {
		t.Error("future expiry should not be expired")
	}
	if !IsExpired(now, now) {
		t.Error("expiry exactly at now should count as expired")
	}
	if !IsExpired(now.Add(-time.Second), now) {
		t.Error("past expiry should be expired")
	}
	if IsExpired(time.Time{}, now) {
		t.Error("zero expiry means no expiration")
	}
}

// Expiry is monotonic: once a timestamp is expired at some instant, it stays
// expired at every later instant.
func TestIsExpiredMonotonic(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := base.Add(5 * time.Minute)

	expired := false
	for i := 0; i < 600; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		if IsExpired(expiresAt, now) {
			expired = true
		} else if expired {
			t.Fatalf("expiry flipped back to unexpired at %v", now)
		}
	}
	if !expired {
		t.Fatal("timestamp never expired")
	}
}

func TestIsTokenExpiredWithGracePeriod(t *testing.T) {
	// Expired 2s ago: within a 5s grace period, outside a 1s one.
	expiresAt := time.Now().Add(-2 * time.Second)

	if IsTokenExpiredWithGracePeriod(expiresAt, 5*time.Second) {
		t.Error("token within grace period should not be expired")
	}
	if !IsTokenExpiredWithGracePeriod(expiresAt, time.Second) {
		t.Error("token beyond grace period should be expired")
	}
}
