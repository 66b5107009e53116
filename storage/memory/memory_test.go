package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatewarden/gatewarden/security"
	"github.com/gatewarden/gatewarden/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewWithInterval(time.Hour)
	t.Cleanup(s.Stop)
	return s
}

func testCode(code, state string) *storage.AuthorizationCode {
	now := time.Now()
	return &storage.AuthorizationCode{
		Code:        code,
		ClientID:    "client-1",
		RedirectURI: "https://app.example.com/callback",
		Scope:       "read write",
		State:       state,
		UserID:      "user-1",
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
}

func testToken(value, kind, pair string) *storage.Token {
	now := time.Now()
	return &storage.Token{
		Value:     value,
		Kind:      kind,
		ClientID:  "client-1",
		UserID:    "user-1",
		Scope:     "read",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		Pair:      pair,
	}
}

// ============================================================
// CodeStore
// ============================================================

func TestConsumeAuthorizationCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAuthorizationCode(ctx, testCode("code-1", "state-1")); err != nil {
		t.Fatalf("SaveAuthorizationCode: %v", err)
	}

	got, err := s.AtomicConsumeAuthorizationCode(ctx, "code-1", "state-1")
	if err != nil {
		t.Fatalf("AtomicConsumeAuthorizationCode: %v", err)
	}
	if got.UserID != "user-1" || got.ClientID != "client-1" {
		t.Errorf("consumed code = %+v, want original fields", got)
	}

	// Second consumption must fail: single use
	if _, err := s.AtomicConsumeAuthorizationCode(ctx, "code-1", "state-1"); !errors.Is(err, storage.ErrCodeConsumed) {
		t.Errorf("replay error = %v, want ErrCodeConsumed", err)
	}
}

func TestConsumeAuthorizationCodeStateMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveAuthorizationCode(ctx, testCode("code-1", "state-1"))

	if _, err := s.AtomicConsumeAuthorizationCode(ctx, "code-1", "wrong"); !errors.Is(err, storage.ErrStateMismatch) {
		t.Errorf("error = %v, want ErrStateMismatch", err)
	}

	// A failed state check must not consume the code
	if _, err := s.AtomicConsumeAuthorizationCode(ctx, "code-1", "state-1"); err != nil {
		t.Errorf("code should still be consumable, got %v", err)
	}
}

func TestConsumeAuthorizationCodeEmptyState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Code issued without a state: exchange without one succeeds
	s.SaveAuthorizationCode(ctx, testCode("code-1", ""))

	if _, err := s.AtomicConsumeAuthorizationCode(ctx, "code-1", ""); err != nil {
		t.Errorf("empty state on both sides should match, got %v", err)
	}
}

func TestConsumeAuthorizationCodeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := testCode("code-1", "state-1")
	code.ExpiresAt = time.Now().Add(-time.Minute)
	s.SaveAuthorizationCode(ctx, code)

	if _, err := s.AtomicConsumeAuthorizationCode(ctx, "code-1", "state-1"); !errors.Is(err, storage.ErrCodeExpired) {
		t.Errorf("error = %v, want ErrCodeExpired", err)
	}
}

func TestConsumeAuthorizationCodeNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AtomicConsumeAuthorizationCode(context.Background(), "nope", ""); !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("error = %v, want ErrCodeNotFound", err)
	}
}

// Concurrent exchanges of one code must produce exactly one winner.
func TestConsumeAuthorizationCodeConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveAuthorizationCode(ctx, testCode("code-1", "state-1"))

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AtomicConsumeAuthorizationCode(ctx, "code-1", "state-1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
}

// ============================================================
// TokenStore
// ============================================================

func TestSaveAndGetToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveToken(ctx, testToken("tok-1", storage.TokenKindAccess, "")); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	got, err := s.GetToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if got.Value != "tok-1" || got.Kind != storage.TokenKindAccess {
		t.Errorf("token = %+v, want saved fields", got)
	}
}

func TestGetTokenNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetToken(context.Background(), "nope"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("error = %v, want ErrTokenNotFound", err)
	}
}

func TestGetTokenExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := testToken("tok-1", storage.TokenKindAccess, "")
	// Past expiry by more than the clock skew grace period
	tok.ExpiresAt = time.Now().Add(-time.Minute)
	s.SaveToken(ctx, tok)

	if _, err := s.GetToken(ctx, "tok-1"); !errors.Is(err, storage.ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestGetTokenWithinClockSkewGrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := testToken("tok-1", storage.TokenKindAccess, "")
	tok.ExpiresAt = time.Now().Add(-time.Second)
	s.SaveToken(ctx, tok)

	// 1s past expiry is within the 5s grace period
	if _, err := s.GetToken(ctx, "tok-1"); err != nil {
		t.Errorf("token within grace period should resolve, got %v", err)
	}
}

func TestConsumeRefreshTokenRotation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToken(ctx, testToken("access-1", storage.TokenKindAccess, "refresh-1"))
	s.SaveToken(ctx, testToken("refresh-1", storage.TokenKindRefresh, "access-1"))

	got, err := s.AtomicConsumeRefreshToken(ctx, "refresh-1")
	if err != nil {
		t.Fatalf("AtomicConsumeRefreshToken: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("consumed token = %+v, want original fields", got)
	}

	// Rotated refresh token replay is a theft indicator
	if _, err := s.AtomicConsumeRefreshToken(ctx, "refresh-1"); !errors.Is(err, storage.ErrTokenRevoked) {
		t.Errorf("replay error = %v, want ErrTokenRevoked", err)
	}

	// Paired access token is revoked in the same operation
	if _, err := s.GetToken(ctx, "access-1"); !errors.Is(err, storage.ErrTokenRevoked) {
		t.Errorf("paired access token error = %v, want ErrTokenRevoked", err)
	}
}

func TestConsumeRefreshTokenRejectsAccessToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToken(ctx, testToken("access-1", storage.TokenKindAccess, ""))

	if _, err := s.AtomicConsumeRefreshToken(ctx, "access-1"); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("error = %v, want ErrTokenNotFound for access token value", err)
	}
}

// Concurrent rotations of one refresh token must produce exactly one winner.
func TestConsumeRefreshTokenConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToken(ctx, testToken("refresh-1", storage.TokenKindRefresh, ""))

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AtomicConsumeRefreshToken(ctx, "refresh-1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
}

func TestRevokeTokenIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToken(ctx, testToken("tok-1", storage.TokenKindAccess, ""))

	if err := s.RevokeToken(ctx, "tok-1"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if err := s.RevokeToken(ctx, "tok-1"); err != nil {
		t.Errorf("second revocation should be a no-op, got %v", err)
	}
	if err := s.RevokeToken(ctx, "never-existed"); err != nil {
		t.Errorf("revoking unknown token should be a no-op, got %v", err)
	}

	if _, err := s.GetToken(ctx, "tok-1"); !errors.Is(err, storage.ErrTokenRevoked) {
		t.Errorf("error = %v, want ErrTokenRevoked", err)
	}
}

func TestRevokeRefreshTokenCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToken(ctx, testToken("access-1", storage.TokenKindAccess, "refresh-1"))
	s.SaveToken(ctx, testToken("refresh-1", storage.TokenKindRefresh, "access-1"))

	if err := s.RevokeToken(ctx, "refresh-1"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	if _, err := s.GetToken(ctx, "access-1"); !errors.Is(err, storage.ErrTokenRevoked) {
		t.Errorf("paired access token error = %v, want ErrTokenRevoked", err)
	}
}

func TestRevokeAccessTokenDoesNotCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveToken(ctx, testToken("access-1", storage.TokenKindAccess, "refresh-1"))
	s.SaveToken(ctx, testToken("refresh-1", storage.TokenKindRefresh, "access-1"))

	if err := s.RevokeToken(ctx, "access-1"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	if _, err := s.GetToken(ctx, "refresh-1"); err != nil {
		t.Errorf("refresh token should survive access token revocation, got %v", err)
	}
}

func TestTokenEncryptionAtRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	s.SetEncryptor(enc)

	if err := s.SaveToken(ctx, testToken("tok-1", storage.TokenKindAccess, "")); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	// The stored record must not hold the plaintext value
	s.mu.RLock()
	rec := s.tokens[tokenKey("tok-1")]
	s.mu.RUnlock()
	if rec == nil {
		t.Fatal("record not stored under digest key")
	}
	if rec.token.Value == "tok-1" {
		t.Error("token value stored in plaintext despite encryptor")
	}

	// Lookup by plaintext value still works
	got, err := s.GetToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if got.Value != "tok-1" {
		t.Errorf("Value = %q, want plaintext tok-1", got.Value)
	}
}

// ============================================================
// ClientStore
// ============================================================

func TestClientSecretValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	s.SaveClient(ctx, &storage.Client{
		ClientID:         "client-1",
		ClientSecretHash: string(hash),
	})

	if err := s.ValidateClientSecret(ctx, "client-1", "s3cret"); err != nil {
		t.Errorf("correct secret rejected: %v", err)
	}
	if err := s.ValidateClientSecret(ctx, "client-1", "wrong"); !errors.Is(err, storage.ErrInvalidClientSecret) {
		t.Errorf("wrong secret error = %v, want ErrInvalidClientSecret", err)
	}
	if err := s.ValidateClientSecret(ctx, "ghost", "anything"); !errors.Is(err, storage.ErrInvalidClientSecret) {
		t.Errorf("unknown client error = %v, want ErrInvalidClientSecret", err)
	}
}

func TestPublicClientValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveClient(ctx, &storage.Client{ClientID: "public-1"})

	if err := s.ValidateClientSecret(ctx, "public-1", ""); err != nil {
		t.Errorf("public client without secret rejected: %v", err)
	}
	if err := s.ValidateClientSecret(ctx, "public-1", "unexpected"); !errors.Is(err, storage.ErrInvalidClientSecret) {
		t.Errorf("public client with secret error = %v, want ErrInvalidClientSecret", err)
	}
}

func TestGetClientReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveClient(ctx, &storage.Client{ClientID: "client-1", ClientName: "App"})

	got, err := s.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	got.ClientName = "Mutated"

	again, _ := s.GetClient(ctx, "client-1")
	if again.ClientName != "App" {
		t.Error("mutating a returned client leaked into the store")
	}
}

// ============================================================
// Cleanup and stats
// ============================================================

func TestCleanupRemovesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expired := testCode("code-1", "")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	s.SaveAuthorizationCode(ctx, expired)
	s.SaveAuthorizationCode(ctx, testCode("code-2", ""))

	tok := testToken("tok-1", storage.TokenKindAccess, "")
	tok.ExpiresAt = time.Now().Add(-time.Minute)
	s.SaveToken(ctx, tok)
	s.SaveToken(ctx, testToken("tok-2", storage.TokenKindAccess, ""))

	s.Cleanup()

	stats := s.GetStats()
	if stats.Codes != 1 {
		t.Errorf("codes after cleanup = %d, want 1", stats.Codes)
	}
	if stats.Tokens != 1 {
		t.Errorf("tokens after cleanup = %d, want 1", stats.Tokens)
	}
	if stats.ExpiredRemoved != 2 {
		t.Errorf("expired removed = %d, want 2", stats.ExpiredRemoved)
	}
}

func TestStopIdempotent(t *testing.T) {
	s := NewWithInterval(time.Hour)
	s.Stop()
	s.Stop() // must be safe to call twice
}
