package testutil

import (
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/storage"
)

// bcrypt hash of "secret", precomputed so fixtures don't pay the hashing
// cost on every test
const testSecretHash = "$2a$10$LP8blJuDphcpCVB0fmKgW.sGp9zoHIU88UZrX6/1Y2Ic9ObWkypEK"

// TestClientSecret is the plaintext secret matching GenerateTestClient's hash
const TestClientSecret = "secret"

// GenerateTestClient creates a registered confidential client whose secret
// is TestClientSecret
func GenerateTestClient() *storage.Client {
	return &storage.Client{
		ClientID:         "test-client-id",
		ClientSecretHash: testSecretHash,
		ClientName:       "Test Client",
		RedirectURIs:     []string{"https://example.com/callback"},
		Scopes:           []string{"read", "write"},
		GrantTypes:       []string{"authorization_code", "refresh_token"},
		CreatedAt:        time.Now(),
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
