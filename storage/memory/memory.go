// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatewarden/gatewarden/instrumentation"
	"github.com/gatewarden/gatewarden/security"
	"github.com/gatewarden/gatewarden/storage"
)

const (
	// revokedTokenRetention is how long revoked token records are kept so
	// that replays of rotated refresh tokens surface as ErrTokenRevoked
	// instead of ErrTokenNotFound.
	revokedTokenRetention = 24 * time.Hour
)

// tokenRecord wraps a stored token. The record is keyed by a SHA-256 digest
// of the opaque value, so plaintext token values never serve as map keys; the
// Value field inside is additionally encrypted when an encryptor is set.
type tokenRecord struct {
	token   *storage.Token
	pairKey string // digest key of the paired token, empty if unpaired
}

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu sync.RWMutex

	codes   map[string]*storage.AuthorizationCode // code value -> record
	tokens  map[string]*tokenRecord               // digest of token value -> record
	clients map[string]*storage.Client            // client ID -> record

	// Token value encryption at rest (optional)
	encryptor *security.Encryptor

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for lock-free stats access
	codesCountAtomic   atomic.Int64
	tokensCountAtomic  atomic.Int64
	clientsCountAtomic atomic.Int64
	codesConsumed      atomic.Int64
	tokensRevoked      atomic.Int64
	expiredRemoved     atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.CodeStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
	_ storage.ClientStore = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
// (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. If cleanupInterval is 0 or negative, the default of 1 minute is
// used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		codes:           make(map[string]*storage.AuthorizationCode),
		tokens:          make(map[string]*tokenRecord),
		clients:         make(map[string]*storage.Client),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetEncryptor sets the token encryptor for encryption at rest
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Token encryption at rest enabled for storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call multiple times.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// tokenKey derives the storage key for a token value
func tokenKey(value string) string {
	digest := sha256.Sum256([]byte(value))
	return hex.EncodeToString(digest[:])
}

// ============================================================
// CodeStore implementation
// ============================================================

// SaveAuthorizationCode stores a newly issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("invalid authorization code")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *code
	s.codes[code.Code] = &stored
	s.codesCountAtomic.Store(int64(len(s.codes)))
	return nil
}

// GetAuthorizationCode retrieves an authorization code without consuming it
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}
	if security.IsExpired(rec.ExpiresAt, time.Now()) {
		return nil, storage.ErrCodeExpired
	}
	if rec.Consumed {
		return nil, storage.ErrCodeConsumed
	}

	out := *rec
	return &out, nil
}

// AtomicConsumeAuthorizationCode atomically validates and consumes an
// authorization code. The full check-and-mark sequence runs under the write
// lock: exactly one of any number of concurrent callers wins.
func (s *Store) AtomicConsumeAuthorizationCode(ctx context.Context, code, state string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "consume_authorization_code", err, startTime)
	}()

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[code]
	if !ok {
		err = storage.ErrCodeNotFound
		return nil, err
	}
	if rec.Consumed {
		err = storage.ErrCodeConsumed
		return nil, err
	}
	if security.IsExpired(rec.ExpiresAt, now) {
		err = storage.ErrCodeExpired
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(rec.State), []byte(state)) != 1 {
		err = storage.ErrStateMismatch
		return nil, err
	}

	rec.Consumed = true
	s.codesConsumed.Add(1)

	out := *rec
	return &out, nil
}

// DeleteAuthorizationCode removes an authorization code
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, code)
	s.codesCountAtomic.Store(int64(len(s.codes)))
	return nil
}

// ============================================================
// TokenStore implementation
// ============================================================

// SaveToken stores a token record keyed by a digest of its opaque value.
// The value itself is encrypted at rest when an encryptor is configured.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	ctx, span := s.startStorageSpan(ctx, "save_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_token", err, startTime)
	}()

	if token == nil || token.Value == "" {
		err = fmt.Errorf("invalid token")
		return err
	}
	if token.Kind != storage.TokenKindAccess && token.Kind != storage.TokenKindRefresh {
		err = fmt.Errorf("invalid token kind %q", token.Kind)
		return err
	}

	stored := *token
	var pairKey string
	if stored.Pair != "" {
		pairKey = tokenKey(stored.Pair)
		stored.Pair = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encryptor != nil && s.encryptor.IsEnabled() {
		encrypted, encErr := s.encryptor.Encrypt(stored.Value)
		if encErr != nil {
			err = fmt.Errorf("failed to encrypt token value: %w", encErr)
			return err
		}
		stored.Value = encrypted
	}

	s.tokens[tokenKey(token.Value)] = &tokenRecord{
		token:   &stored,
		pairKey: pairKey,
	}
	s.tokensCountAtomic.Store(int64(len(s.tokens)))
	return nil
}

// GetToken retrieves a token record by its opaque value
func (s *Store) GetToken(ctx context.Context, value string) (*storage.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tokens[tokenKey(value)]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	if rec.token.Revoked {
		return nil, storage.ErrTokenRevoked
	}
	if security.IsTokenExpired(rec.token.ExpiresAt) {
		return nil, storage.ErrTokenExpired
	}

	out := *rec.token
	out.Value = value
	return &out, nil
}

// AtomicConsumeRefreshToken atomically invalidates a refresh token for
// rotation. The record is marked revoked rather than deleted, so a replay of
// the rotated value surfaces as ErrTokenRevoked (a theft indicator) until
// cleanup removes it. The paired access token is revoked in the same
// critical section.
func (s *Store) AtomicConsumeRefreshToken(ctx context.Context, value string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "consume_refresh_token", err, startTime)
	}()

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[tokenKey(value)]
	if !ok || rec.token.Kind != storage.TokenKindRefresh {
		err = storage.ErrTokenNotFound
		return nil, err
	}
	if rec.token.Revoked {
		err = storage.ErrTokenRevoked
		return nil, err
	}
	if security.IsTokenExpired(rec.token.ExpiresAt) {
		err = storage.ErrTokenExpired
		return nil, err
	}

	rec.token.Revoked = true
	rec.token.RevokedAt = now
	s.revokePairLocked(rec, now)
	s.tokensRevoked.Add(1)

	out := *rec.token
	out.Value = value
	out.Revoked = false
	out.RevokedAt = time.Time{}
	return &out, nil
}

// RevokeToken marks a token terminal. Revoking a refresh token also revokes
// its paired access token. Unknown and already-revoked tokens are not
// errors.
func (s *Store) RevokeToken(ctx context.Context, value string) error {
	ctx, span := s.startStorageSpan(ctx, "revoke_token")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "revoke_token", nil, startTime)
	}()

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[tokenKey(value)]
	if !ok || rec.token.Revoked {
		return nil
	}

	rec.token.Revoked = true
	rec.token.RevokedAt = now
	s.tokensRevoked.Add(1)

	if rec.token.Kind == storage.TokenKindRefresh {
		s.revokePairLocked(rec, now)
	}
	return nil
}

// revokePairLocked revokes the paired token of rec.
// Must be called with the write lock held.
func (s *Store) revokePairLocked(rec *tokenRecord, now time.Time) {
	if rec.pairKey == "" {
		return
	}
	pair, ok := s.tokens[rec.pairKey]
	if !ok || pair.token.Revoked {
		return
	}
	pair.token.Revoked = true
	pair.token.RevokedAt = now
	s.tokensRevoked.Add(1)
}

// DeleteToken removes a token record entirely
func (s *Store) DeleteToken(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, tokenKey(value))
	s.tokensCountAtomic.Store(int64(len(s.tokens)))
	return nil
}

// ============================================================
// ClientStore implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *client
	s.clients[client.ClientID] = &stored
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	out := *client
	return &out, nil
}

// ValidateClientSecret validates a client's secret using bcrypt.
// A bcrypt comparison always runs, against a dummy hash when the client does
// not exist, so response timing does not reveal which client IDs are
// registered.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	// Pre-computed bcrypt hash of "test", compared when the client is unknown
	dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

	client, err := s.GetClient(ctx, clientID)

	hashToCompare := dummyHash
	isPublicClient := false

	if err == nil {
		if client.ClientSecretHash == "" {
			isPublicClient = true
		} else {
			hashToCompare = client.ClientSecretHash
		}
	}

	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(clientSecret))

	// Public clients carry no secret; authentication succeeds when none is
	// presented
	if isPublicClient && err == nil {
		if clientSecret == "" {
			return nil
		}
		return storage.ErrInvalidClientSecret
	}

	if err != nil {
		return storage.ErrInvalidClientSecret
	}
	if bcryptErr != nil {
		return storage.ErrInvalidClientSecret
	}
	return nil
}

// ============================================================
// Cleanup
// ============================================================

// cleanupLoop periodically removes expired and stale records
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// Cleanup removes expired authorization codes, expired tokens, and revoked
// token records past the retention period.
func (s *Store) Cleanup() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for code, rec := range s.codes {
		if security.IsExpired(rec.ExpiresAt, now) {
			delete(s.codes, code)
			removed++
		}
	}

	for key, rec := range s.tokens {
		switch {
		case rec.token.Revoked && now.Sub(rec.token.RevokedAt) > revokedTokenRetention:
			delete(s.tokens, key)
			removed++
		case security.IsExpired(rec.token.ExpiresAt, now):
			delete(s.tokens, key)
			removed++
		}
	}

	s.codesCountAtomic.Store(int64(len(s.codes)))
	s.tokensCountAtomic.Store(int64(len(s.tokens)))

	if removed > 0 {
		s.expiredRemoved.Add(int64(removed))
		s.logger.Debug("Storage cleanup completed",
			"removed", removed,
			"codes", len(s.codes),
			"tokens", len(s.tokens))
	}
}

// ============================================================
// Stats
// ============================================================

// Stats holds storage statistics for monitoring
type Stats struct {
	Codes          int64 // Current number of stored authorization codes
	Tokens         int64 // Current number of stored token records
	Clients        int64 // Current number of registered clients
	CodesConsumed  int64 // Total codes consumed
	TokensRevoked  int64 // Total token revocations (including rotations)
	ExpiredRemoved int64 // Total records removed by cleanup
}

// GetStats returns current storage statistics
func (s *Store) GetStats() Stats {
	return Stats{
		Codes:          s.codesCountAtomic.Load(),
		Tokens:         s.tokensCountAtomic.Load(),
		Clients:        s.clientsCountAtomic.Load(),
		CodesConsumed:  s.codesConsumed.Load(),
		TokensRevoked:  s.tokensRevoked.Load(),
		ExpiredRemoved: s.expiredRemoved.Load(),
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))
}

// recordStorageOperation records metrics for a storage operation and sets the
// span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
