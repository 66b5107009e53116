package security

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultAuthAttemptWindow is the window within which failures accumulate
	DefaultAuthAttemptWindow = time.Minute

	// DefaultMaxAuthAttempts is the failure count that triggers a block
	DefaultMaxAuthAttempts = 5

	// DefaultBlockDuration is how long a blocked identity stays locked out
	DefaultBlockDuration = 15 * time.Minute

	// bruteForceCleanupInterval is how often stale attempt records are purged
	bruteForceCleanupInterval = 5 * time.Minute
)

// BruteForceConfig configures the lockout policy.
type BruteForceConfig struct {
	// AttemptWindow is the window within which failures count toward a block
	AttemptWindow time.Duration

	// MaxAttempts is the number of failures within AttemptWindow that
	// triggers a block. Must be at least 1.
	MaxAttempts int

	// BlockDuration is how long an identity stays blocked
	BlockDuration time.Duration
}

// DefaultBruteForceConfig returns the standard policy: 5 failures within
// 60 seconds block the identity for 15 minutes.
func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{
		AttemptWindow: DefaultAuthAttemptWindow,
		MaxAttempts:   DefaultMaxAuthAttempts,
		BlockDuration: DefaultBlockDuration,
	}
}

// Validate checks the policy. Violations are fatal at startup.
func (c BruteForceConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max auth attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.AttemptWindow <= 0 {
		return fmt.Errorf("attempt window must be positive, got %v", c.AttemptWindow)
	}
	if c.BlockDuration <= 0 {
		return fmt.Errorf("block duration must be positive, got %v", c.BlockDuration)
	}
	return nil
}

// attemptRecord tracks authentication failures for one identity
type attemptRecord struct {
	failures     []time.Time
	blockedUntil time.Time
}

// BruteForceGuard tracks failed authentication attempts per identity and
// enforces temporary blocks. It is independent of and composed with the rate
// limiter: an identity can be within rate limits yet blocked for repeated
// auth failures. Failure classification is the caller's job; the guard has
// no knowledge of credential semantics.
type BruteForceGuard struct {
	mu              sync.Mutex
	records         map[string]*attemptRecord
	config          BruteForceConfig
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewBruteForceGuard creates a guard with the given policy. The policy must
// already be validated; NewBruteForceGuard does not re-check it.
func NewBruteForceGuard(config BruteForceConfig, logger *slog.Logger) *BruteForceGuard {
	if logger == nil {
		logger = slog.Default()
	}

	g := &BruteForceGuard{
		records:         make(map[string]*attemptRecord),
		config:          config,
		logger:          logger,
		cleanupInterval: bruteForceCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go g.cleanupLoop()

	return g
}

// RecordFailure appends a failure for the identity and blocks it once the
// failures within the attempt window reach the threshold.
func (g *BruteForceGuard) RecordFailure(identity string) {
	now := time.Now()
	windowStart := now.Add(-g.config.AttemptWindow)

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[identity]
	if !ok {
		rec = &attemptRecord{}
		g.records[identity] = rec
	}

	// Drop failures outside the window (in-place filtering)
	n := 0
	for _, t := range rec.failures {
		if t.After(windowStart) {
			rec.failures[n] = t
			n++
		}
	}
	rec.failures = rec.failures[:n]

	rec.failures = append(rec.failures, now)

	if len(rec.failures) >= g.config.MaxAttempts {
		rec.blockedUntil = now.Add(g.config.BlockDuration)
		g.logger.Warn("Identity blocked after repeated auth failures",
			"identity_hash", hashForLogging(identity),
			"failures_in_window", len(rec.failures),
			"blocked_until", rec.blockedUntil)
	}
}

// RecordSuccess clears the failure history for the identity. A standing
// block is not lifted: successes while blocked cannot shorten the lockout,
// since blocked requests are rejected before credentials are checked.
func (g *BruteForceGuard) RecordSuccess(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[identity]
	if !ok {
		return
	}
	rec.failures = nil
	if rec.blockedUntil.IsZero() {
		delete(g.records, identity)
	}
}

// IsBlocked reports whether the identity is currently blocked and, if so,
// how long until the block lifts.
func (g *BruteForceGuard) IsBlocked(identity string) (bool, time.Duration) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[identity]
	if !ok || rec.blockedUntil.IsZero() {
		return false, 0
	}

	if now.Before(rec.blockedUntil) {
		return true, rec.blockedUntil.Sub(now)
	}

	// Block elapsed: clear it along with the stale failure history
	rec.blockedUntil = time.Time{}
	rec.failures = nil
	delete(g.records, identity)
	return false, 0
}

// cleanupLoop periodically removes stale attempt records
func (g *BruteForceGuard) cleanupLoop() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Cleanup()
		case <-g.stopCleanup:
			return
		}
	}
}

// Cleanup removes records whose block has lifted and whose failures have all
// aged out of the attempt window.
func (g *BruteForceGuard) Cleanup() {
	now := time.Now()
	windowStart := now.Add(-g.config.AttemptWindow)

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for identity, rec := range g.records {
		if !rec.blockedUntil.IsZero() && now.Before(rec.blockedUntil) {
			continue
		}
		live := false
		for _, t := range rec.failures {
			if t.After(windowStart) {
				live = true
				break
			}
		}
		if !live {
			delete(g.records, identity)
			removed++
		}
	}

	if removed > 0 {
		g.logger.Debug("Brute-force guard cleanup completed",
			"removed", removed,
			"remaining", len(g.records))
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call multiple times.
func (g *BruteForceGuard) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopCleanup)
	})
}
