package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

// Endpoint names used as rate-limit dimensions. Handlers pass these to
// Allow together with the caller identity.
const (
	EndpointAuthorize = "authorize"
	EndpointToken     = "token"
	EndpointUserinfo  = "userinfo"
	EndpointValidate  = "validate"
	EndpointRevoke    = "revoke"
)

const (
	// DefaultRateLimitCleanupInterval is how often the cleanup goroutine runs
	DefaultRateLimitCleanupInterval = 5 * time.Minute

	// DefaultMaxRateLimitEntries is the maximum number of (identity, endpoint)
	// pairs to track simultaneously. When the limit is reached, least
	// recently used entries are evicted.
	DefaultMaxRateLimitEntries = 10000
)

// WindowLimit configures a fixed-window limit for one endpoint.
type WindowLimit struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultEndpointLimits returns the per-endpoint request budgets:
// authorize 5/15min, token 20/min, userinfo 100/min, validate 200/min,
// revoke 5/min.
//
// The authorize budget is for embedders that front code issuance with their
// own authorize endpoint; this library issues codes through a direct API
// call and enforces the other budgets in its HTTP handlers.
func DefaultEndpointLimits() map[string]WindowLimit {
	return map[string]WindowLimit{
		EndpointAuthorize: {MaxRequests: 5, Window: 15 * time.Minute},
		EndpointToken:     {MaxRequests: 20, Window: time.Minute},
		EndpointUserinfo:  {MaxRequests: 100, Window: time.Minute},
		EndpointValidate:  {MaxRequests: 200, Window: time.Minute},
		EndpointRevoke:    {MaxRequests: 5, Window: time.Minute},
	}
}

// Decision is the outcome of a rate-limit check. When a request is rejected,
// RetryAfter reports how long until the current window ends.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// windowEntry tracks one fixed window for an (identity, endpoint) pair
type windowEntry struct {
	key         string
	windowStart time.Time
	count       int
	lastAccess  time.Time
}

// EndpointRateLimiter provides fixed-window rate limiting keyed by
// (identity, endpoint), with LRU eviction to prevent unbounded memory growth.
// The read-increment-write sequence for a key is serialized behind the mutex,
// so concurrent requests sharing a key never under-count.
type EndpointRateLimiter struct {
	entries         map[string]*list.Element // key -> list element
	lruList         *list.List               // LRU list of *windowEntry
	mu              sync.RWMutex
	limits          map[string]WindowLimit
	maxEntries      int
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// Statistics
	totalBlocked   int64
	totalAllowed   int64
	totalEvictions int64
	totalCleanups  int64
}

// NewEndpointRateLimiter creates a rate limiter with the given per-endpoint
// limits. A nil limits map uses DefaultEndpointLimits. Endpoints without a
// configured limit are always allowed.
func NewEndpointRateLimiter(limits map[string]WindowLimit, logger *slog.Logger) *EndpointRateLimiter {
	return newEndpointRateLimiter(limits, DefaultMaxRateLimitEntries, DefaultRateLimitCleanupInterval, logger)
}

// newEndpointRateLimiter allows custom capacity and cleanup interval (for testing)
func newEndpointRateLimiter(limits map[string]WindowLimit, maxEntries int, cleanupInterval time.Duration, logger *slog.Logger) *EndpointRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if limits == nil {
		limits = DefaultEndpointLimits()
	}
	if maxEntries < 0 {
		maxEntries = DefaultMaxRateLimitEntries
		logger.Warn("Invalid maxEntries, using default", "maxEntries", maxEntries)
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultRateLimitCleanupInterval
	}

	rl := &EndpointRateLimiter{
		entries:         make(map[string]*list.Element),
		lruList:         list.New(),
		limits:          limits,
		maxEntries:      maxEntries,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	// Start background cleanup goroutine
	go rl.cleanupLoop()

	return rl
}

// Allow checks whether a request from identity against endpoint fits in the
// current fixed window. The first request of a window (or of an expired
// window) starts a fresh window with count 1; subsequent requests increment
// the counter and are rejected once it exceeds the endpoint's MaxRequests.
func (rl *EndpointRateLimiter) Allow(identity, endpoint string) Decision {
	limit, ok := rl.limits[endpoint]
	if !ok || limit.MaxRequests <= 0 {
		return Decision{Allowed: true}
	}

	now := time.Now()
	key := identity + "\x00" + endpoint

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, exists := rl.entries[key]; exists {
		// Move to front (most recently used)
		rl.lruList.MoveToFront(elem)
		entry := elem.Value.(*windowEntry)
		entry.lastAccess = now

		// Expired window: start a new one
		if now.Sub(entry.windowStart) >= limit.Window {
			entry.windowStart = now
			entry.count = 1
			rl.totalAllowed++
			return Decision{Allowed: true}
		}

		entry.count++
		if entry.count > limit.MaxRequests {
			rl.totalBlocked++
			retryAfter := entry.windowStart.Add(limit.Window).Sub(now)
			rl.logger.Warn("Rate limit exceeded",
				"identity", identity,
				"endpoint", endpoint,
				"count", entry.count,
				"max_requests", limit.MaxRequests,
				"window", limit.Window,
				"retry_after", retryAfter)
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}

		rl.totalAllowed++
		return Decision{Allowed: true}
	}

	// Need to create a new entry - check if we're at capacity
	if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
		rl.evictLRU()
	}

	entry := &windowEntry{
		key:         key,
		windowStart: now,
		count:       1,
		lastAccess:  now,
	}
	elem := rl.lruList.PushFront(entry)
	rl.entries[key] = elem

	rl.totalAllowed++
	return Decision{Allowed: true}
}

// evictLRU removes the least recently used entry.
// Must be called with mutex locked.
func (rl *EndpointRateLimiter) evictLRU() {
	elem := rl.lruList.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*windowEntry)
	delete(rl.entries, entry.key)
	rl.lruList.Remove(elem)
	rl.totalEvictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"total_evictions", rl.totalEvictions,
		"current_entries", len(rl.entries))
}

// cleanupLoop periodically removes inactive entries to prevent memory leaks
func (rl *EndpointRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// Cleanup removes entries whose window has long elapsed. An entry is stale
// once its last access is older than twice the longest configured window.
func (rl *EndpointRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var maxWindow time.Duration
	for _, limit := range rl.limits {
		if limit.Window > maxWindow {
			maxWindow = limit.Window
		}
	}
	maxIdleTime := maxWindow * 2

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := rl.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*windowEntry)

		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(rl.entries, entry.key)
			rl.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		rl.totalCleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.entries),
			"total_cleanups", rl.totalCleanups)
	}
}

// Stop gracefully stops the cleanup goroutine.
// Safe to call multiple times.
func (rl *EndpointRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// RateLimitStats holds rate limiter statistics for monitoring
type RateLimitStats struct {
	CurrentEntries int     // Current number of tracked (identity, endpoint) pairs
	MaxEntries     int     // Maximum allowed entries (0 = unlimited)
	TotalBlocked   int64   // Total requests blocked
	TotalAllowed   int64   // Total requests allowed
	TotalEvictions int64   // Total number of LRU evictions
	TotalCleanups  int64   // Total number of cleanup operations
	MemoryPressure float64 // Percentage of max capacity used (0-100)
}

// GetStats returns current rate limiter statistics for monitoring and alerting
func (rl *EndpointRateLimiter) GetStats() RateLimitStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	stats := RateLimitStats{
		CurrentEntries: len(rl.entries),
		MaxEntries:     rl.maxEntries,
		TotalBlocked:   rl.totalBlocked,
		TotalAllowed:   rl.totalAllowed,
		TotalEvictions: rl.totalEvictions,
		TotalCleanups:  rl.totalCleanups,
	}

	if rl.maxEntries > 0 {
		stats.MemoryPressure = float64(stats.CurrentEntries) / float64(rl.maxEntries) * 100.0
	}

	return stats
}
