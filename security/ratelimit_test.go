package security

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEndpointRateLimiterAllowsWithinLimit(t *testing.T) {
	limits := map[string]WindowLimit{
		EndpointToken: {MaxRequests: 3, Window: time.Minute},
	}
	rl := NewEndpointRateLimiter(limits, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		d := rl.Allow("client-1", EndpointToken)
		if !d.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
}

func TestEndpointRateLimiterBlocksOverLimit(t *testing.T) {
	limits := map[string]WindowLimit{
		EndpointToken: {MaxRequests: 2, Window: time.Minute},
	}
	rl := NewEndpointRateLimiter(limits, nil)
	defer rl.Stop()

	rl.Allow("client-1", EndpointToken)
	rl.Allow("client-1", EndpointToken)

	d := rl.Allow("client-1", EndpointToken)
	if d.Allowed {
		t.Error("third request should be blocked")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", d.RetryAfter)
	}
}

func TestEndpointRateLimiterIndependentIdentities(t *testing.T) {
	limits := map[string]WindowLimit{
		EndpointToken: {MaxRequests: 1, Window: time.Minute},
	}
	rl := NewEndpointRateLimiter(limits, nil)
	defer rl.Stop()

	if d := rl.Allow("client-1", EndpointToken); !d.Allowed {
		t.Error("first request for client-1 should be allowed")
	}
	if d := rl.Allow("client-1", EndpointToken); d.Allowed {
		t.Error("second request for client-1 should be blocked")
	}
	// Another identity has its own window
	if d := rl.Allow("client-2", EndpointToken); !d.Allowed {
		t.Error("first request for client-2 should be allowed")
	}
}

func TestEndpointRateLimiterIndependentEndpoints(t *testing.T) {
	limits := map[string]WindowLimit{
		EndpointToken:  {MaxRequests: 1, Window: time.Minute},
		EndpointRevoke: {MaxRequests: 1, Window: time.Minute},
	}
	rl := NewEndpointRateLimiter(limits, nil)
	defer rl.Stop()

	rl.Allow("client-1", EndpointToken)
	if d := rl.Allow("client-1", EndpointToken); d.Allowed {
		t.Error("token endpoint should be exhausted")
	}
	if d := rl.Allow("client-1", EndpointRevoke); !d.Allowed {
		t.Error("revoke endpoint has its own counter")
	}
}

func TestEndpointRateLimiterWindowReset(t *testing.T) {
	limits := map[string]WindowLimit{
		EndpointToken: {MaxRequests: 1, Window: 50 * time.Millisecond},
	}
	rl := NewEndpointRateLimiter(limits, nil)
	defer rl.Stop()

	rl.Allow("client-1", EndpointToken)
	if d := rl.Allow("client-1", EndpointToken); d.Allowed {
		t.Error("should be blocked inside the window")
	}

	time.Sleep(60 * time.Millisecond)

	if d := rl.Allow("client-1", EndpointToken); !d.Allowed {
		t.Error("window elapsed, request should be allowed again")
	}
}

func TestEndpointRateLimiterUnconfiguredEndpoint(t *testing.T) {
	limits := map[string]WindowLimit{
		EndpointToken: {MaxRequests: 1, Window: time.Minute},
	}
	rl := NewEndpointRateLimiter(limits, nil)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		if d := rl.Allow("client-1", "unknown-endpoint"); !d.Allowed {
			t.Fatal("unconfigured endpoints must always be allowed")
		}
	}
}

// Concurrent requests against one key must never exceed the window budget.
func TestEndpointRateLimiterConcurrentBound(t *testing.T) {
	const maxRequests = 10
	limits := map[string]WindowLimit{
		EndpointToken: {MaxRequests: maxRequests, Window: time.Minute},
	}
	rl := NewEndpointRateLimiter(limits, nil)
	defer rl.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d := rl.Allow("client-1", EndpointToken); d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != maxRequests {
		t.Errorf("allowed %d requests, want exactly %d", allowed, maxRequests)
	}
}

func TestEndpointRateLimiterLRUEviction(t *testing.T) {
	limits := map[string]WindowLimit{
		EndpointToken: {MaxRequests: 100, Window: time.Minute},
	}
	rl := newEndpointRateLimiter(limits, 5, time.Hour, nil)
	defer rl.Stop()

	for i := 0; i < 10; i++ {
		rl.Allow(fmt.Sprintf("client-%d", i), EndpointToken)
	}

	stats := rl.GetStats()
	if stats.CurrentEntries > 5 {
		t.Errorf("entries = %d, want at most 5", stats.CurrentEntries)
	}
	if stats.TotalEvictions != 5 {
		t.Errorf("evictions = %d, want 5", stats.TotalEvictions)
	}
}

func TestEndpointRateLimiterCleanup(t *testing.T) {
	limits := map[string]WindowLimit{
		EndpointToken: {MaxRequests: 5, Window: 10 * time.Millisecond},
	}
	rl := newEndpointRateLimiter(limits, 100, time.Hour, nil)
	defer rl.Stop()

	rl.Allow("client-1", EndpointToken)
	rl.Allow("client-2", EndpointToken)

	// Stale once idle for twice the longest window
	time.Sleep(30 * time.Millisecond)
	rl.Cleanup()

	if stats := rl.GetStats(); stats.CurrentEntries != 0 {
		t.Errorf("entries after cleanup = %d, want 0", stats.CurrentEntries)
	}
}

func TestEndpointRateLimiterDefaults(t *testing.T) {
	limits := DefaultEndpointLimits()

	want := map[string]WindowLimit{
		EndpointAuthorize: {MaxRequests: 5, Window: 15 * time.Minute},
		EndpointToken:     {MaxRequests: 20, Window: time.Minute},
		EndpointUserinfo:  {MaxRequests: 100, Window: time.Minute},
		EndpointValidate:  {MaxRequests: 200, Window: time.Minute},
		EndpointRevoke:    {MaxRequests: 5, Window: time.Minute},
	}
	for endpoint, w := range want {
		got, ok := limits[endpoint]
		if !ok {
			t.Errorf("missing default limit for %q", endpoint)
			continue
		}
		if got != w {
			t.Errorf("limit for %q = %+v, want %+v", endpoint, got, w)
		}
	}
}

func TestEndpointRateLimiterStop(t *testing.T) {
	rl := NewEndpointRateLimiter(nil, nil)
	rl.Stop()
	rl.Stop() // must be safe to call twice
}
