package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func hostGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z]{3,12}\.(com|org|test)`)
}

// =============================================================================
// Property: navigations within the burst are allowed
// =============================================================================

func testHostLimiter_WithinBurst(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	hl := NewHostLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer hl.Stop()

	host := hostGenerator().Draw(t, "host")
	for i := 0; i < burst; i++ {
		if !hl.Allow("https://" + host + "/") {
			t.Fatalf("navigation %d of burst %d should have been allowed", i+1, burst)
		}
	}
	if hl.Allow("https://" + host + "/site/ebay") {
		t.Fatalf("navigation past burst %d should have been blocked", burst)
	}
}

func TestHostLimiter_WithinBurst(t *testing.T) {
	rapid.Check(t, testHostLimiter_WithinBurst)
}

// =============================================================================
// Property: hosts are independent
// =============================================================================

func testHostLimiter_HostIndependence(t *rapid.T) {
	hl := NewHostLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer hl.Stop()

	a := hostGenerator().Draw(t, "a")
	b := hostGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	if !hl.Allow("https://" + a) {
		t.Fatal("first navigation to a should be allowed")
	}
	if hl.Allow("https://" + a) {
		t.Fatal("second navigation to a should be blocked")
	}
	if !hl.Allow("https://" + b) {
		t.Fatal("exhausting a must not affect b")
	}
}

func TestHostLimiter_HostIndependence(t *testing.T) {
	rapid.Check(t, testHostLimiter_HostIndependence)
}

func TestHostKey(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://CouponFollow.com/":       "couponfollow.com",
		"https://couponfollow.com/site/x": "couponfollow.com",
		"http://127.0.0.1:8080/":          "127.0.0.1:8080",
		"not a url":                       "not a url",
	}
	for in, want := range cases {
		if got := HostKey(in); got != want {
			t.Errorf("HostKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHostLimiter_WaitHonoursContext(t *testing.T) {
	t.Parallel()
	hl := NewHostLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer hl.Stop()

	if err := hl.Wait(context.Background(), "https://couponfollow.com/"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := hl.Wait(ctx, "https://couponfollow.com/"); err == nil {
		t.Fatal("expected wait to fail once the bucket is empty and ctx expires")
	}
}

func TestHostLimiter_IdleCleanup(t *testing.T) {
	t.Parallel()
	interval := 50 * time.Millisecond
	hl := NewHostLimiter(Config{RPS: 100, Burst: 10, CleanupInterval: interval})
	defer hl.Stop()

	hl.Allow("https://a.test/")
	hl.Allow("https://b.test/")
	if hl.Len() != 2 {
		t.Fatalf("expected 2 hosts, got %d", hl.Len())
	}

	time.Sleep(interval + 20*time.Millisecond)
	hl.Cleanup()
	if hl.Len() != 0 {
		t.Fatalf("expected idle hosts to be cleaned up, got %d", hl.Len())
	}
}

func TestHostLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	hl := NewHostLimiter(Config{RPS: 1000, Burst: 2000, CleanupInterval: time.Hour})
	defer hl.Stop()

	hosts := []string{"https://a.test/", "https://b.test/", "https://c.test/"}
	var wg sync.WaitGroup
	var allowed atomic.Int64
	for g := 0; g < 12; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if hl.Allow(hosts[(g+i)%len(hosts)]) {
					allowed.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	if allowed.Load() != 600 {
		t.Fatalf("expected all 600 navigations within burst, got %d", allowed.Load())
	}
	if hl.Len() != len(hosts) {
		t.Fatalf("expected %d hosts, got %d", len(hosts), hl.Len())
	}
}

func TestHostLimiter_StopIdempotent(t *testing.T) {
	t.Parallel()
	hl := NewHostLimiter(DefaultConfig)
	hl.Stop()
	hl.Stop()
}
