// Package ratelimit paces navigations per target host so parallel scenarios
// do not flood the site under test.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the pacing configuration.
type Config struct {
	RPS             float64       // Navigations per second per host
	Burst           int           // Burst size per host
	CleanupInterval time.Duration // How often idle host limiters are dropped
}

// DefaultConfig is gentle enough for a public site.
var DefaultConfig = Config{
	RPS:             2,
	Burst:           4,
	CleanupInterval: 10 * time.Minute,
}

type hostEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// HostLimiter manages one token bucket per host.
type HostLimiter struct {
	limiters map[string]*hostEntry
	mu       sync.Mutex
	config   Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHostLimiter creates a limiter and starts its cleanup goroutine.
func NewHostLimiter(config Config) *HostLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	hl := &HostLimiter{
		limiters: make(map[string]*hostEntry),
		config:   config,
		stopCh:   make(chan struct{}),
	}

	hl.wg.Add(1)
	go hl.cleanupLoop()

	return hl
}

// HostKey normalizes a URL to the key its bucket is stored under.
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Host)
}

// Wait blocks until a navigation to rawURL is allowed or ctx is done.
func (hl *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	return hl.GetLimiter(HostKey(rawURL)).Wait(ctx)
}

// Allow reports whether a navigation to rawURL may proceed right now.
func (hl *HostLimiter) Allow(rawURL string) bool {
	return hl.GetLimiter(HostKey(rawURL)).Allow()
}

// GetLimiter returns the bucket for host, creating one if necessary.
func (hl *HostLimiter) GetLimiter(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	entry, ok := hl.limiters[host]
	if !ok {
		entry = &hostEntry{limiter: rate.NewLimiter(rate.Limit(hl.config.RPS), hl.config.Burst)}
		hl.limiters[host] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

// Cleanup removes host limiters idle for longer than the cleanup interval.
func (hl *HostLimiter) Cleanup() {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	cutoff := time.Now().Add(-hl.config.CleanupInterval)
	for host, entry := range hl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(hl.limiters, host)
		}
	}
}

func (hl *HostLimiter) cleanupLoop() {
	defer hl.wg.Done()

	ticker := time.NewTicker(hl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hl.Cleanup()
		case <-hl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to finish. Idempotent.
func (hl *HostLimiter) Stop() {
	hl.stopOnce.Do(func() { close(hl.stopCh) })
	hl.wg.Wait()
}

// Len returns the number of tracked hosts.
func (hl *HostLimiter) Len() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.limiters)
}
