// Package navigate performs paced page navigations with a bounded retry on
// transient network failures. With MaxAttempts of 1 a navigation is one-shot.
package navigate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/couponfollow-e2e/internal/errs"
	"github.com/kuitang/couponfollow-e2e/internal/logutil"
	"github.com/kuitang/couponfollow-e2e/internal/metrics"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
	"github.com/kuitang/couponfollow-e2e/internal/ratelimit"
)

// Page is the part of playwright.Page a Navigator drives.
type Page interface {
	Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error)
}

// Pacer gates navigations; *ratelimit.HostLimiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Options configures a Navigator.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration // multiplied by the attempt number
	Timeout     time.Duration // per attempt; zero uses the page default
}

// Navigator performs paced navigations.
type Navigator struct {
	pacer Pacer
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

var _ Pacer = (*ratelimit.HostLimiter)(nil)

// New returns a Navigator. A nil pacer disables pacing.
func New(pacer Pacer, opts Options) *Navigator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Navigator{pacer: pacer, opts: opts, sleep: sleepCtx}
}

// Goto navigates page to url and waits for DOMContentLoaded.
func (n *Navigator) Goto(ctx context.Context, page Page, url string) (playwright.Response, error) {
	logger := obs.From(ctx).With("pkg", "navigate", "url", logutil.RedactURLForLog(url))

	gotoOpts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}
	if n.opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(n.opts.Timeout.Milliseconds()))
	}

	var lastErr error
	for attempt := 1; attempt <= n.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "navigation cancelled", err)
		}
		if n.pacer != nil {
			if err := n.pacer.Wait(ctx, url); err != nil {
				return nil, errs.Wrap(errs.Unavailable, "navigation cancelled", err)
			}
		}

		start := time.Now()
		resp, err := page.Goto(url, gotoOpts)
		elapsed := time.Since(start)
		if err == nil {
			metrics.Default.Navigation(metrics.OutcomeOK, elapsed)
			status := 0
			if resp != nil {
				status = resp.Status()
			}
			logger.Debug("navigated", "attempt", attempt, "status", status, "dur_ms", elapsed.Milliseconds())
			return resp, nil
		}
		lastErr = err

		if !IsTransient(err) {
			metrics.Default.Navigation(metrics.OutcomeError, elapsed)
			break
		}
		metrics.Default.Navigation(metrics.OutcomeTransient, elapsed)
		if attempt == n.opts.MaxAttempts {
			break
		}
		metrics.Default.Retry()
		logger.Warn("navigation_retry", "attempt", attempt, "error", logutil.TruncateForLog(err.Error(), 300))
		if err := n.sleep(ctx, n.opts.Backoff*time.Duration(attempt)); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "navigation cancelled", err)
		}
	}

	if IsTransient(lastErr) {
		return nil, errs.Wrap(errs.Unavailable, "navigate to "+logutil.RedactURLForLog(url), lastErr)
	}
	return nil, errs.FromEngine(lastErr, "navigate to "+logutil.RedactURLForLog(url))
}

// IsTransient reports whether a navigation error is worth retrying: network
// level failures and navigation timeouts. HTTP error pages are not errors here.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"net::ERR_CONNECTION",
		"net::ERR_NETWORK",
		"net::ERR_INTERNET_DISCONNECTED",
		"net::ERR_NAME_NOT_RESOLVED",
		"net::ERR_TIMED_OUT",
		"net::ERR_EMPTY_RESPONSE",
		"NS_ERROR_NET",
		"NS_ERROR_CONNECTION_REFUSED",
		"Could not connect",
		"Timeout",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
