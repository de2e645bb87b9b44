// Package browser runs the couponfollow.com scenarios in real browsers.
// All scenario files use BrowserTestEnv via SetupBrowserTestEnv(t).
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/couponfollow-e2e/internal/artifacts"
	"github.com/kuitang/couponfollow-e2e/internal/browserkit"
	"github.com/kuitang/couponfollow-e2e/internal/config"
	"github.com/kuitang/couponfollow-e2e/internal/devices"
	"github.com/kuitang/couponfollow-e2e/internal/errs"
	"github.com/kuitang/couponfollow-e2e/internal/logutil"
	"github.com/kuitang/couponfollow-e2e/internal/metrics"
	"github.com/kuitang/couponfollow-e2e/internal/navigate"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
	"github.com/kuitang/couponfollow-e2e/internal/pages"
	"github.com/kuitang/couponfollow-e2e/internal/ratelimit"
	"github.com/kuitang/couponfollow-e2e/internal/urlutil"
	"github.com/kuitang/couponfollow-e2e/tests/browser/fixturesite"
)

// Short waits for helpers that poll for something already expected on the page.
const (
	browserWaitTimeoutMS = 5000
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv

// BrowserTestEnv is the shared environment for all scenarios: configuration,
// the target site (the fixture site unless E2E_TARGET_URL is set), navigation
// pacing and the artifact sink. The fixture browser is launched lazily.
type BrowserTestEnv struct {
	Config    *config.Config
	Server    *httptest.Server // nil when targeting a live site
	BaseURL   string
	RunID     string
	Sink      artifacts.Sink
	Limiter   *ratelimit.HostLimiter
	Navigator *navigate.Navigator

	fixtureKind browserkit.Kind
	handle      *browserkit.Handle
	browserMu   sync.Mutex
}

// SetupBrowserTestEnv returns the shared environment, creating it on first use.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()
	return getOrCreateSharedBrowserTestEnv(t)
}

func getOrCreateSharedBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture != nil {
		return browserSharedFixture
	}

	env, err := createBrowserTestEnv(context.Background())
	if err != nil {
		t.Fatalf("Failed to create browser test environment: %v", err)
	}
	browserSharedFixture = env
	return browserSharedFixture
}

func createBrowserTestEnv(ctx context.Context) (*BrowserTestEnv, error) {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		return nil, err
	}
	fixtureKind, err := browserkit.ParseKind(cfg.FixtureBrowser)
	if err != nil {
		return nil, err
	}
	sink, err := artifacts.NewSink(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("artifact sink: %w", err)
	}

	env := &BrowserTestEnv{
		Config:      cfg,
		RunID:       artifacts.NewRunID(),
		Sink:        sink,
		fixtureKind: fixtureKind,
	}

	pacing := ratelimit.Config{
		RPS:             cfg.NavRPS,
		Burst:           cfg.NavBurst,
		CleanupInterval: ratelimit.DefaultConfig.CleanupInterval,
	}
	if cfg.UsesFixtureSite() {
		// High limits for the local fixture site
		pacing.RPS = 10000
		pacing.Burst = 100000
		env.Server = httptest.NewServer(fixturesite.Handler())
		env.BaseURL = env.Server.URL
	} else {
		env.BaseURL = cfg.TargetURL
	}
	env.Limiter = ratelimit.NewHostLimiter(pacing)
	env.Navigator = navigate.New(env.Limiter, navigate.Options{
		MaxAttempts: cfg.NavAttempts,
		Backoff:     cfg.NavBackoff,
		Timeout:     cfg.Timeout,
	})

	obs.Pkg("browser").Info("browser_env_ready",
		"run_id", env.RunID,
		"target", logutil.RedactURLForLog(env.BaseURL),
		"fixture_site", cfg.UsesFixtureSite(),
		"fixture_browser", fixtureKind.String(),
		"headless", cfg.Headless,
	)
	return env, nil
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()
	cleanupSharedBrowserTestEnvLocked()
}

func cleanupSharedBrowserTestEnvLocked() {
	if browserSharedFixture == nil {
		return
	}
	if browserSharedFixture.handle != nil {
		_ = browserSharedFixture.handle.Close()
	}
	if browserSharedFixture.Server != nil {
		browserSharedFixture.Server.Close()
	}
	if browserSharedFixture.Limiter != nil {
		browserSharedFixture.Limiter.Stop()
	}
	if cfg := browserSharedFixture.Config; cfg != nil && cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			obs.Pkg("browser").Warn("metrics_write_failed", "path", cfg.MetricsFile, "error", err)
		}
	}
	browserSharedFixture = nil
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupSharedBrowserTestEnv()
	os.Exit(code)
}

// =============================================================================
// Browser helpers
// =============================================================================

// InitBrowser launches the shared fixture browser (E2E_FIXTURE_BROWSER) once.
// Skips if the browser is not installed.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()

	if env.handle != nil {
		return
	}

	handle, err := browserkit.Launch(env.fixtureKind, env.Options())
	if err != nil {
		if errs.Is(err, errs.Unavailable) {
			t.Skip("Playwright not available:", err)
		}
		t.Fatalf("Could not launch %s: %v", env.fixtureKind, err)
	}
	env.handle = handle
}

// FixtureKind is the kind of the shared browser.
func (env *BrowserTestEnv) FixtureKind() browserkit.Kind {
	return env.fixtureKind
}

// Options are the configured launch options.
func (env *BrowserTestEnv) Options() browserkit.Options {
	return browserkit.Options{Headless: env.Config.Headless, SlowMo: env.Config.SlowMo}
}

// Devices is the shared browser's device registry. Requires InitBrowser.
func (env *BrowserTestEnv) Devices() devices.Registry {
	return env.handle.Playwright().Devices
}

// NewContext opens a context on the shared browser, closed when t ends.
func (env *BrowserTestEnv) NewContext(t *testing.T) playwright.BrowserContext {
	t.Helper()

	ctx, err := env.handle.Browser.NewContext()
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	env.prepareContext(t, ctx)
	return ctx
}

// NewDeviceContext opens a context emulating device on the shared browser.
func (env *BrowserTestEnv) NewDeviceContext(t *testing.T, device string) playwright.BrowserContext {
	t.Helper()

	ctx, err := devices.NewContext(env.handle.Browser, env.Devices(), device)
	if err != nil {
		t.Fatalf("could not create context for %q: %v", device, err)
	}
	env.prepareContext(t, ctx)
	return ctx
}

// NewPage opens a page in a fresh context on the shared browser. A screenshot
// and DOM snapshot are stored if t fails.
func (env *BrowserTestEnv) NewPage(t *testing.T) playwright.Page {
	t.Helper()
	return env.NewPageIn(t, env.NewContext(t))
}

// NewPageIn opens a page in ctx with failure capture registered.
func (env *BrowserTestEnv) NewPageIn(t *testing.T, ctx playwright.BrowserContext) playwright.Page {
	t.Helper()

	page, err := ctx.NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	env.CaptureOnFailure(t, page)
	return page
}

// LaunchOrSkip launches a dedicated browser for kind, closed when t ends.
// Branded browsers that are not installed skip the test.
func (env *BrowserTestEnv) LaunchOrSkip(t *testing.T, kind browserkit.Kind, opts browserkit.Options) *browserkit.Handle {
	t.Helper()

	handle, err := browserkit.Launch(kind, opts)
	if err != nil {
		if errs.Is(err, errs.Unavailable) {
			t.Skipf("%s not available: %v", kind, err)
		}
		t.Fatalf("launch %s: %v", kind, err)
	}
	t.Cleanup(func() {
		if err := handle.Close(); err != nil {
			t.Logf("close %s: %v", kind, err)
		}
	})
	return handle
}

// NewHandlePage opens a context and page on a dedicated browser.
func (env *BrowserTestEnv) NewHandlePage(t *testing.T, handle *browserkit.Handle) playwright.Page {
	t.Helper()

	ctx, err := handle.Browser.NewContext()
	if err != nil {
		t.Fatalf("could not create %s context: %v", handle.Kind, err)
	}
	env.prepareContext(t, ctx)
	return env.NewPageIn(t, ctx)
}

// OpenDeviceOrSkip opens a device-emulated page on its own browser of kind.
func (env *BrowserTestEnv) OpenDeviceOrSkip(t *testing.T, device string, kind browserkit.Kind, opts browserkit.Options) *devices.Session {
	t.Helper()

	session, err := devices.Open(device, kind, opts)
	if err != nil {
		if errs.Is(err, errs.Unavailable) {
			t.Skipf("%s not available: %v", kind, err)
		}
		t.Fatalf("open %q on %s: %v", device, kind, err)
	}
	t.Cleanup(func() {
		if err := session.Close(); err != nil {
			t.Logf("close %q session: %v", device, err)
		}
	})
	env.tagContext(t, session.Context)
	env.CaptureOnFailure(t, session.Page)
	return session
}

// prepareContext applies timeouts and tagging and closes ctx when t ends.
func (env *BrowserTestEnv) prepareContext(t *testing.T, ctx playwright.BrowserContext) {
	t.Helper()

	t.Cleanup(func() {
		if err := ctx.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			t.Logf("close browser context: %v", err)
		}
	})
	env.tagContext(t, ctx)
}

func (env *BrowserTestEnv) tagContext(t *testing.T, ctx playwright.BrowserContext) {
	t.Helper()

	ctx.SetDefaultTimeout(env.Config.TimeoutMS())
	ctx.SetDefaultNavigationTimeout(env.Config.TimeoutMS())
	if !env.Config.UsesFixtureSite() {
		return
	}
	// The fixture site logs requests under the test that made them.
	if err := ctx.SetExtraHTTPHeaders(map[string]string{obs.TestHeader: t.Name()}); err != nil {
		t.Fatalf("tag browser context: %v", err)
	}
}

// =============================================================================
// Scenario helpers
// =============================================================================

// Context returns a context carrying the scenario correlation for logs.
func (env *BrowserTestEnv) Context(t *testing.T, browser, device string) context.Context {
	return obs.WithCorrelation(context.Background(), obs.Correlation{
		RunID:   env.RunID,
		Test:    t.Name(),
		Browser: browser,
		Device:  device,
	})
}

// MainPage wraps page in the landing page object for the target site.
func (env *BrowserTestEnv) MainPage(page playwright.Page) *pages.MainPage {
	return pages.NewMainPage(page, env.BaseURL, env.Navigator)
}

// failureTB is the part of testing.TB failure capture needs.
type failureTB interface {
	Helper()
	Name() string
	Failed() bool
	Cleanup(func())
	Logf(format string, args ...any)
}

// CaptureOnFailure stores a screenshot and DOM snapshot of page, keyed by the
// run ID and test name, if t has failed by the time its cleanups run.
// Register it after the cleanup that closes page.
func (env *BrowserTestEnv) CaptureOnFailure(t *testing.T, page artifacts.Page) {
	t.Helper()
	captureOnFailure(t, env.Sink, env.RunID, page)
}

func captureOnFailure(t failureTB, sink artifacts.Sink, runID string, page artifacts.Page) {
	t.Helper()

	t.Cleanup(func() {
		if !t.Failed() {
			return
		}
		ctx := obs.WithCorrelation(context.Background(), obs.Correlation{RunID: runID, Test: t.Name()})
		report, err := artifacts.Capture(ctx, sink, page, runID, t.Name())
		if err != nil {
			t.Logf("failure artifacts incomplete: %v", err)
		}
		if report.Screenshot != "" {
			t.Logf("screenshot: %s", report.Screenshot)
		}
		if report.Snapshot != "" {
			t.Logf("DOM snapshot: %s", report.Snapshot)
		}
		t.Logf("page at failure: url=%s title=%q h1=%q", report.URL, report.Title, report.Heading)
	})
}

// =============================================================================
// Navigation and wait helpers
// =============================================================================

// Navigate navigates to a path on the target site and waits for DOMContentLoaded.
func (env *BrowserTestEnv) Navigate(t *testing.T, page playwright.Page, path string) {
	t.Helper()

	if _, err := env.Navigator.Goto(env.Context(t, "", ""), page, urlutil.Join(env.BaseURL, path)); err != nil {
		t.Fatalf("Failed to navigate to %s: %v", path, err)
	}
}

// WaitForSelector waits for an element to be visible and returns its locator.
func WaitForSelector(t *testing.T, page playwright.Page, selector string) playwright.Locator {
	t.Helper()

	locator := page.Locator(selector)
	first := locator.First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(browserWaitTimeoutMS),
	})
	if err != nil {
		title, _ := page.Title()
		content, _ := page.Content()
		t.Logf("Current URL: %s", logutil.RedactURLForLog(page.URL()))
		t.Logf("Current title: %s", title)
		t.Logf("Content preview: %s", logutil.TruncateForLog(logutil.CollapseWhitespace(content), 500))
		t.Fatalf("Failed to wait for selector %s: %v", selector, err)
	}
	return first
}
