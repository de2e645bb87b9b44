// Command snapshot opens the target site on an emulated device and stores a
// full-page screenshot and DOM snapshot through the artifact sink
// (E2E_ARTIFACT_DIR, or E2E_ARTIFACT_BUCKET when set).
//
// Usage:
//
//	go run ./cmd/snapshot --device "iPhone 12" --browser webkit
//	go run ./cmd/snapshot --store eBay --target https://couponfollow.com
//	go run ./cmd/snapshot --list-devices
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kuitang/couponfollow-e2e/internal/artifacts"
	"github.com/kuitang/couponfollow-e2e/internal/browserkit"
	"github.com/kuitang/couponfollow-e2e/internal/config"
	"github.com/kuitang/couponfollow-e2e/internal/devices"
	"github.com/kuitang/couponfollow-e2e/internal/metrics"
	"github.com/kuitang/couponfollow-e2e/internal/navigate"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
	"github.com/kuitang/couponfollow-e2e/internal/pages"
	"github.com/kuitang/couponfollow-e2e/internal/ratelimit"
)

type options struct {
	device      string
	browser     string
	store       string
	listDevices bool
	overrides   *config.Overrides
}

func main() {
	obs.Init()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		obs.Pkg("snapshot").Error("snapshot_failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Screenshot the target site on an emulated device",
		Long: `Opens the target site on an emulated device and stores a full-page
screenshot and DOM snapshot through the artifact sink.

With --store the store is searched for from the landing page and its page is
checked and captured instead.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVar(&opts.device, "device", "Desktop Chrome HiDPI", "Device profile to emulate")
	cmd.Flags().StringVar(&opts.browser, "browser", "chromium", "Browser kind: chrome, chromium, firefox, webkit or edge")
	cmd.Flags().StringVar(&opts.store, "store", "", "Search for this store and snapshot its page instead of the landing page")
	cmd.Flags().BoolVar(&opts.listDevices, "list-devices", false, "Print the device profile names and exit")
	opts.overrides = config.BindFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(*opts.overrides)
		if err != nil {
			return err
		}
		err = run(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		if werr := metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			obs.Pkg("snapshot").Warn("metrics_write_failed", "path", cfg.MetricsFile, "error", werr)
		}
		return err
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	kind, err := browserkit.ParseKind(opts.browser)
	if err != nil {
		return err
	}
	launch := browserkit.Options{Headless: cfg.Headless, SlowMo: cfg.SlowMo}

	if opts.listDevices {
		handle, err := browserkit.Launch(kind, launch)
		if err != nil {
			return err
		}
		defer closeLogged(ctx, "browser", handle)
		for _, name := range devices.Names(handle.Playwright().Devices) {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	target := cfg.TargetURL
	if target == "" {
		target = pages.DefaultBaseURL
	}
	runID := artifacts.NewRunID()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{
		RunID:   runID,
		Test:    "snapshot",
		Browser: kind.String(),
		Device:  opts.device,
	})

	sink, err := artifacts.NewSink(ctx, cfg)
	if err != nil {
		return err
	}

	session, err := devices.Open(opts.device, kind, launch)
	if err != nil {
		return err
	}
	defer closeLogged(ctx, "device session", session)
	session.Context.SetDefaultTimeout(cfg.TimeoutMS())
	session.Context.SetDefaultNavigationTimeout(cfg.TimeoutMS())

	limiter := ratelimit.NewHostLimiter(ratelimit.Config{RPS: cfg.NavRPS, Burst: cfg.NavBurst})
	defer limiter.Stop()
	nav := navigate.New(limiter, navigate.Options{
		MaxAttempts: cfg.NavAttempts,
		Backoff:     cfg.NavBackoff,
		Timeout:     cfg.Timeout,
	})

	landing := pages.NewMainPage(session.Page, target, nav)
	if err := landing.Open(ctx); err != nil {
		return err
	}

	name := "snapshot/" + opts.device
	if opts.store != "" {
		query := opts.store
		store, known := knownStore(opts.store)
		if known {
			query = store.Name
		}
		name += "/" + query
		page, err := landing.SearchAndSelect(ctx, query)
		if err != nil {
			return err
		}
		if known {
			if err := pages.NewStorePage(page, cfg.Timeout).Verify(ctx, store); err != nil {
				fmt.Fprintf(out, "check:      %v\n", err)
			} else {
				fmt.Fprintln(out, "check:      ok")
			}
		}
	}

	report, err := artifacts.Capture(ctx, sink, session.Page, runID, name)
	fmt.Fprintf(out, "url:        %s\n", report.URL)
	fmt.Fprintf(out, "title:      %s\n", report.Title)
	fmt.Fprintf(out, "heading:    %s\n", report.Heading)
	fmt.Fprintf(out, "screenshot: %s\n", report.Screenshot)
	fmt.Fprintf(out, "snapshot:   %s\n", report.Snapshot)
	return err
}

// closeLogged closes c and logs a failure; the snapshot result stands either way.
func closeLogged(ctx context.Context, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		obs.From(ctx).Warn("close_failed", "pkg", "snapshot", "what", what, "error", err)
	}
}

func knownStore(name string) (pages.Store, bool) {
	for _, s := range pages.Stores {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return pages.Store{}, false
}
