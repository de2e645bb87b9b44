// Command install-browsers downloads the playwright driver and the browsers
// the suite launches: the E2E_BROWSERS matrix, the shared fixture browser and
// the browsers the device scenarios pin.
//
// Usage:
//
//	go run ./cmd/install-browsers
//	go run ./cmd/install-browsers --browsers chromium,webkit -v
//	go run ./cmd/install-browsers --all
//
// Nothing is downloaded when PLAYWRIGHT_PREINSTALLED=1.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kuitang/couponfollow-e2e/internal/browserkit"
	"github.com/kuitang/couponfollow-e2e/internal/config"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
)

// scenarioKinds are launched by the device scenarios regardless of E2E_BROWSERS.
var scenarioKinds = []browserkit.Kind{browserkit.Chrome, browserkit.Edge, browserkit.WebKit, browserkit.Chromium}

func main() {
	obs.Init()
	if err := newRootCmd().Execute(); err != nil {
		obs.Pkg("install-browsers").Error("install_failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		all     bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "install-browsers",
		Short: "Install the playwright driver and the browsers the suite launches",
		Long: `Downloads the playwright driver plus every browser named by E2E_BROWSERS,
E2E_FIXTURE_BROWSER and the device scenarios.

Set PLAYWRIGHT_PREINSTALLED=1 to skip the download.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().BoolVar(&all, "all", false, "Install every supported browser")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show installer output")
	overrides := config.BindFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		logger := obs.Pkg("install-browsers")
		cfg, err := config.Load(*overrides)
		if err != nil {
			return err
		}
		if cfg.SkipInstall {
			logger.Info("install_skipped", "reason", "PLAYWRIGHT_PREINSTALLED=1")
			return nil
		}

		kinds, err := kindsToInstall(cfg, all)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(kinds))
		for _, k := range kinds {
			names = append(names, k.InstallName())
		}
		logger.Info("install_started", "browsers", strings.Join(names, ","))
		if err := browserkit.Install(kinds, verbose); err != nil {
			return err
		}
		logger.Info("install_done")
		return nil
	}
	return cmd
}

// kindsToInstall returns the configured kinds plus the fixture and scenario
// kinds, without duplicates, in first-seen order.
func kindsToInstall(cfg *config.Config, all bool) ([]browserkit.Kind, error) {
	if all {
		return browserkit.Kinds(), nil
	}
	configured, err := browserkit.ParseKinds(append(append([]string{}, cfg.Browsers...), cfg.FixtureBrowser))
	if err != nil {
		return nil, err
	}

	seen := make(map[browserkit.Kind]bool)
	var kinds []browserkit.Kind
	for _, k := range append(configured, scenarioKinds...) {
		if seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}
