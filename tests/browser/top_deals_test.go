// Package browser contains Playwright scenarios for the landing page's
// "Today's Top Coupons" section across emulated devices.
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/couponfollow-e2e/internal/browserkit"
	"github.com/kuitang/couponfollow-e2e/internal/pages"
)

// Top deals render in rows of three, so any full layout shows 3, 6 or 9 cards.
var topDealCounts = []int{3, 6, 9}

var topDealDevices = []string{"Galaxy S5", "Galaxy S8 landscape", "Desktop Chrome HiDPI"}

// TestBrowser_TopDeals verifies the top deal grid shows a whole number of rows
// on phones, a rotated phone and a HiDPI desktop, each on a headless Chrome.
func TestBrowser_TopDeals(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	env := SetupBrowserTestEnv(t)

	for _, device := range topDealDevices {
		t.Run(device, func(t *testing.T) {
			session := env.OpenDeviceOrSkip(t, device, browserkit.Chrome, browserkit.Options{Headless: true})
			ctx := env.Context(t, browserkit.Chrome.String(), device)

			main := env.MainPage(session.Page)
			require.NoError(t, main.Open(ctx))
			WaitForSelector(t, main.Page(), pages.TopDealSelector)

			count, err := main.TopDeals().Count()
			require.NoError(t, err)
			assert.Contains(t, topDealCounts, count, "top deal count on %s", device)
		})
	}
}

// TestBrowser_TopDeals_FailingOnPurpose asserts an impossible top deal count
// so the failure artifacts path runs end to end. Opt in with
// E2E_INCLUDE_FAILING=true.
func TestBrowser_TopDeals_FailingOnPurpose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	env := SetupBrowserTestEnv(t)
	if !env.Config.IncludeFailing {
		t.Skip("deliberately failing scenario; set E2E_INCLUDE_FAILING=true to run it")
	}

	const device = "Desktop Chrome HiDPI"
	session := env.OpenDeviceOrSkip(t, device, browserkit.Chrome, browserkit.Options{Headless: true})
	ctx := env.Context(t, browserkit.Chrome.String(), device)

	main := env.MainPage(session.Page)
	require.NoError(t, main.Open(ctx))
	WaitForSelector(t, main.Page(), pages.TopDealSelector)

	count, err := main.TopDeals().Count()
	require.NoError(t, err)
	assert.Contains(t, []int{1}, count, "expected to fail; check the screenshot and DOM snapshot in the test log")
}
