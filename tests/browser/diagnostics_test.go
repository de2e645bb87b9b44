package browser

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/couponfollow-e2e/internal/artifacts"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// TestBrowser_FailureArtifactsFromLivePage verifies a capture of a real page
// yields a PNG screenshot and the page's HTML under the test's key.
func TestBrowser_FailureArtifactsFromLivePage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	env := SetupBrowserTestEnv(t)
	env.InitBrowser(t)

	page := env.NewPage(t)
	ctx := env.Context(t, env.FixtureKind().String(), "")
	main := env.MainPage(page)
	require.NoError(t, main.Open(ctx))

	sink := artifacts.FileSink{Dir: t.TempDir()}
	report, err := artifacts.Capture(ctx, sink, page, env.RunID, t.Name())
	require.NoError(t, err)

	assert.Equal(t, sink.Location(artifacts.Key(env.RunID, t.Name(), "png")), report.Screenshot)
	png, err := os.ReadFile(report.Screenshot)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngSignature), "screenshot is not a PNG")

	html, err := os.ReadFile(report.Snapshot)
	require.NoError(t, err)
	assert.Contains(t, string(html), "search-field")
	assert.Contains(t, report.Title, "CouponFollow")
}

// TestBrowser_CaptureOnFailure verifies the teardown hook stores artifacts for
// a failed test and nothing for a passing one.
func TestBrowser_CaptureOnFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	env := SetupBrowserTestEnv(t)
	env.InitBrowser(t)

	page := env.NewPage(t)
	env.Navigate(t, page, "/")

	for _, failed := range []bool{false, true} {
		dir := t.TempDir()
		tb := &recordingTB{name: "TestBrowser_TopDeals/Galaxy_S5", failed: failed}
		captureOnFailure(tb, artifacts.FileSink{Dir: dir}, "run-7", page)
		tb.runCleanups()

		_, err := os.Stat(artifacts.FileSink{Dir: dir}.Location(artifacts.Key("run-7", tb.name, "png")))
		if failed {
			assert.NoError(t, err, "screenshot missing for failed test")
		} else {
			assert.True(t, os.IsNotExist(err), "screenshot written for passing test")
		}
	}
}
