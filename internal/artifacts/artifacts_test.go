package artifacts

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/couponfollow-e2e/internal/config"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
	"github.com/kuitang/couponfollow-e2e/internal/s3client"
)

const storeHTML = `<!doctype html><html><head><title>
  eBay Coupons | CouponFollow </title></head>
<body><h1>eBay   Coupon &amp; Promo Codes</h1><h1>second</h1></body></html>`

type fakePage struct {
	png        []byte
	html       string
	url        string
	shotErr    error
	contentErr error
	shotOpts   []playwright.PageScreenshotOptions
}

func (p *fakePage) Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error) {
	p.shotOpts = append(p.shotOpts, options...)
	return p.png, p.shotErr
}

func (p *fakePage) Content() (string, error) { return p.html, p.contentErr }
func (p *fakePage) URL() string              { return p.url }

func TestKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		test   string
		prefix string
		hashed bool
	}{
		{"TestBrowser_TopDeals/Galaxy_S5", "run-1/TestBrowser_TopDeals/Galaxy_S5", false},
		{"TestBrowser_StorePage/American Eagle Outfitters", "run-1/TestBrowser_StorePage/American_Eagle_Outfitters", true},
		{"TestX/../../etc/passwd", "run-1/TestX/_/_/etc/passwd", true},
		{"Test:*?<>|", "run-1/Test", true},
	}
	for _, tc := range cases {
		got := Key("run-1", tc.test, ".png")
		if !tc.hashed {
			assert.Equal(t, tc.prefix+".png", got, "Key(%q)", tc.test)
			continue
		}
		assert.Regexp(t, `^`+regexp.QuoteMeta(tc.prefix)+`~[0-9a-f]{8}\.png$`, got, "Key(%q)", tc.test)
	}
}

func TestKey_SanitisedNamesDoNotCollide(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"TestX/a:b", "TestX/a_b"},
		{"TestBrowser_TopDeals/Galaxy_S5#01", "TestBrowser_TopDeals/Galaxy_S5_01"},
		{"Test:*?<>|", "Test"},
		{"TestX/a b", "TestX/a:b"},
	}
	for _, p := range pairs {
		assert.NotEqual(t, Key("run", p[0], "png"), Key("run", p[1], "png"), "%q vs %q", p[0], p[1])
	}
	assert.Equal(t, Key("run", "TestX/a:b", "png"), Key("run", "TestX/a:b", "png"))
}

func TestKey_DistinctTestsDistinctKeys(t *testing.T) {
	name := `Test[A-Za-z0-9_:#*?<>| .-]{1,20}(/[A-Za-z0-9_:#*?<>| .-]{0,20})?`
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.StringMatching(name).Draw(t, "a")
		b := rapid.StringMatching(name).Draw(t, "b")
		if a != b && Key("run", a, "png") == Key("run", b, "png") {
			t.Fatalf("tests %q and %q collide", a, b)
		}
		key := Key("run", a, "png")
		for _, seg := range strings.Split(key, "/") {
			if seg == ".." || seg == "." || seg == "" {
				t.Fatalf("key %q escapes the run directory", key)
			}
		}
	})
}

func TestSummarize_LongMultibyteTitleStaysValidUTF8(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Kohl’s ", 40)
	title, heading := Summarize("<html><head><title>" + long + "</title></head><body><h1>" + long + "</h1></body></html>")
	assert.True(t, utf8.ValidString(title), "title %q", title)
	assert.True(t, utf8.ValidString(heading), "heading %q", heading)
	assert.True(t, strings.HasSuffix(title, "... [truncated]"))
}

func TestNewRunID_Unique(t *testing.T) {
	t.Parallel()
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	title, heading := Summarize(storeHTML)
	assert.Equal(t, "eBay Coupons | CouponFollow", title)
	assert.Equal(t, "eBay Coupon & Promo Codes", heading)

	title, heading = Summarize("not html at all")
	assert.Empty(t, title)
	assert.Empty(t, heading)
}

func TestCapture_FileSink(t *testing.T) {
	var logs bytes.Buffer
	restore := obs.SetOutputForTests(&logs)
	defer restore()

	dir := t.TempDir()
	sink := FileSink{Dir: dir}
	page := &fakePage{png: []byte("\x89PNG"), html: storeHTML, url: "https://couponfollow.com/site/ebay?token=abc"}

	report, err := Capture(context.Background(), sink, page, "run-1", "TestBrowser_StorePage/eBay")
	require.NoError(t, err)

	require.Len(t, page.shotOpts, 1)
	assert.True(t, *page.shotOpts[0].FullPage)

	assert.Equal(t, filepath.Join(dir, "run-1", "TestBrowser_StorePage", "eBay.png"), report.Screenshot)
	assert.Equal(t, filepath.Join(dir, "run-1", "TestBrowser_StorePage", "eBay.html"), report.Snapshot)
	assert.Equal(t, "eBay Coupon & Promo Codes", report.Heading)
	assert.NotContains(t, report.URL, "abc")

	png, err := os.ReadFile(report.Screenshot)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png)

	assert.Contains(t, logs.String(), `"msg":"failure_artifacts"`)
}

func TestCapture_TwoFailuresKeepBothScreenshots(t *testing.T) {
	dir := t.TempDir()
	sink := FileSink{Dir: dir}

	_, err := Capture(context.Background(), sink, &fakePage{png: []byte("a"), html: "<html></html>"}, "run-1", "TestA")
	require.NoError(t, err)
	_, err = Capture(context.Background(), sink, &fakePage{png: []byte("b"), html: "<html></html>"}, "run-1", "TestB")
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(dir, "run-1", "TestA.png"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "run-1", "TestB.png"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))
	assert.Equal(t, "b", string(b))
}

func TestCapture_PartialFailure(t *testing.T) {
	sink := FileSink{Dir: t.TempDir()}
	shotErr := errors.New("page closed")
	page := &fakePage{shotErr: shotErr, html: storeHTML}

	report, err := Capture(context.Background(), sink, page, "run-1", "TestA")
	require.Error(t, err)
	assert.ErrorIs(t, err, shotErr)
	assert.Empty(t, report.Screenshot)
	assert.NotEmpty(t, report.Snapshot, "DOM snapshot is still stored when the screenshot fails")
}

func TestCapture_S3Sink(t *testing.T) {
	client := s3client.TestClient(t, "e2e-artifacts")
	sink := S3Sink{Client: client, Prefix: "e2e/"}
	page := &fakePage{png: []byte("png"), html: storeHTML}

	report, err := Capture(context.Background(), sink, page, "run-9", "TestBrowser_StaffPicks/iPhone_12")
	require.NoError(t, err)
	assert.Equal(t, "s3://e2e-artifacts/e2e/run-9/TestBrowser_StaffPicks/iPhone_12.png", report.Screenshot)

	keys, err := client.ListKeys(context.Background(), "e2e/run-9/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"e2e/run-9/TestBrowser_StaffPicks/iPhone_12.png",
		"e2e/run-9/TestBrowser_StaffPicks/iPhone_12.html",
	}, keys)
}

func TestNewSink(t *testing.T) {
	t.Parallel()

	sink, err := NewSink(context.Background(), &config.Config{ArtifactDir: "out"})
	require.NoError(t, err)
	assert.Equal(t, FileSink{Dir: "out"}, sink)

	sink, err = NewSink(context.Background(), &config.Config{
		ArtifactBucket:     "bucket",
		AWSEndpointS3:      "http://127.0.0.1:9000",
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "id",
		AWSSecretAccessKey: "secret",
	})
	require.NoError(t, err)
	s3Sink, ok := sink.(S3Sink)
	require.True(t, ok)
	assert.Equal(t, "s3://bucket/e2e/x.png", s3Sink.Location("x.png"))
}
