package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/couponfollow-e2e/internal/logutil"
	"github.com/kuitang/couponfollow-e2e/internal/metrics"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
)

// Page is the part of playwright.Page needed to capture diagnostics.
type Page interface {
	Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error)
	Content() (string, error)
	URL() string
}

// Report describes what Capture stored.
type Report struct {
	Screenshot string // location, empty when the screenshot failed
	Snapshot   string // location, empty when the DOM snapshot failed
	URL        string
	Title      string
	Heading    string
}

// NewRunID returns a fresh identifier grouping one run's artifacts.
func NewRunID() string {
	return uuid.NewString()
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key builds the artifact key runID/<sanitised test name>.ext. Subtest
// separators become path segments so each case keeps its own artifact. When
// sanitising changes the name, a hash of the raw name is appended to the last
// segment so distinct tests never share a key.
func Key(runID, testName, ext string) string {
	raw := strings.Split(testName, "/")
	segments := make([]string, len(raw))
	changed := false
	for i, seg := range raw {
		clean := strings.Trim(unsafeKeyChars.ReplaceAllString(seg, "_"), "_")
		if clean == "" || clean == "." || clean == ".." {
			clean = "_"
		}
		if clean != seg {
			changed = true
		}
		segments[i] = clean
	}
	if changed {
		segments[len(segments)-1] += fmt.Sprintf("~%08x", uint32(xxhash.Sum64String(testName)))
	}
	return path.Join(runID, strings.Join(segments, "/")) + "." + strings.TrimPrefix(ext, ".")
}

// Capture stores a full-page screenshot and the DOM of page under keys derived
// from runID and testName. Both are attempted; their errors are joined.
func Capture(ctx context.Context, sink Sink, page Page, runID, testName string) (Report, error) {
	logger := obs.From(ctx).With("pkg", "artifacts")
	report := Report{URL: logutil.RedactURLForLog(page.URL())}
	var errList []error

	png, err := page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
	if err == nil {
		key := Key(runID, testName, "png")
		if err = sink.Put(ctx, key, png, "image/png"); err == nil {
			report.Screenshot = sink.Location(key)
		}
	}
	metrics.Default.Artifact("screenshot", err)
	if err != nil {
		errList = append(errList, fmt.Errorf("screenshot: %w", err))
	}

	html, err := page.Content()
	if err == nil {
		report.Title, report.Heading = Summarize(html)
		key := Key(runID, testName, "html")
		if err = sink.Put(ctx, key, []byte(html), "text/html; charset=utf-8"); err == nil {
			report.Snapshot = sink.Location(key)
		}
	}
	metrics.Default.Artifact("snapshot", err)
	if err != nil {
		errList = append(errList, fmt.Errorf("snapshot: %w", err))
	}

	logger.Info("failure_artifacts",
		"screenshot", report.Screenshot,
		"snapshot", report.Snapshot,
		"url", report.URL,
		"title", report.Title,
		"heading", report.Heading,
	)
	return report, errors.Join(errList...)
}

// Summarize extracts the document title and first h1 from html.
func Summarize(html string) (title, heading string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	title = logutil.TruncateForLog(logutil.CollapseWhitespace(doc.Find("title").First().Text()), 120)
	heading = logutil.TruncateForLog(logutil.CollapseWhitespace(doc.Find("h1").First().Text()), 120)
	return title, heading
}
