package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "log line is not JSON: %s", line)
		out = append(out, m)
	}
	return out
}

func TestFrom_CarriesCorrelation(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Test: "TestA"})
	ctx = WithCorrelation(ctx, Correlation{Browser: "webkit", Device: "iPhone 12"})
	From(ctx).Info("scenario_start")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "TestA", lines[0]["test"])
	assert.Equal(t, "webkit", lines[0]["browser"])
	assert.Equal(t, "iPhone 12", lines[0]["device"])
	assert.Equal(t, "scenario_start", lines[0]["msg"])
}

func TestWithCorrelation_EmptyFieldsKeepExisting(t *testing.T) {
	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Browser: "chrome"})
	ctx = WithCorrelation(ctx, Correlation{Browser: "  "})

	corr := CorrelationFromContext(ctx)
	assert.Equal(t, "run-1", corr.RunID)
	assert.Equal(t, "chrome", corr.Browser)
}

func TestPkg_TagsPackage(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	Pkg("browserkit").Debug("launch")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "browserkit", lines[0]["pkg"])
}

func TestAccessLogMiddleware_LogsTestHeader(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	handler := RequestContextMiddleware(AccessLogMiddleware("fixturesite", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/site/ebay", nil)
	req.Header.Set(TestHeader, "TestBrowser_StorePage/eBay")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-Id"), "req-"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http_access", lines[0]["msg"])
	assert.Equal(t, "/site/ebay", lines[0]["path"])
	assert.Equal(t, "TestBrowser_StorePage/eBay", lines[0]["test"])
	assert.EqualValues(t, http.StatusTeapot, lines[0]["status"])
	assert.EqualValues(t, len("short and stout"), lines[0]["resp_bytes"])
}
