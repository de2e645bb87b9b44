package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_WritesTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	set := NewSet(reg)

	set.Navigation(OutcomeOK, 120*time.Millisecond)
	set.Navigation(OutcomeOK, 80*time.Millisecond)
	set.Navigation(OutcomeTransient, time.Second)
	set.Retry()
	set.Artifact("screenshot", nil)
	set.Artifact("snapshot", errors.New("page closed"))

	path := filepath.Join(t.TempDir(), "e2e.prom")
	require.NoError(t, prometheus.WriteToTextfile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `e2e_navigations_total{outcome="ok"} 2`)
	assert.Contains(t, out, `e2e_navigations_total{outcome="transient"} 1`)
	assert.Contains(t, out, "e2e_navigation_retries_total 1")
	assert.Contains(t, out, "e2e_navigation_duration_seconds_count 3")
	assert.Contains(t, out, `e2e_failure_artifacts_total{kind="screenshot",outcome="stored"} 1`)
	assert.Contains(t, out, `e2e_failure_artifacts_total{kind="snapshot",outcome="error"} 1`)
}

func TestNewSet_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewSet(reg)
	assert.Panics(t, func() { NewSet(reg) })
}

func TestWriteTextfile(t *testing.T) {
	require.NoError(t, WriteTextfile(""))

	Default.Retry()
	path := filepath.Join(t.TempDir(), "default.prom")
	require.NoError(t, WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "e2e_navigation_retries_total 1")
}
