package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/ipcareas/internal/merge"
)

func TestObserveMerge(t *testing.T) {
	m := New()

	m.ObserveMerge("download:2025", merge.Stats{Added: 3, Updated: 1})
	m.ObserveMerge("download:2025", merge.Stats{Added: 2, Skipped: 4})

	assert.Equal(t, 5.0, testutil.ToFloat64(m.MergeFeatures.WithLabelValues("download:2025", OutcomeAdded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergeFeatures.WithLabelValues("download:2025", OutcomeUpdate)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MergeFeatures.WithLabelValues("download:2025", OutcomeSkip)))
}

func TestRegistryIsPrivate(t *testing.T) {
	a, b := New(), New()

	a.Fetches.WithLabelValues(ResultOK).Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Fetches.WithLabelValues(ResultOK)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Fetches.WithLabelValues(ResultOK)))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Countries.WithLabelValues(ResultOK).Add(2)
	m.DatasetFeatures.WithLabelValues("KEN_combined").Set(12)
	m.SimplifyFailures.WithLabelValues("no_change").Inc()

	path := filepath.Join(t.TempDir(), "ipcareas.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `ipcareas_countries_total{result="ok"} 2`)
	assert.Contains(t, out, `ipcareas_dataset_features{dataset="KEN_combined"} 12`)
	assert.Contains(t, out, `ipcareas_simplify_failures_total{reason="no_change"} 1`)
}

func TestWriteTextfileBadDir(t *testing.T) {
	m := New()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "ipcareas.prom"))
	assert.Error(t, err)
}
