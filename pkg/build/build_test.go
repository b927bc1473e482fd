package build_test

import (
	"testing"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusSeverity(t *testing.T) {
	assert.Less(t, build.StatusOK.Severity(), build.StatusWarning.Severity())
	assert.Less(t, build.StatusWarning.Severity(), build.StatusError.Severity())
	assert.Equal(t, build.StatusOK.Severity(), build.Status("bogus").Severity())
}

func TestBuildTotals(t *testing.T) {
	gz := int64(40)

	b := &build.Build{Bundles: []build.Bundle{
		{Name: "a.js", Size: 100, GzipSize: &gz},
		{Name: "b.js", Size: 50},
	}}

	assert.Equal(t, int64(150), b.TotalSize())
	assert.Equal(t, int64(40), b.TotalGzipSize())
	assert.Zero(t, (&build.Build{}).TotalSize())
}

func TestMetricsAccessors(t *testing.T) {
	var nilMetrics *build.Metrics

	assert.Nil(t, nilMetrics.Get(build.MetricFCP))
	assert.Empty(t, nilMetrics.Values())

	m := &build.Metrics{}
	require.True(t, m.Set(build.MetricLCP, 2500))
	require.True(t, m.Set(build.MetricBestPractices, 97))
	assert.False(t, m.Set("speed_index", 1))

	require.NotNil(t, m.LCP)
	assert.InDelta(t, 2500, *m.Get(build.MetricLCP), 1e-9)
	assert.Nil(t, m.Get(build.MetricCLS))
	assert.Nil(t, m.Get("speed_index"))

	assert.Equal(t, map[string]float64{
		build.MetricLCP:           2500,
		build.MetricBestPractices: 97,
	}, m.Values())
}

func TestIsScoreMetric(t *testing.T) {
	for _, key := range build.MetricKeys {
		switch key {
		case build.MetricPerformance, build.MetricAccessibility, build.MetricBestPractices, build.MetricSEO:
			assert.True(t, build.IsScoreMetric(key), key)
		default:
			assert.False(t, build.IsScoreMetric(key), key)
		}
	}
}
