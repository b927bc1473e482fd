package audit_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethpandaops/bundleoor/pkg/audit"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		layout audit.Layout
		want   map[string]float64
	}{
		{
			name:   "flat",
			input:  `{"performance": 92, "fcp": 1200, "cls": 0.05}`,
			layout: audit.LayoutFlat,
			want: map[string]float64{
				build.MetricPerformance: 92,
				build.MetricFCP:         1200,
				build.MetricCLS:         0.05,
			},
		},
		{
			name:   "flat with aliases and nulls",
			input:  `{"best-practices": 88, "largestContentfulPaint": 2400, "tti": null}`,
			layout: audit.LayoutFlat,
			want: map[string]float64{
				build.MetricBestPractices: 88,
				build.MetricLCP:           2400,
			},
		},
		{
			name: "lighthouse",
			input: `{
				"categories": {
					"performance": {"score": 0.91},
					"seo": {"score": 1},
					"accessibility": {"score": null}
				},
				"audits": {
					"first-contentful-paint": {"numericValue": 812.5},
					"interactive": {"numericValue": 3100},
					"speed-index": {"numericValue": 1500}
				}
			}`,
			layout: audit.LayoutLighthouse,
			want: map[string]float64{
				build.MetricPerformance: 91,
				build.MetricSEO:         100,
				build.MetricFCP:         812.5,
				build.MetricTTI:         3100,
			},
		},
		{
			name: "browsertime page summary",
			input: `{"googleWebVitals": {
				"firstContentfulPaint": {"median": 640},
				"largestContentfulPaint": {"median": 1900},
				"cumulativeLayoutShift": {"median": 0.02}
			}}`,
			layout: audit.LayoutBrowsertime,
			want: map[string]float64{
				build.MetricFCP: 640,
				build.MetricLCP: 1900,
				build.MetricCLS: 0.02,
			},
		},
		{
			name:   "browsertime array",
			input:  `[{"googleWebVitals": {"largestContentfulPaint": {"median": 1500}}}]`,
			layout: audit.LayoutBrowsertime,
			want:   map[string]float64{build.MetricLCP: 1500},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics, layout, err := audit.Parse([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.layout, layout)

			got := metrics.Values()
			require.Len(t, got, len(tt.want))

			for k, v := range tt.want {
				assert.InDelta(t, v, got[k], 1e-9, k)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		isErr error
	}{
		{name: "invalid json", input: `{`},
		{name: "unknown metric", input: `{"fcp": 1, "speed_index": 2}`},
		{name: "non numeric", input: `{"fcp": "fast"}`},
		{name: "empty object", input: `{}`, isErr: audit.ErrNoMetrics},
		{name: "empty array", input: `[]`, isErr: audit.ErrNoMetrics},
		{name: "lighthouse without values", input: `{"categories": {}}`, isErr: audit.ErrNoMetrics},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := audit.Parse([]byte(tt.input))
			require.Error(t, err)

			if tt.isErr != nil {
				assert.ErrorIs(t, err, tt.isErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"lcp": 2100}`), 0o600))

	metrics, err := audit.Load(path)
	require.NoError(t, err)
	require.NotNil(t, metrics.LCP)
	assert.InDelta(t, 2100, *metrics.LCP, 1e-9)

	_, err = audit.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
