package report_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/budget"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func i64(v int64) *int64 { return &v }

func str(v string) *string { return &v }

func sampleReport() *report.Report {
	return &report.Report{
		Target:      "web",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Build: &build.Build{
			ID:              7,
			Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Branch:          str("main"),
			CommitHash:      str("abc123"),
			Recommendations: []string{"Bundle main.js exceeds its budget"},
		},
		Result: &budget.Result{
			Bundles: []build.Bundle{
				{Name: "main.js", Size: 2048, GzipSize: i64(512), Delta: i64(100), Status: build.StatusError},
				{Name: "vendor.js", Size: 1024, Status: build.StatusOK},
			},
			TotalSize:     3072,
			TotalGzipSize: 512,
			TotalStatus:   build.StatusOK,
			Metrics: []budget.MetricResult{
				{Name: "cls", Value: 0.125, Warning: 0.1, Threshold: 0.25, Status: build.StatusWarning},
			},
			Status: build.StatusError,
		},
		Comparison: &build.Comparison{
			OldBuildID: 6,
			NewBuildID: 7,
			BundleDiff: []build.BundleDiff{{Name: "main.js", OldSize: 1948, NewSize: 2048, Delta: 100}},
		},
		System: &report.SystemInfo{Hostname: "ci-runner", CPUCores: 8, Arch: "amd64"},
	}
}

func TestMarkdown(t *testing.T) {
	md := report.Markdown(sampleReport())

	assert.Contains(t, md, "# Bundle Report: build #7")
	assert.Contains(t, md, "| Target | web |")
	assert.Contains(t, md, "| Status | ❌ error |")
	assert.Contains(t, md, "| Commit | `abc123` |")
	assert.Contains(t, md, "| `main.js` | 2KiB | 512B | +100B | ❌ |")
	assert.Contains(t, md, "| `vendor.js` | 1KiB | - | - | ✅ |")
	assert.Contains(t, md, "| cls | 0.125 | 0.1 | 0.25 | ⚠️ |")
	assert.Contains(t, md, "## Changes since build #6")
	assert.Contains(t, md, "- Bundle main.js exceeds its budget")
	assert.Contains(t, md, "| Hostname | ci-runner |")
}

func TestMarkdownMinimal(t *testing.T) {
	md := report.Markdown(&report.Report{})

	assert.Contains(t, md, "# Bundle Report\n")
	assert.NotContains(t, md, "## Bundles")
	assert.NotContains(t, md, "## Metrics")
	assert.NotContains(t, md, "## System")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, report.Write(&buf, report.FormatJSON, sampleReport()))

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "web", decoded["target"])

	result, ok := decoded["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "error", result["status"])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, report.Write(&buf, report.FormatYAML, sampleReport()))

	var decoded map[string]any

	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "web", decoded["target"])
}

func TestWriteErrors(t *testing.T) {
	var buf bytes.Buffer

	require.Error(t, report.Write(&buf, "xml", sampleReport()))
	require.Error(t, report.Write(&buf, report.FormatMarkdown, []string{"not a report"}))
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	tests := []struct {
		format string
		name   string
	}{
		{format: report.FormatJSON, name: "report.json"},
		{format: report.FormatYAML, name: "report.yaml"},
		{format: report.FormatMarkdown, name: "report.md"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			path, err := report.WriteFile(dir, tt.format, sampleReport())
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.name), path)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}

	_, err := report.WriteFile(dir, "xml", sampleReport())
	require.Error(t, err)
}
