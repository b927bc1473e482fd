package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTargetCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	analyzeTarget, analyzeOutputPath, analyzeGzip, analyzeIgnore = "", "", false, nil

	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.StringVar(&analyzeTarget, "target", "", "")
	f.StringVar(&analyzeOutputPath, "output-path", "", "")
	f.BoolVar(&analyzeGzip, "gzip", false, "")
	f.StringSliceVar(&analyzeIgnore, "ignore", nil, "")
	require.NoError(t, f.Parse(args))

	return cmd
}

func TestResolveTarget(t *testing.T) {
	cfg := &config.Config{Targets: []config.TargetConfig{
		{Name: "web", OutputPath: "dist", Gzip: true, IgnorePaths: []string{"**/*.map"}},
		{Name: "docs", OutputPath: "site"},
	}}

	tests := []struct {
		name    string
		cfg     *config.Config
		args    []string
		want    config.TargetConfig
		wantErr string
	}{
		{
			name: "named target",
			cfg:  cfg,
			args: []string{"--target", "web"},
			want: cfg.Targets[0],
		},
		{
			name: "flag overrides",
			cfg:  cfg,
			args: []string{"--target", "web", "--gzip=false", "--ignore", "*.txt"},
			want: config.TargetConfig{Name: "web", OutputPath: "dist", IgnorePaths: []string{"*.txt"}},
		},
		{
			name: "ad-hoc output path",
			cfg:  cfg,
			args: []string{"--output-path", "build", "--gzip"},
			want: config.TargetConfig{Name: "default", OutputPath: "build", Gzip: true},
		},
		{
			name:    "ambiguous target",
			cfg:     cfg,
			wantErr: "select one with --target",
		},
		{
			name:    "nothing configured",
			cfg:     &config.Config{},
			wantErr: "no build output path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTargetCmd(t, tt.args...)

			got, err := resolveTarget(cmd, tt.cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBuildID(t *testing.T) {
	id, err := parseBuildID("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		_, err := parseBuildID(bad)
		assert.Error(t, err, bad)
	}
}

func TestReportDirName(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	assert.Equal(t, "7_20260301T123000Z", reportDirName(&build.Build{ID: 7, Timestamp: ts}))
	assert.Equal(t, "dryrun_20260301T123000Z", reportDirName(&build.Build{Timestamp: ts}))
}

func TestAppendSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.md")

	require.NoError(t, appendSummary(path, "# one\n"))
	require.NoError(t, appendSummary(path, "# two\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# one\n# two\n", string(data))

	require.NoError(t, appendSummary(path, strings.Repeat("x", maxSummaryChars+10)))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "_Summary truncated._")
}

func TestTruncateSummary(t *testing.T) {
	short := "# report\n"
	assert.Equal(t, short, truncateSummary(short))

	// A three-byte rune straddles the limit.
	md := strings.Repeat("x", maxSummaryChars-1) + "€" + strings.Repeat("y", 10)

	got := truncateSummary(md)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(got, strings.Repeat("x", maxSummaryChars-1)+"\n"))
	assert.NotContains(t, got, "€")
	assert.Contains(t, got, "_Summary truncated._")
}

func TestBudgetExceededError(t *testing.T) {
	err := &budgetExceededError{status: build.StatusError, total: 2048}
	assert.Equal(t, "budget exceeded (total size 2KiB)", err.Error())
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "92", formatFloat(92))
	assert.Equal(t, "0.05", formatFloat(0.05))
	assert.Equal(t, "1234.5", formatFloat(1234.5))
}
