package report

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/sizeunit"
)

var statusIcons = map[build.Status]string{
	build.StatusOK:      "✅",
	build.StatusWarning: "⚠️",
	build.StatusError:   "❌",
}

// Markdown renders a report as a GitHub-flavoured summary.
func Markdown(rep *Report) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, rep)
	writeOverview(&sb, rep)
	writeBundles(&sb, rep)
	writeMetrics(&sb, rep)
	writeComparison(&sb, rep.Comparison)
	writeRecommendations(&sb, rep.Build)
	writeSystem(&sb, rep.System)

	return sb.String()
}

func writeTitle(sb *strings.Builder, rep *Report) {
	if rep.Build != nil && rep.Build.ID != 0 {
		fmt.Fprintf(sb, "# Bundle Report: build #%d\n\n", rep.Build.ID)

		return
	}

	sb.WriteString("# Bundle Report\n\n")
}

func writeOverview(sb *strings.Builder, rep *Report) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if rep.Target != "" {
		fmt.Fprintf(sb, "| Target | %s |\n", rep.Target)
	}

	if rep.Result != nil {
		fmt.Fprintf(sb, "| Status | %s %s |\n",
			statusIcons[rep.Result.Status], rep.Result.Status)
		fmt.Fprintf(sb, "| Total Size | %s |\n", sizeunit.Format(rep.Result.TotalSize))

		if rep.Result.TotalGzipSize > 0 {
			fmt.Fprintf(sb, "| Total Gzip Size | %s |\n",
				sizeunit.Format(rep.Result.TotalGzipSize))
		}
	}

	if b := rep.Build; b != nil {
		if b.Branch != nil {
			fmt.Fprintf(sb, "| Branch | %s |\n", *b.Branch)
		}

		if b.CommitHash != nil {
			fmt.Fprintf(sb, "| Commit | `%s` |\n", *b.CommitHash)
		}

		if b.URL != nil {
			fmt.Fprintf(sb, "| URL | %s |\n", *b.URL)
		}

		if b.Device != nil {
			fmt.Fprintf(sb, "| Device | %s |\n", *b.Device)
		}

		if !b.Timestamp.IsZero() {
			fmt.Fprintf(sb, "| Timestamp | %s |\n",
				b.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
		}
	}

	sb.WriteByte('\n')
}

func writeBundles(sb *strings.Builder, rep *Report) {
	if rep.Result == nil || len(rep.Result.Bundles) == 0 {
		return
	}

	sb.WriteString("## Bundles\n\n")
	sb.WriteString("| Bundle | Size | Gzip | Delta | Status |\n")
	sb.WriteString("|---|---:|---:|---:|---|\n")

	for _, b := range rep.Result.Bundles {
		gzip := "-"
		if b.GzipSize != nil {
			gzip = sizeunit.Format(*b.GzipSize)
		}

		delta := "-"
		if b.Delta != nil {
			delta = sizeunit.FormatDelta(*b.Delta)
		}

		fmt.Fprintf(sb, "| `%s` | %s | %s | %s | %s |\n",
			b.Name, sizeunit.Format(b.Size), gzip, delta, statusIcons[b.Status])
	}

	sb.WriteByte('\n')
}

func writeMetrics(sb *strings.Builder, rep *Report) {
	if rep.Result == nil || len(rep.Result.Metrics) == 0 {
		return
	}

	sb.WriteString("## Metrics\n\n")
	sb.WriteString("| Metric | Value | Warning | Threshold | Status |\n")
	sb.WriteString("|---|---:|---:|---:|---|\n")

	for _, m := range rep.Result.Metrics {
		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s |\n",
			m.Name, formatMetric(m.Value), formatMetric(m.Warning),
			formatMetric(m.Threshold), statusIcons[m.Status])
	}

	sb.WriteByte('\n')
}

func writeComparison(sb *strings.Builder, cmp *build.Comparison) {
	if cmp == nil || (len(cmp.BundleDiff) == 0 && len(cmp.MetricDiff) == 0) {
		return
	}

	fmt.Fprintf(sb, "## Changes since build #%d\n\n", cmp.OldBuildID)

	if len(cmp.BundleDiff) > 0 {
		sb.WriteString("| Bundle | Before | After | Delta |\n")
		sb.WriteString("|---|---:|---:|---:|\n")

		for _, d := range cmp.BundleDiff {
			fmt.Fprintf(sb, "| `%s` | %s | %s | %s |\n",
				d.Name, sizeunit.Format(d.OldSize), sizeunit.Format(d.NewSize),
				sizeunit.FormatDelta(d.Delta))
		}

		sb.WriteByte('\n')
	}

	if len(cmp.MetricDiff) > 0 {
		sb.WriteString("| Metric | Before | After | Delta |\n")
		sb.WriteString("|---|---:|---:|---:|\n")

		for _, d := range cmp.MetricDiff {
			fmt.Fprintf(sb, "| %s | %s | %s | %+.2f |\n",
				d.Name, formatMetric(d.OldValue), formatMetric(d.NewValue), d.Delta)
		}

		sb.WriteByte('\n')
	}
}

func writeRecommendations(sb *strings.Builder, b *build.Build) {
	if b == nil || len(b.Recommendations) == 0 {
		return
	}

	sb.WriteString("## Recommendations\n\n")

	for _, r := range b.Recommendations {
		fmt.Fprintf(sb, "- %s\n", r)
	}

	sb.WriteByte('\n')
}

func writeSystem(sb *strings.Builder, sys *SystemInfo) {
	if sys == nil {
		return
	}

	sb.WriteString("## System\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if sys.Hostname != "" {
		fmt.Fprintf(sb, "| Hostname | %s |\n", sys.Hostname)
	}

	if sys.CPUModel != "" {
		fmt.Fprintf(sb, "| CPU | %s |\n", sys.CPUModel)
	}

	if sys.CPUCores > 0 {
		fmt.Fprintf(sb, "| Cores | %d |\n", sys.CPUCores)
	}

	if sys.MemoryTotalGB > 0 {
		fmt.Fprintf(sb, "| Memory | %.1f GB |\n", sys.MemoryTotalGB)
	}

	if sys.Platform != "" {
		platform := sys.Platform
		if sys.PlatformVersion != "" {
			platform += " " + sys.PlatformVersion
		}

		fmt.Fprintf(sb, "| Platform | %s |\n", platform)
	}

	if sys.Arch != "" {
		fmt.Fprintf(sb, "| Arch | %s |\n", sys.Arch)
	}

	sb.WriteByte('\n')
}

// formatMetric drops trailing zeros so scores print as integers and CLS
// keeps its precision.
func formatMetric(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")

	return strings.TrimSuffix(s, ".")
}
