package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethpandaops/bundleoor/pkg/analyzer"
	"github.com/ethpandaops/bundleoor/pkg/budget"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/output"
	"github.com/ethpandaops/bundleoor/pkg/report"
	"github.com/ethpandaops/bundleoor/pkg/sizeunit"
)

const timeLayout = "2006-01-02 15:04:05"

func resultTables(rep *report.Report) []output.Table {
	res := rep.Result

	bundles := output.Table{
		Title:   fmt.Sprintf("Bundles (%s, total %s)", res.Status, sizeunit.Format(res.TotalSize)),
		Headers: []string{"Name", "Category", "Size", "Gzip", "Delta", "Status"},
	}

	for _, b := range res.Bundles {
		bundles.Rows = append(bundles.Rows, []string{
			b.Name, analyzer.Category(b.Name), sizeunit.Format(b.Size),
			optionalSize(b.GzipSize), optionalDelta(b.Delta), string(b.Status),
		})
	}

	tables := []output.Table{bundles}

	if len(res.Metrics) > 0 {
		metrics := output.Table{
			Title:   "Metrics",
			Headers: []string{"Metric", "Value", "Warning", "Threshold", "Status"},
		}

		for _, m := range res.Metrics {
			metrics.Rows = append(metrics.Rows, []string{
				m.Name, formatFloat(m.Value), formatFloat(m.Warning),
				formatFloat(m.Threshold), string(m.Status),
			})
		}

		tables = append(tables, metrics)
	}

	if rep.Build != nil && len(rep.Build.Recommendations) > 0 {
		recs := output.Table{Title: "Recommendations", Headers: []string{"#", "Recommendation"}}

		for i, r := range rep.Build.Recommendations {
			recs.Rows = append(recs.Rows, []string{strconv.Itoa(i + 1), r})
		}

		tables = append(tables, recs)
	}

	return tables
}

func buildListTable(builds []build.Build) output.Table {
	t := output.Table{
		Title:   fmt.Sprintf("Builds (%d)", len(builds)),
		Headers: []string{"ID", "Timestamp", "Branch", "Commit", "Bundles", "Total", "Gzip", "Status"},
	}

	for i := range builds {
		b := &builds[i]
		t.Rows = append(t.Rows, []string{
			strconv.FormatUint(uint64(b.ID), 10),
			b.Timestamp.UTC().Format(timeLayout),
			deref(b.Branch),
			shortCommit(b.CommitHash),
			strconv.Itoa(len(b.Bundles)),
			sizeunit.Format(b.TotalSize()),
			sizeunit.Format(b.TotalGzipSize()),
			string(worstStatus(b.Bundles)),
		})
	}

	return t
}

func buildDetailTables(b *build.Build) []output.Table {
	overview := output.Table{
		Title:   fmt.Sprintf("Build #%d", b.ID),
		Headers: []string{"Field", "Value"},
		Rows: [][]string{
			{"Timestamp", b.Timestamp.UTC().Format(timeLayout)},
			{"Branch", deref(b.Branch)},
			{"Commit", deref(b.CommitHash)},
			{"URL", deref(b.URL)},
			{"Device", deref(b.Device)},
			{"Total", sizeunit.Format(b.TotalSize())},
			{"Gzip", sizeunit.Format(b.TotalGzipSize())},
		},
	}

	bundles := output.Table{
		Title:   "Bundles",
		Headers: []string{"Name", "Size", "Gzip", "Delta", "Status"},
	}

	for _, bundle := range b.Bundles {
		bundles.Rows = append(bundles.Rows, []string{
			bundle.Name, sizeunit.Format(bundle.Size), optionalSize(bundle.GzipSize),
			optionalDelta(bundle.Delta), string(bundle.Status),
		})
	}

	metrics := output.Table{Title: "Metrics", Headers: []string{"Metric", "Value"}}

	for _, key := range build.MetricKeys {
		if v := b.Metrics.Get(key); v != nil {
			metrics.Rows = append(metrics.Rows, []string{key, formatFloat(*v)})
		}
	}

	recs := output.Table{Title: "Recommendations", Headers: []string{"#", "Recommendation"}}

	for i, r := range b.Recommendations {
		recs.Rows = append(recs.Rows, []string{strconv.Itoa(i + 1), r})
	}

	return []output.Table{overview, bundles, metrics, recs}
}

func comparisonTables(cmp *build.Comparison) []output.Table {
	bundles := output.Table{
		Title:   fmt.Sprintf("Bundles: build #%d -> #%d", cmp.OldBuildID, cmp.NewBuildID),
		Headers: []string{"Name", "Before", "After", "Delta", "Gzip Delta"},
	}

	for _, d := range cmp.BundleDiff {
		bundles.Rows = append(bundles.Rows, []string{
			d.Name, sizeunit.Format(d.OldSize), sizeunit.Format(d.NewSize),
			sizeunit.FormatDelta(d.Delta), optionalDelta(d.GzipDelta),
		})
	}

	metrics := output.Table{
		Title:   "Metrics",
		Headers: []string{"Metric", "Before", "After", "Delta"},
	}

	for _, d := range cmp.MetricDiff {
		metrics.Rows = append(metrics.Rows, []string{
			d.Name, formatFloat(d.OldValue), formatFloat(d.NewValue),
			fmt.Sprintf("%+.2f", d.Delta),
		})
	}

	return []output.Table{bundles, metrics}
}

func trendTable(days int, points []build.TrendPoint) output.Table {
	t := output.Table{
		Title:   fmt.Sprintf("Trend (last %d days)", days),
		Headers: []string{"Date", "Builds", "Total", "Gzip", "Performance", "FCP", "LCP", "CLS", "TTI"},
	}

	for _, p := range points {
		t.Rows = append(t.Rows, []string{
			p.Date, strconv.Itoa(p.Builds),
			sizeunit.Format(p.TotalSize), sizeunit.Format(p.TotalGzipSize),
			optionalFloat(p.PerformanceScore), optionalFloat(p.FCP),
			optionalFloat(p.LCP), optionalFloat(p.CLS), optionalFloat(p.TTI),
		})
	}

	return t
}

func worstStatus(bundles []build.Bundle) build.Status {
	statuses := make([]build.Status, 0, len(bundles))
	for _, b := range bundles {
		statuses = append(statuses, b.Status)
	}

	return budget.Combine(statuses...)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}

	return *s
}

func shortCommit(s *string) string {
	if s == nil {
		return "-"
	}

	if len(*s) > 8 {
		return (*s)[:8]
	}

	return *s
}

func optionalSize(v *int64) string {
	if v == nil {
		return "-"
	}

	return sizeunit.Format(*v)
}

func optionalDelta(v *int64) string {
	if v == nil {
		return "-"
	}

	return sizeunit.FormatDelta(*v)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return "-"
	}

	return formatFloat(*v)
}

func formatFloat(v float64) string {
	s := strings.TrimRight(strconv.FormatFloat(v, 'f', 3, 64), "0")

	return strings.TrimSuffix(s, ".")
}
