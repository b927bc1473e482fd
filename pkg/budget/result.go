package budget

import (
	"fmt"

	"github.com/ethpandaops/bundleoor/pkg/analyzer"
	"github.com/ethpandaops/bundleoor/pkg/build"
)

// Budgets groups every threshold applied to one analysis run.
type Budgets struct {
	// Bundles maps a bundle category to its size budget.
	Bundles map[string]SizeBudget
	// Total bounds the summed raw size of all bundles.
	Total *SizeBudget
	// Metrics maps a metric key to its budget.
	Metrics map[string]MetricBudget
}

// Result is the evaluated outcome of one analysis run.
type Result struct {
	Bundles       []build.Bundle `json:"bundles" yaml:"bundles"`
	TotalSize     int64          `json:"total_size" yaml:"total_size"`
	TotalGzipSize int64          `json:"total_gzip_size" yaml:"total_gzip_size"`
	TotalStatus   build.Status   `json:"total_status" yaml:"total_status"`
	Metrics       []MetricResult `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Status        build.Status   `json:"status" yaml:"status"`
}

// Check applies budgets to bundles and metrics and combines every verdict
// into an overall status. metrics may be nil.
func Check(
	bundles []build.Bundle, metrics *build.Metrics, budgets Budgets,
) (*Result, error) {
	annotated, err := ApplyBudgets(bundles, budgets.Bundles)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Bundles:       annotated,
		TotalSize:     analyzer.TotalSize(annotated),
		TotalGzipSize: analyzer.TotalGzipSize(annotated),
		TotalStatus:   build.StatusOK,
	}

	if budgets.Total != nil {
		res.TotalStatus, err = CheckTotal(res.TotalSize, *budgets.Total)
		if err != nil {
			return nil, err
		}
	}

	if metrics != nil {
		res.Metrics = CheckMetrics(metrics, budgets.Metrics)
	}

	statuses := make([]build.Status, 0, len(annotated)+len(res.Metrics)+1)
	for _, b := range annotated {
		statuses = append(statuses, b.Status)
	}

	statuses = append(statuses, res.TotalStatus)

	for _, m := range res.Metrics {
		statuses = append(statuses, m.Status)
	}

	res.Status = Combine(statuses...)

	return res, nil
}

// largeUncompressedThreshold is the raw size above which a bundle without
// a compressed size earns a compression advisory.
const largeUncompressedThreshold = 100 * 1024

// Recommend derives advisory messages from a result, in bundle order
// followed by the total and metric advisories.
func Recommend(res *Result, budgets Budgets) []string {
	var recs []string

	for _, b := range res.Bundles {
		switch b.Status {
		case build.StatusError:
			recs = append(recs, fmt.Sprintf(
				"%s exceeds its %s budget; consider code splitting or removing unused dependencies",
				b.Name, analyzer.Category(b.Name),
			))
		case build.StatusWarning:
			recs = append(recs, fmt.Sprintf(
				"%s is approaching its %s budget",
				b.Name, analyzer.Category(b.Name),
			))
		}

		if b.GzipSize == nil && b.Size >= largeUncompressedThreshold {
			recs = append(recs, fmt.Sprintf(
				"%s is large and has no compressed size; enable gzip to track transfer size",
				b.Name,
			))
		}
	}

	if res.TotalStatus == build.StatusError && budgets.Total != nil {
		recs = append(recs, fmt.Sprintf(
			"total bundle size exceeds the %s budget", budgets.Total.Max,
		))
	}

	for _, m := range res.Metrics {
		if m.Status == build.StatusOK {
			continue
		}

		if build.IsScoreMetric(m.Name) {
			recs = append(recs, fmt.Sprintf(
				"%s score %.0f is below the target of %.0f", m.Name, m.Value, m.Warning,
			))

			continue
		}

		recs = append(recs, fmt.Sprintf(
			"%s %.2f is above the target of %.2f", m.Name, m.Value, m.Warning,
		))
	}

	return recs
}
