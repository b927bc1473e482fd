package budget

import (
	"fmt"
	"sort"

	"github.com/ethpandaops/bundleoor/pkg/build"
)

// MetricResult is the verdict for one metric.
type MetricResult struct {
	Name      string       `json:"name" yaml:"name"`
	Value     float64      `json:"value" yaml:"value"`
	Warning   float64      `json:"warning" yaml:"warning"`
	Threshold float64      `json:"threshold" yaml:"threshold"`
	Status    build.Status `json:"status" yaml:"status"`
}

// ValidateMetricBudgets checks that every budget names a known metric and
// carries the bound matching its direction.
func ValidateMetricBudgets(budgets map[string]MetricBudget) error {
	for name, b := range budgets {
		if build.IsScoreMetric(name) {
			if b.Min == nil {
				return fmt.Errorf("metric budget %q: min is required for scores", name)
			}

			continue
		}

		if !isKnownMetric(name) {
			return fmt.Errorf("metric budget %q: unknown metric", name)
		}

		if b.Max == nil {
			return fmt.Errorf("metric budget %q: max is required", name)
		}
	}

	return nil
}

func isKnownMetric(name string) bool {
	for _, k := range build.MetricKeys {
		if k == name {
			return true
		}
	}

	return false
}

// CheckMetrics evaluates each budgeted metric that is present on m. Results
// are sorted by metric name.
func CheckMetrics(
	m *build.Metrics, budgets map[string]MetricBudget,
) []MetricResult {
	results := make([]MetricResult, 0, len(budgets))

	for name, b := range budgets {
		v := m.Get(name)
		if v == nil {
			continue
		}

		r := MetricResult{Name: name, Value: *v, Warning: b.Warning}

		switch {
		case build.IsScoreMetric(name) && b.Min != nil:
			r.Threshold = *b.Min
			r.Status = EvaluateScore(*v, b.Warning, *b.Min)
		case b.Max != nil:
			r.Threshold = *b.Max
			r.Status = Evaluate(*v, b.Warning, *b.Max)
		default:
			continue
		}

		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})

	return results
}
