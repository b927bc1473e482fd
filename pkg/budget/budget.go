package budget

import (
	"fmt"

	"github.com/ethpandaops/bundleoor/pkg/analyzer"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/sizeunit"
)

// SizeBudget is a {warning, max} pair of human-readable sizes.
type SizeBudget struct {
	Warning string `yaml:"warning" mapstructure:"warning" json:"warning"`
	Max     string `yaml:"max" mapstructure:"max" json:"max"`
}

// Bytes parses both thresholds. An empty warning defaults to max.
func (b SizeBudget) Bytes() (warning, max int64, err error) {
	max, err = sizeunit.Parse(b.Max)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing max: %w", err)
	}

	if b.Warning == "" {
		return max, max, nil
	}

	warning, err = sizeunit.Parse(b.Warning)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing warning: %w", err)
	}

	return warning, max, nil
}

// MetricBudget is a threshold pair for one metric. Timing and layout-shift
// metrics use Max (upper bound); category scores use Min (lower bound).
type MetricBudget struct {
	Warning float64  `yaml:"warning" mapstructure:"warning" json:"warning"`
	Max     *float64 `yaml:"max,omitempty" mapstructure:"max" json:"max,omitempty"`
	Min     *float64 `yaml:"min,omitempty" mapstructure:"min" json:"min,omitempty"`
}

// Evaluate returns the verdict for an upper-bound threshold. Reaching max is
// an error and reaching warning is a warning; both bounds are inclusive.
func Evaluate(current, warning, max float64) build.Status {
	switch {
	case current >= max:
		return build.StatusError
	case current >= warning:
		return build.StatusWarning
	default:
		return build.StatusOK
	}
}

// EvaluateBytes is Evaluate for byte counts.
func EvaluateBytes(current, warning, max int64) build.Status {
	switch {
	case current >= max:
		return build.StatusError
	case current >= warning:
		return build.StatusWarning
	default:
		return build.StatusOK
	}
}

// EvaluateScore returns the verdict for a lower-bound threshold where higher
// is better: below min is an error, below warning is a warning.
func EvaluateScore(score, warning, min float64) build.Status {
	switch {
	case score < min:
		return build.StatusError
	case score < warning:
		return build.StatusWarning
	default:
		return build.StatusOK
	}
}

// Combine folds statuses into the most severe one. The empty combination is
// ok.
func Combine(statuses ...build.Status) build.Status {
	overall := build.StatusOK

	for _, s := range statuses {
		if s.Severity() > overall.Severity() {
			overall = s
		}
	}

	return overall
}

// ApplyBudgets returns a copy of bundles with each status set from the
// budget of its category. Bundles whose category has no budget are ok.
func ApplyBudgets(
	bundles []build.Bundle, budgets map[string]SizeBudget,
) ([]build.Bundle, error) {
	parsed := make(map[string][2]int64, len(budgets))

	for category, b := range budgets {
		warning, max, err := b.Bytes()
		if err != nil {
			return nil, fmt.Errorf("budget %q: %w", category, err)
		}

		parsed[category] = [2]int64{warning, max}
	}

	out := make([]build.Bundle, len(bundles))

	for i, bundle := range bundles {
		out[i] = bundle
		out[i].Status = build.StatusOK

		if limits, ok := parsed[analyzer.Category(bundle.Name)]; ok {
			out[i].Status = EvaluateBytes(bundle.Size, limits[0], limits[1])
		}
	}

	return out, nil
}

// CheckTotal evaluates a total size against a budget.
func CheckTotal(total int64, b SizeBudget) (build.Status, error) {
	warning, max, err := b.Bytes()
	if err != nil {
		return build.StatusOK, fmt.Errorf("total budget: %w", err)
	}

	return EvaluateBytes(total, warning, max), nil
}
