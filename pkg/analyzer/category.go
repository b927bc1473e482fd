package analyzer

import (
	"strings"

	"github.com/ethpandaops/bundleoor/pkg/build"
)

// Budget categories.
const (
	CategoryMain    = "main"
	CategoryVendor  = "vendor"
	CategoryRuntime = "runtime"
)

// categoryPatterns is checked in order; the first category with a matching
// substring wins.
var categoryPatterns = []struct {
	category string
	patterns []string
}{
	{CategoryMain, []string{"main", "index", "app", "bundle"}},
	{CategoryVendor, []string{"vendor", "chunk", "node_modules", "framework", "lib"}},
	{CategoryRuntime, []string{"runtime", "webpack", "polyfill"}},
}

// Category classifies a bundle name into a budget category, falling back to
// main.
func Category(name string) string {
	lower := strings.ToLower(name)

	for _, c := range categoryPatterns {
		for _, p := range c.patterns {
			if strings.Contains(lower, p) {
				return c.category
			}
		}
	}

	return CategoryMain
}

// TotalSize sums raw sizes.
func TotalSize(bundles []build.Bundle) int64 {
	var total int64
	for _, b := range bundles {
		total += b.Size
	}

	return total
}

// TotalGzipSize sums compressed sizes, skipping bundles without one.
func TotalGzipSize(bundles []build.Bundle) int64 {
	var total int64

	for _, b := range bundles {
		if b.GzipSize != nil {
			total += *b.GzipSize
		}
	}

	return total
}
