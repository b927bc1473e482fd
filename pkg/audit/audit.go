// Package audit loads page audit results produced by an external runner
// into build metrics. Three layouts are understood: a flat object keyed by
// metric name, a Lighthouse result (LHR) and a sitespeed.io browsertime
// summary.
package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethpandaops/bundleoor/pkg/build"
)

// ErrNoMetrics is returned when a file parses but carries no known metric.
var ErrNoMetrics = errors.New("no metrics found")

// Layout identifies the shape of an audit file.
type Layout string

const (
	LayoutFlat        Layout = "flat"
	LayoutLighthouse  Layout = "lighthouse"
	LayoutBrowsertime Layout = "browsertime"
)

// lighthouseCategories maps LHR category ids to metric keys.
var lighthouseCategories = map[string]string{
	"performance":    build.MetricPerformance,
	"accessibility":  build.MetricAccessibility,
	"best-practices": build.MetricBestPractices,
	"seo":            build.MetricSEO,
}

// lighthouseAudits maps LHR audit ids to metric keys.
var lighthouseAudits = map[string]string{
	"first-contentful-paint":   build.MetricFCP,
	"largest-contentful-paint": build.MetricLCP,
	"cumulative-layout-shift":  build.MetricCLS,
	"interactive":              build.MetricTTI,
}

// flatAliases accepts the spellings audit runners commonly emit.
var flatAliases = map[string]string{
	"best-practices":         build.MetricBestPractices,
	"bestpractices":          build.MetricBestPractices,
	"firstcontentfulpaint":   build.MetricFCP,
	"largestcontentfulpaint": build.MetricLCP,
	"cumulativelayoutshift":  build.MetricCLS,
	"timetointeractive":      build.MetricTTI,
	"interactive":            build.MetricTTI,
}

type lighthouseResult struct {
	Categories map[string]struct {
		Score *float64 `json:"score"`
	} `json:"categories"`
	Audits map[string]struct {
		NumericValue *float64 `json:"numericValue"`
	} `json:"audits"`
}

type median struct {
	Median float64 `json:"median"`
}

type browsertimeSummary struct {
	GoogleWebVitals *struct {
		FirstContentfulPaint   *median `json:"firstContentfulPaint"`
		LargestContentfulPaint *median `json:"largestContentfulPaint"`
		CumulativeLayoutShift  *median `json:"cumulativeLayoutShift"`
	} `json:"googleWebVitals"`
}

// Load reads and parses the audit file at path.
func Load(path string) (*build.Metrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading audit file: %w", err)
	}

	metrics, _, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing audit file %s: %w", path, err)
	}

	return metrics, nil
}

// Parse detects the layout of data and extracts the metrics it carries.
func Parse(data []byte) (*build.Metrics, Layout, error) {
	data = bytes.TrimSpace(data)

	// browsertime.json is an array with one summary per URL.
	if len(data) > 0 && data[0] == '[' {
		var pages []json.RawMessage
		if err := json.Unmarshal(data, &pages); err != nil {
			return nil, "", fmt.Errorf("decoding json: %w", err)
		}

		if len(pages) == 0 {
			return nil, "", ErrNoMetrics
		}

		data = pages[0]
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, "", fmt.Errorf("decoding json: %w", err)
	}

	var (
		metrics *build.Metrics
		layout  Layout
		err     error
	)

	switch {
	case probe["categories"] != nil || probe["audits"] != nil:
		layout = LayoutLighthouse
		metrics, err = parseLighthouse(data)
	case probe["googleWebVitals"] != nil:
		layout = LayoutBrowsertime
		metrics, err = parseBrowsertime(data)
	default:
		layout = LayoutFlat
		metrics, err = parseFlat(probe)
	}

	if err != nil {
		return nil, layout, err
	}

	if len(metrics.Values()) == 0 {
		return nil, layout, ErrNoMetrics
	}

	return metrics, layout, nil
}

func parseLighthouse(data []byte) (*build.Metrics, error) {
	var lhr lighthouseResult
	if err := json.Unmarshal(data, &lhr); err != nil {
		return nil, fmt.Errorf("decoding lighthouse result: %w", err)
	}

	metrics := &build.Metrics{}

	for id, key := range lighthouseCategories {
		if c, ok := lhr.Categories[id]; ok && c.Score != nil {
			metrics.Set(key, *c.Score*100)
		}
	}

	for id, key := range lighthouseAudits {
		if a, ok := lhr.Audits[id]; ok && a.NumericValue != nil {
			metrics.Set(key, *a.NumericValue)
		}
	}

	return metrics, nil
}

func parseBrowsertime(data []byte) (*build.Metrics, error) {
	var summary browsertimeSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decoding browsertime summary: %w", err)
	}

	metrics := &build.Metrics{}

	if v := summary.GoogleWebVitals; v != nil {
		if v.FirstContentfulPaint != nil {
			metrics.Set(build.MetricFCP, v.FirstContentfulPaint.Median)
		}

		if v.LargestContentfulPaint != nil {
			metrics.Set(build.MetricLCP, v.LargestContentfulPaint.Median)
		}

		if v.CumulativeLayoutShift != nil {
			metrics.Set(build.MetricCLS, v.CumulativeLayoutShift.Median)
		}
	}

	return metrics, nil
}

func parseFlat(raw map[string]json.RawMessage) (*build.Metrics, error) {
	metrics := &build.Metrics{}

	var unknown []string

	for name, value := range raw {
		key := normalizeKey(name)

		if string(value) == "null" {
			continue
		}

		var v float64
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("metric %q: expected a number: %w", name, err)
		}

		if !metrics.Set(key, v) {
			unknown = append(unknown, name)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)

		return nil, fmt.Errorf("unknown metrics: %s", strings.Join(unknown, ", "))
	}

	return metrics, nil
}

func normalizeKey(name string) string {
	lower := strings.ToLower(name)
	if alias, ok := flatAliases[strings.ReplaceAll(lower, "_", "")]; ok {
		return alias
	}

	if alias, ok := flatAliases[lower]; ok {
		return alias
	}

	return lower
}
