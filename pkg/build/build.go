package build

import "time"

// Status is the budget verdict for a measurement.
type Status string

// Budget verdicts, ordered by severity.
const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Severity returns an ordinal for comparing statuses. Unknown values rank
// as ok.
func (s Status) Severity() int {
	switch s {
	case StatusError:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Bundle types.
const (
	TypeClient = "client"
	TypeServer = "server"
)

// Device classes.
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
)

// Build is one recorded analysis run.
type Build struct {
	ID              uint      `json:"id" yaml:"id"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	Branch          *string   `json:"branch,omitempty" yaml:"branch,omitempty"`
	CommitHash      *string   `json:"commit_hash,omitempty" yaml:"commit_hash,omitempty"`
	URL             *string   `json:"url,omitempty" yaml:"url,omitempty"`
	Device          *string   `json:"device,omitempty" yaml:"device,omitempty"`
	Bundles         []Bundle  `json:"bundles" yaml:"bundles"`
	Metrics         *Metrics  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Recommendations []string  `json:"recommendations" yaml:"recommendations"`
}

// TotalSize returns the sum of raw bundle sizes.
func (b *Build) TotalSize() int64 {
	var total int64
	for _, bundle := range b.Bundles {
		total += bundle.Size
	}

	return total
}

// TotalGzipSize returns the sum of compressed bundle sizes, counting
// bundles without a compressed size as zero.
func (b *Build) TotalGzipSize() int64 {
	var total int64

	for _, bundle := range b.Bundles {
		if bundle.GzipSize != nil {
			total += *bundle.GzipSize
		}
	}

	return total
}

// Bundle is one measured output artifact within a build.
type Bundle struct {
	Name     string  `json:"name" yaml:"name"`
	Size     int64   `json:"size" yaml:"size"`
	GzipSize *int64  `json:"gzip_size,omitempty" yaml:"gzip_size,omitempty"`
	Delta    *int64  `json:"delta,omitempty" yaml:"delta,omitempty"`
	Status   Status  `json:"status" yaml:"status"`
	Type     *string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Metrics is the optional performance snapshot of a build. Category
// scores range 0-100; timings are milliseconds and CLS is unitless.
type Metrics struct {
	Performance   *float64 `json:"performance,omitempty" yaml:"performance,omitempty"`
	Accessibility *float64 `json:"accessibility,omitempty" yaml:"accessibility,omitempty"`
	BestPractices *float64 `json:"best_practices,omitempty" yaml:"best_practices,omitempty"`
	SEO           *float64 `json:"seo,omitempty" yaml:"seo,omitempty"`
	FCP           *float64 `json:"fcp,omitempty" yaml:"fcp,omitempty"`
	LCP           *float64 `json:"lcp,omitempty" yaml:"lcp,omitempty"`
	CLS           *float64 `json:"cls,omitempty" yaml:"cls,omitempty"`
	TTI           *float64 `json:"tti,omitempty" yaml:"tti,omitempty"`
}

// Metric keys as persisted in the metrics table.
const (
	MetricPerformance   = "performance"
	MetricAccessibility = "accessibility"
	MetricBestPractices = "best_practices"
	MetricSEO           = "seo"
	MetricFCP           = "fcp"
	MetricLCP           = "lcp"
	MetricCLS           = "cls"
	MetricTTI           = "tti"
)

// MetricKeys lists all metric keys in a stable order.
var MetricKeys = []string{
	MetricPerformance,
	MetricAccessibility,
	MetricBestPractices,
	MetricSEO,
	MetricFCP,
	MetricLCP,
	MetricCLS,
	MetricTTI,
}

// IsScoreMetric reports whether key is a 0-100 category score where
// higher values are better.
func IsScoreMetric(key string) bool {
	switch key {
	case MetricPerformance, MetricAccessibility, MetricBestPractices, MetricSEO:
		return true
	default:
		return false
	}
}

func (m *Metrics) field(key string) **float64 {
	switch key {
	case MetricPerformance:
		return &m.Performance
	case MetricAccessibility:
		return &m.Accessibility
	case MetricBestPractices:
		return &m.BestPractices
	case MetricSEO:
		return &m.SEO
	case MetricFCP:
		return &m.FCP
	case MetricLCP:
		return &m.LCP
	case MetricCLS:
		return &m.CLS
	case MetricTTI:
		return &m.TTI
	default:
		return nil
	}
}

// Get returns the value for key, or nil when absent or unknown.
func (m *Metrics) Get(key string) *float64 {
	if m == nil {
		return nil
	}

	if f := m.field(key); f != nil {
		return *f
	}

	return nil
}

// Set stores v under key. It returns false for unknown keys.
func (m *Metrics) Set(key string, v float64) bool {
	f := m.field(key)
	if f == nil {
		return false
	}

	*f = &v

	return true
}

// Values returns the non-absent metrics keyed by name.
func (m *Metrics) Values() map[string]float64 {
	values := make(map[string]float64, len(MetricKeys))
	if m == nil {
		return values
	}

	for _, key := range MetricKeys {
		if v := m.Get(key); v != nil {
			values[key] = *v
		}
	}

	return values
}

// TrendPoint aggregates all builds recorded on one calendar date.
type TrendPoint struct {
	Date             string   `json:"date" yaml:"date"`
	Builds           int      `json:"builds" yaml:"builds"`
	TotalSize        int64    `json:"total_size" yaml:"total_size"`
	TotalGzipSize    int64    `json:"total_gzip_size" yaml:"total_gzip_size"`
	PerformanceScore *float64 `json:"performance_score,omitempty" yaml:"performance_score,omitempty"`
	FCP              *float64 `json:"fcp,omitempty" yaml:"fcp,omitempty"`
	LCP              *float64 `json:"lcp,omitempty" yaml:"lcp,omitempty"`
	CLS              *float64 `json:"cls,omitempty" yaml:"cls,omitempty"`
	TTI              *float64 `json:"tti,omitempty" yaml:"tti,omitempty"`
}

// BundleDiff is the size change of one bundle present in both builds.
type BundleDiff struct {
	Name        string `json:"name" yaml:"name"`
	OldSize     int64  `json:"old_size" yaml:"old_size"`
	NewSize     int64  `json:"new_size" yaml:"new_size"`
	Delta       int64  `json:"delta" yaml:"delta"`
	OldGzipSize *int64 `json:"old_gzip_size,omitempty" yaml:"old_gzip_size,omitempty"`
	NewGzipSize *int64 `json:"new_gzip_size,omitempty" yaml:"new_gzip_size,omitempty"`
	GzipDelta   *int64 `json:"gzip_delta,omitempty" yaml:"gzip_delta,omitempty"`
}

// MetricDiff is the change of one metric present in both builds.
type MetricDiff struct {
	Name     string  `json:"name" yaml:"name"`
	OldValue float64 `json:"old_value" yaml:"old_value"`
	NewValue float64 `json:"new_value" yaml:"new_value"`
	Delta    float64 `json:"delta" yaml:"delta"`
}

// Comparison is the diff between two builds.
type Comparison struct {
	OldBuildID uint         `json:"old_build_id" yaml:"old_build_id"`
	NewBuildID uint         `json:"new_build_id" yaml:"new_build_id"`
	BundleDiff []BundleDiff `json:"bundle_diff" yaml:"bundle_diff"`
	MetricDiff []MetricDiff `json:"metric_diff" yaml:"metric_diff"`
}
