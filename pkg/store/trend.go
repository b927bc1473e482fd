package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"gorm.io/gorm"
)

// dateLayout formats the calendar date of a build. Dates are UTC.
const dateLayout = "2006-01-02"

// GetTrendData groups builds of the trailing window by UTC date. Sizes are
// summed, performance scores averaged, and Core Web Vitals taken from the
// chronologically last build of each date.
func (s *store) GetTrendData(ctx context.Context, days int) ([]build.TrendPoint, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}

	since := s.now().UTC().AddDate(0, 0, -days)

	var builds []build.Build

	err := s.read(ctx, func(tx *gorm.DB) error {
		var rows []buildRow
		if err := tx.
			Where("timestamp >= ?", since).
			Order("timestamp ASC").
			Order("id ASC").
			Find(&rows).Error; err != nil {
			return err
		}

		var err error

		builds, err = hydrate(tx, rows, true)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading builds for trend: %w", err)
	}

	return aggregateTrend(builds), nil
}

// aggregateTrend expects builds in ascending timestamp order.
func aggregateTrend(builds []build.Build) []build.TrendPoint {
	type accumulator struct {
		point    build.TrendPoint
		perfSum  float64
		perfSeen int
	}

	byDate := make(map[string]*accumulator, len(builds))

	for i := range builds {
		b := &builds[i]
		date := b.Timestamp.UTC().Format(dateLayout)

		acc, ok := byDate[date]
		if !ok {
			acc = &accumulator{point: build.TrendPoint{Date: date}}
			byDate[date] = acc
		}

		acc.point.Builds++
		acc.point.TotalSize += b.TotalSize()
		acc.point.TotalGzipSize += b.TotalGzipSize()

		if p := b.Metrics.Get(build.MetricPerformance); p != nil {
			acc.perfSum += *p
			acc.perfSeen++
		}

		// Last build of the day wins.
		acc.point.FCP = b.Metrics.Get(build.MetricFCP)
		acc.point.LCP = b.Metrics.Get(build.MetricLCP)
		acc.point.CLS = b.Metrics.Get(build.MetricCLS)
		acc.point.TTI = b.Metrics.Get(build.MetricTTI)
	}

	points := make([]build.TrendPoint, 0, len(byDate))

	for _, acc := range byDate {
		if acc.perfSeen > 0 {
			avg := acc.perfSum / float64(acc.perfSeen)
			acc.point.PerformanceScore = &avg
		}

		points = append(points, acc.point)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Date > points[j].Date
	})

	return points
}
