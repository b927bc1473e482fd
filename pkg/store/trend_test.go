package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bundleoor/pkg/build"
)

func TestStore_GetTrendData(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	day1 := today.AddDate(0, 0, -2).Add(9 * time.Hour)
	day2 := today.AddDate(0, 0, -1).Add(9 * time.Hour)
	day3 := today.Add(time.Minute)

	if day3.After(time.Now().UTC()) {
		day3 = time.Now().UTC().Add(-time.Second)
	}

	type input struct {
		ts      time.Time
		bundles []build.Bundle
		metrics *build.Metrics
	}

	inputs := []input{
		{
			ts: day1,
			bundles: []build.Bundle{
				{Name: "main.js", Size: 1000, GzipSize: ptr(int64(300))},
				{Name: "vendor.js", Size: 2000, GzipSize: ptr(int64(600))},
			},
			metrics: &build.Metrics{Performance: ptr(80.0), LCP: ptr(3000.0), CLS: ptr(0.2)},
		},
		{
			ts:      day1.Add(2 * time.Hour),
			bundles: []build.Bundle{{Name: "main.js", Size: 1100}},
			metrics: &build.Metrics{Performance: ptr(90.0), LCP: ptr(2000.0), CLS: ptr(0.1)},
		},
		{
			ts:      day1.Add(time.Hour),
			bundles: []build.Bundle{{Name: "main.js", Size: 500, GzipSize: ptr(int64(100))}},
		},
		{
			ts:      day2,
			bundles: []build.Bundle{{Name: "main.js", Size: 4096}},
			metrics: &build.Metrics{LCP: ptr(1800.0)},
		},
		{
			ts:      day3,
			bundles: []build.Bundle{{Name: "main.js", Size: 10}, {Name: "app.css", Size: 20}},
			metrics: &build.Metrics{Performance: ptr(99.0)},
		},
		{
			// Outside the window.
			ts:      today.AddDate(0, 0, -60),
			bundles: []build.Bundle{{Name: "main.js", Size: 999999}},
		},
	}

	for _, in := range inputs {
		_, err := s.Save(ctx, &build.Build{Timestamp: in.ts, Bundles: in.bundles, Metrics: in.metrics})
		require.NoError(t, err)
	}

	points, err := s.GetTrendData(ctx, 30)
	require.NoError(t, err)
	require.Len(t, points, 3)

	// Newest date first.
	assert.Equal(t, day3.Format("2006-01-02"), points[0].Date)
	assert.Equal(t, day2.Format("2006-01-02"), points[1].Date)
	assert.Equal(t, day1.Format("2006-01-02"), points[2].Date)

	assert.Equal(t, int64(30), points[0].TotalSize)
	assert.Equal(t, int64(4096), points[1].TotalSize)
	assert.Equal(t, int64(1000+2000+1100+500), points[2].TotalSize)

	assert.Equal(t, int64(300+600+100), points[2].TotalGzipSize)
	assert.Equal(t, 3, points[2].Builds)

	// Mean of non-absent performance scores.
	require.NotNil(t, points[2].PerformanceScore)
	assert.InDelta(t, 85.0, *points[2].PerformanceScore, 0.0001)
	assert.Nil(t, points[1].PerformanceScore)

	// Vitals come from the chronologically last build of the day.
	require.NotNil(t, points[2].LCP)
	assert.InDelta(t, 2000.0, *points[2].LCP, 0.0001)
	assert.InDelta(t, 0.1, *points[2].CLS, 0.0001)
	require.NotNil(t, points[1].LCP)
	assert.InDelta(t, 1800.0, *points[1].LCP, 0.0001)
}

func TestStore_GetTrendDataDefaultWindow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()

	_, err := s.Save(ctx, &build.Build{
		Timestamp: now.AddDate(0, 0, -29),
		Bundles:   []build.Bundle{{Name: "main.js", Size: 1}},
	})
	require.NoError(t, err)

	_, err = s.Save(ctx, &build.Build{
		Timestamp: now.AddDate(0, 0, -31),
		Bundles:   []build.Bundle{{Name: "main.js", Size: 1}},
	})
	require.NoError(t, err)

	points, err := s.GetTrendData(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	points, err = s.GetTrendData(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, points)
}
