package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/store"
)

func TestStore_GetBuildComparison(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()

	oldID, err := s.Save(ctx, &build.Build{
		Timestamp: now.Add(-time.Hour),
		Bundles: []build.Bundle{
			{Name: "main.js", Size: 100 * 1024, GzipSize: ptr(int64(30000))},
			{Name: "vendor.js", Size: 5000},
			{Name: "removed.js", Size: 42},
		},
		Metrics: &build.Metrics{Performance: ptr(80.0), LCP: ptr(2500.0)},
	})
	require.NoError(t, err)

	newID, err := s.Save(ctx, &build.Build{
		Timestamp: now,
		Bundles: []build.Bundle{
			{Name: "main.js", Size: 110 * 1024, GzipSize: ptr(int64(32000))},
			{Name: "vendor.js", Size: 4000, GzipSize: ptr(int64(1000))},
			{Name: "added.js", Size: 7},
		},
		Metrics: &build.Metrics{Performance: ptr(85.5), TTI: ptr(3000.0)},
	})
	require.NoError(t, err)

	cmp, err := s.GetBuildComparison(ctx, oldID, newID)
	require.NoError(t, err)
	require.NotNil(t, cmp)

	assert.Equal(t, oldID, cmp.OldBuildID)
	assert.Equal(t, newID, cmp.NewBuildID)

	// Asymmetric bundles are omitted.
	require.Len(t, cmp.BundleDiff, 2)
	assert.Equal(t, "main.js", cmp.BundleDiff[0].Name)
	assert.Equal(t, int64(10240), cmp.BundleDiff[0].Delta)
	require.NotNil(t, cmp.BundleDiff[0].GzipDelta)
	assert.Equal(t, int64(2000), *cmp.BundleDiff[0].GzipDelta)

	assert.Equal(t, "vendor.js", cmp.BundleDiff[1].Name)
	assert.Equal(t, int64(-1000), cmp.BundleDiff[1].Delta)
	assert.Nil(t, cmp.BundleDiff[1].GzipDelta, "old side has no gzip size")
	assert.Nil(t, cmp.BundleDiff[1].OldGzipSize)

	// Metrics present on only one side are omitted.
	require.Len(t, cmp.MetricDiff, 1)
	assert.Equal(t, build.MetricPerformance, cmp.MetricDiff[0].Name)
	assert.InDelta(t, 5.5, cmp.MetricDiff[0].Delta, 0.0001)

	// Symmetry.
	rev, err := s.GetBuildComparison(ctx, newID, oldID)
	require.NoError(t, err)
	require.NotNil(t, rev)
	require.Len(t, rev.BundleDiff, len(cmp.BundleDiff))

	for i := range cmp.BundleDiff {
		assert.Equal(t, cmp.BundleDiff[i].Name, rev.BundleDiff[i].Name)
		assert.Equal(t, cmp.BundleDiff[i].Delta, -rev.BundleDiff[i].Delta)
	}

	assert.InDelta(t, -5.5, rev.MetricDiff[0].Delta, 0.0001)
}

func TestStore_GetBuildComparisonUnknownBuild(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, &build.Build{Bundles: []build.Bundle{{Name: "main.js", Size: 1}}})
	require.NoError(t, err)

	cmp, err := s.GetBuildComparison(ctx, id, id+100)
	require.NoError(t, err)
	assert.Nil(t, cmp)
}

func TestApplyDeltas(t *testing.T) {
	bundles := []build.Bundle{
		{Name: "main.js", Size: 110},
		{Name: "new.js", Size: 5},
	}

	store.ApplyDeltas(bundles, nil)
	assert.Nil(t, bundles[0].Delta)

	store.ApplyDeltas(bundles, &build.Build{Bundles: []build.Bundle{{Name: "main.js", Size: 100}}})
	require.NotNil(t, bundles[0].Delta)
	assert.Equal(t, int64(10), *bundles[0].Delta)
	assert.Nil(t, bundles[1].Delta)
}
