package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"gorm.io/gorm"
)

// GetBuildComparison diffs newID against oldID. Bundles present in only one
// build are left out.
func (s *store) GetBuildComparison(
	ctx context.Context, oldID, newID uint,
) (*build.Comparison, error) {
	var oldBuild, newBuild *build.Build

	err := s.read(ctx, func(tx *gorm.DB) error {
		var err error

		if oldBuild, err = getBuild(tx, oldID); err != nil {
			return fmt.Errorf("getting build %d: %w", oldID, err)
		}

		if newBuild, err = getBuild(tx, newID); err != nil {
			return fmt.Errorf("getting build %d: %w", newID, err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("comparing builds: %w", err)
	}

	if oldBuild == nil || newBuild == nil {
		return nil, nil
	}

	return Compare(oldBuild, newBuild), nil
}

// Compare computes bundle and metric diffs between two builds.
func Compare(oldBuild, newBuild *build.Build) *build.Comparison {
	oldBundles := make(map[string]build.Bundle, len(oldBuild.Bundles))
	for _, b := range oldBuild.Bundles {
		oldBundles[b.Name] = b
	}

	cmp := &build.Comparison{
		OldBuildID: oldBuild.ID,
		NewBuildID: newBuild.ID,
		BundleDiff: make([]build.BundleDiff, 0, len(newBuild.Bundles)),
		MetricDiff: []build.MetricDiff{},
	}

	for _, nb := range newBuild.Bundles {
		ob, ok := oldBundles[nb.Name]
		if !ok {
			continue
		}

		d := build.BundleDiff{
			Name:        nb.Name,
			OldSize:     ob.Size,
			NewSize:     nb.Size,
			Delta:       nb.Size - ob.Size,
			OldGzipSize: ob.GzipSize,
			NewGzipSize: nb.GzipSize,
		}

		if ob.GzipSize != nil && nb.GzipSize != nil {
			gd := *nb.GzipSize - *ob.GzipSize
			d.GzipDelta = &gd
		}

		cmp.BundleDiff = append(cmp.BundleDiff, d)
	}

	sort.Slice(cmp.BundleDiff, func(i, j int) bool {
		return cmp.BundleDiff[i].Name < cmp.BundleDiff[j].Name
	})

	oldValues := oldBuild.Metrics.Values()
	newValues := newBuild.Metrics.Values()

	for _, key := range build.MetricKeys {
		ov, okOld := oldValues[key]
		nv, okNew := newValues[key]

		if !okOld || !okNew {
			continue
		}

		cmp.MetricDiff = append(cmp.MetricDiff, build.MetricDiff{
			Name:     key,
			OldValue: ov,
			NewValue: nv,
			Delta:    nv - ov,
		})
	}

	return cmp
}

// ApplyDeltas sets each bundle's delta against the same-named bundle of
// prev. Bundles without a counterpart keep an absent delta.
func ApplyDeltas(bundles []build.Bundle, prev *build.Build) {
	if prev == nil {
		return
	}

	sizes := make(map[string]int64, len(prev.Bundles))
	for _, b := range prev.Bundles {
		sizes[b.Name] = b.Size
	}

	for i := range bundles {
		if old, ok := sizes[bundles[i].Name]; ok {
			d := bundles[i].Size - old
			bundles[i].Delta = &d
		}
	}
}
