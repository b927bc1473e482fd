package store

import (
	"github.com/ethpandaops/bundleoor/pkg/build"
)

func toBuildRow(b *build.Build) buildRow {
	return buildRow{
		Timestamp:  b.Timestamp.UTC(),
		Branch:     nonEmpty(b.Branch),
		CommitHash: nonEmpty(b.CommitHash),
		URL:        nonEmpty(b.URL),
		Device:     nonEmpty(b.Device),
	}
}

func fromBuildRow(r *buildRow) build.Build {
	return build.Build{
		ID:              r.ID,
		Timestamp:       r.Timestamp.UTC(),
		Branch:          r.Branch,
		CommitHash:      r.CommitHash,
		URL:             r.URL,
		Device:          r.Device,
		Bundles:         []build.Bundle{},
		Recommendations: []string{},
	}
}

func toBundleRows(buildID uint, bundles []build.Bundle) []bundleRow {
	rows := make([]bundleRow, 0, len(bundles))

	for _, b := range bundles {
		status := b.Status
		if status == "" {
			status = build.StatusOK
		}

		rows = append(rows, bundleRow{
			BuildID:  buildID,
			Name:     b.Name,
			Size:     b.Size,
			GzipSize: b.GzipSize,
			Delta:    b.Delta,
			Status:   string(status),
			Type:     nonEmpty(b.Type),
		})
	}

	return rows
}

func fromBundleRow(r *bundleRow) build.Bundle {
	return build.Bundle{
		Name:     r.Name,
		Size:     r.Size,
		GzipSize: r.GzipSize,
		Delta:    r.Delta,
		Status:   build.Status(r.Status),
		Type:     r.Type,
	}
}

func toMetricRows(buildID uint, m *build.Metrics) []metricRow {
	if m == nil {
		return nil
	}

	values := m.Values()
	rows := make([]metricRow, 0, len(values))

	for _, key := range build.MetricKeys {
		if v, ok := values[key]; ok {
			rows = append(rows, metricRow{BuildID: buildID, Key: key, Value: v})
		}
	}

	return rows
}

// fromMetricRows folds key/value rows into a structured record. Unknown
// keys are ignored. Returns nil when there are no rows.
func fromMetricRows(rows []metricRow) *build.Metrics {
	if len(rows) == 0 {
		return nil
	}

	m := &build.Metrics{}
	for _, r := range rows {
		m.Set(r.Key, r.Value)
	}

	return m
}

func toRecommendationRows(buildID uint, recs []string) []recommendationRow {
	rows := make([]recommendationRow, 0, len(recs))
	for _, msg := range recs {
		rows = append(rows, recommendationRow{BuildID: buildID, Message: msg})
	}

	return rows
}

// nonEmpty maps an empty string to an absent value.
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}

	return s
}
