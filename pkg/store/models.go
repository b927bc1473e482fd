package store

import "time"

// buildRow is the persisted form of a build. Child associations exist so
// migrations create ON DELETE CASCADE foreign keys; rows are always written
// and read explicitly.
type buildRow struct {
	ID         uint      `gorm:"primaryKey"`
	Timestamp  time.Time `gorm:"not null;index"`
	Branch     *string   `gorm:"index"`
	CommitHash *string
	URL        *string
	Device     *string

	Bundles         []bundleRow         `gorm:"foreignKey:BuildID;constraint:OnDelete:CASCADE"`
	Metrics         []metricRow         `gorm:"foreignKey:BuildID;constraint:OnDelete:CASCADE"`
	Recommendations []recommendationRow `gorm:"foreignKey:BuildID;constraint:OnDelete:CASCADE"`
}

func (buildRow) TableName() string { return "builds" }

type bundleRow struct {
	ID       uint   `gorm:"primaryKey"`
	BuildID  uint   `gorm:"not null;uniqueIndex:idx_bundles_build_name"`
	Name     string `gorm:"not null;uniqueIndex:idx_bundles_build_name"`
	Size     int64  `gorm:"not null"`
	GzipSize *int64
	Delta    *int64
	Status   string `gorm:"not null"`
	Type     *string
}

func (bundleRow) TableName() string { return "bundles" }

// metricRow stores one scalar metric keyed by name.
type metricRow struct {
	ID      uint    `gorm:"primaryKey"`
	BuildID uint    `gorm:"not null;uniqueIndex:idx_metrics_build_key"`
	Key     string  `gorm:"not null;uniqueIndex:idx_metrics_build_key"`
	Value   float64 `gorm:"not null"`
}

func (metricRow) TableName() string { return "metrics" }

type recommendationRow struct {
	ID      uint   `gorm:"primaryKey"`
	BuildID uint   `gorm:"not null;index"`
	Message string `gorm:"type:text;not null"`
}

func (recommendationRow) TableName() string { return "recommendations" }
