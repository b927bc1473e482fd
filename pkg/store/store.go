package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DefaultTrendDays is the trend window used when none is given.
const DefaultTrendDays = 30

// batchSize bounds rows per INSERT for child tables.
const batchSize = 100

// Order is the timestamp ordering of listed builds.
type Order string

// Supported orderings.
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder parses "asc" or "desc"; empty means descending.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case OrderAsc:
		return OrderAsc, nil
	case OrderDesc, "":
		return OrderDesc, nil
	default:
		return "", fmt.Errorf("invalid order %q (want asc or desc)", s)
	}
}

// Filter narrows LatestBuild. Nil fields match anything.
type Filter struct {
	Branch *string
	URL    *string
	Device *string
}

// Store is the durable history of builds.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Save persists a build and all of its children atomically and returns
	// the assigned build ID.
	Save(ctx context.Context, b *build.Build) (uint, error)

	// GetRecentBuilds returns up to limit builds with bundles and
	// recommendations, without metrics. limit <= 0 returns every build.
	GetRecentBuilds(ctx context.Context, limit int, order Order) ([]build.Build, error)

	// GetBuild returns a fully hydrated build, or nil when id is unknown.
	GetBuild(ctx context.Context, id uint) (*build.Build, error)

	// LatestBuild returns the most recent fully hydrated build matching f,
	// or nil when there is none.
	LatestBuild(ctx context.Context, f Filter) (*build.Build, error)

	// GetTrendData aggregates builds of the trailing days per calendar
	// date, newest date first.
	GetTrendData(ctx context.Context, days int) ([]build.TrendPoint, error)

	// GetBuildComparison diffs two builds, or returns nil when either is
	// unknown.
	GetBuildComparison(ctx context.Context, oldID, newID uint) (*build.Comparison, error)

	// Cleanup deletes builds strictly older than retentionDays and returns
	// the number of builds removed.
	Cleanup(ctx context.Context, retentionDays int) (int64, error)

	// CleanDatabase empties every table.
	CleanDatabase(ctx context.Context) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
	now func() time.Time

	// writeMu serializes the write path within this process.
	writeMu sync.Mutex
}

// NewStore creates a new build Store backed by the configured database
// driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
		now: time.Now,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case config.DriverSQLite:
		path := s.cfg.SQLite.Path
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}
		}

		dialector = sqlite.Open(path)
	case config.DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening build database: %w", err)
	}

	s.db = db

	if s.cfg.Driver == config.DriverSQLite {
		// One connection keeps :memory: databases and the foreign_keys
		// pragma alive for the lifetime of the store.
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)

		if err := s.db.WithContext(ctx).
			Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&buildRow{},
		&bundleRow{},
		&metricRow{},
		&recommendationRow{},
	); err != nil {
		return fmt.Errorf("running build migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Build database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Save inserts the build row first and derives every child's build_id from
// it, all in one transaction. Any failure rolls back the whole build.
func (s *store) Save(ctx context.Context, b *build.Build) (uint, error) {
	if b == nil {
		return 0, errors.New("saving build: nil build")
	}

	for _, bundle := range b.Bundles {
		if bundle.Name == "" {
			return 0, errors.New("saving build: bundle with empty name")
		}

		if bundle.GzipSize != nil && *bundle.GzipSize > bundle.Size {
			return 0, fmt.Errorf(
				"saving build: bundle %s compressed size %d exceeds raw size %d",
				bundle.Name, *bundle.GzipSize, bundle.Size,
			)
		}
	}

	row := toBuildRow(b)
	if b.Timestamp.IsZero() {
		row.Timestamp = s.now().UTC()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("inserting build: %w", err)
		}

		if bundles := toBundleRows(row.ID, b.Bundles); len(bundles) > 0 {
			if err := tx.CreateInBatches(bundles, batchSize).Error; err != nil {
				return fmt.Errorf("inserting bundles: %w", err)
			}
		}

		if metrics := toMetricRows(row.ID, b.Metrics); len(metrics) > 0 {
			if err := tx.Create(&metrics).Error; err != nil {
				return fmt.Errorf("inserting metrics: %w", err)
			}
		}

		if recs := toRecommendationRows(row.ID, b.Recommendations); len(recs) > 0 {
			if err := tx.CreateInBatches(recs, batchSize).Error; err != nil {
				return fmt.Errorf("inserting recommendations: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("saving build: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"build_id": row.ID,
		"bundles":  len(b.Bundles),
		"metrics":  b.Metrics != nil,
	}).Debug("Build saved")

	return row.ID, nil
}

// GetRecentBuilds lists builds by timestamp. Metrics are not loaded.
func (s *store) GetRecentBuilds(
	ctx context.Context, limit int, order Order,
) ([]build.Build, error) {
	direction := "DESC"
	if order == OrderAsc {
		direction = "ASC"
	}

	var builds []build.Build

	err := s.read(ctx, func(tx *gorm.DB) error {
		q := tx.Order("timestamp " + direction).Order("id " + direction)
		if limit > 0 {
			q = q.Limit(limit)
		}

		var rows []buildRow
		if err := q.Find(&rows).Error; err != nil {
			return err
		}

		var err error

		builds, err = hydrate(tx, rows, false)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}

	return builds, nil
}

// GetBuild returns nil, nil when no build has the given id.
func (s *store) GetBuild(ctx context.Context, id uint) (*build.Build, error) {
	var b *build.Build

	err := s.read(ctx, func(tx *gorm.DB) error {
		var err error

		b, err = getBuild(tx, id)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting build %d: %w", id, err)
	}

	return b, nil
}

// LatestBuild returns nil, nil when no build matches.
func (s *store) LatestBuild(ctx context.Context, f Filter) (*build.Build, error) {
	var b *build.Build

	err := s.read(ctx, func(tx *gorm.DB) error {
		q := tx.Order("timestamp DESC").Order("id DESC").Limit(1)

		if f.Branch != nil {
			q = q.Where("branch = ?", *f.Branch)
		}

		if f.URL != nil {
			q = q.Where("url = ?", *f.URL)
		}

		if f.Device != nil {
			q = q.Where("device = ?", *f.Device)
		}

		var rows []buildRow
		if err := q.Find(&rows).Error; err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		builds, err := hydrate(tx, rows, true)
		if err != nil {
			return err
		}

		b = &builds[0]

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting latest build: %w", err)
	}

	return b, nil
}

// read runs fn in one transaction so a build and its children are read
// from the same snapshot, never half of a concurrent Cleanup.
func (s *store) read(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// getBuild returns nil, nil when no build has the given id.
func getBuild(tx *gorm.DB, id uint) (*build.Build, error) {
	var rows []buildRow
	if err := tx.Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, nil
	}

	builds, err := hydrate(tx, rows, true)
	if err != nil {
		return nil, err
	}

	return &builds[0], nil
}

// Cleanup removes children before their builds so the result does not
// depend on the driver enforcing ON DELETE CASCADE.
func (s *store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days must not be negative, got %d", retentionDays)
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var deleted int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&buildRow{}).Select("id").Where("timestamp < ?", cutoff)

		for _, child := range []any{&bundleRow{}, &metricRow{}, &recommendationRow{}} {
			if err := tx.Where("build_id IN (?)", expired).
				Delete(child).Error; err != nil {
				return fmt.Errorf("deleting expired children: %w", err)
			}
		}

		result := tx.Where("timestamp < ?", cutoff).Delete(&buildRow{})
		if result.Error != nil {
			return fmt.Errorf("deleting expired builds: %w", result.Error)
		}

		deleted = result.RowsAffected

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleaning up builds: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"retention_days": retentionDays,
		"deleted":        deleted,
	}).Info("Build history cleaned up")

	return deleted, nil
}

// CleanDatabase empties all tables in a single transaction.
func (s *store) CleanDatabase(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&recommendationRow{},
			&metricRow{},
			&bundleRow{},
			&buildRow{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return fmt.Errorf("emptying table: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("cleaning database: %w", err)
	}

	s.log.Info("Build database emptied")

	return nil
}

// hydrate converts build rows into records, loading bundles and
// recommendations and, when withMetrics is set, metrics. Order is kept.
func hydrate(tx *gorm.DB, rows []buildRow, withMetrics bool) ([]build.Build, error) {
	builds := make([]build.Build, len(rows))
	if len(rows) == 0 {
		return builds, nil
	}

	ids := make([]uint, len(rows))
	index := make(map[uint]int, len(rows))

	for i := range rows {
		builds[i] = fromBuildRow(&rows[i])
		ids[i] = rows[i].ID
		index[rows[i].ID] = i
	}

	var bundles []bundleRow
	if err := tx.
		Where("build_id IN ?", ids).
		Order("name ASC").
		Find(&bundles).Error; err != nil {
		return nil, fmt.Errorf("loading bundles: %w", err)
	}

	for i := range bundles {
		pos := index[bundles[i].BuildID]
		builds[pos].Bundles = append(builds[pos].Bundles, fromBundleRow(&bundles[i]))
	}

	var recs []recommendationRow
	if err := tx.
		Where("build_id IN ?", ids).
		Order("id ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("loading recommendations: %w", err)
	}

	for i := range recs {
		pos := index[recs[i].BuildID]
		builds[pos].Recommendations = append(builds[pos].Recommendations, recs[i].Message)
	}

	if !withMetrics {
		return builds, nil
	}

	var metrics []metricRow
	if err := tx.
		Where("build_id IN ?", ids).
		Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("loading metrics: %w", err)
	}

	grouped := make(map[uint][]metricRow, len(rows))
	for _, m := range metrics {
		grouped[m.BuildID] = append(grouped[m.BuildID], m)
	}

	for id, ms := range grouped {
		builds[index[id]].Metrics = fromMetricRows(ms)
	}

	return builds, nil
}
