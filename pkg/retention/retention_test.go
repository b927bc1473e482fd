package retention_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/config"
	"github.com/ethpandaops/bundleoor/pkg/retention"
	"github.com/ethpandaops/bundleoor/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) store.Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	return st
}

func seed(t *testing.T, st store.Store) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	for _, ts := range []time.Time{now.AddDate(0, 0, -40), now.AddDate(0, 0, -35), now} {
		_, err := st.Save(ctx, &build.Build{
			Timestamp: ts,
			Bundles:   []build.Bundle{{Name: "main.js", Size: 10}},
		})
		require.NoError(t, err)
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	st := setupStore(t)
	seed(t, st)

	var hooked atomic.Int64

	s := retention.NewScheduler(logrus.New(), config.RetentionConfig{Days: 30},
		st, func(n int64) { hooked.Add(n) })

	deleted, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, int64(2), hooked.Load())

	builds, err := st.GetRecentBuilds(context.Background(), 0, store.OrderDesc)
	require.NoError(t, err)
	assert.Len(t, builds, 1)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	st := setupStore(t)
	seed(t, st)

	var hooked atomic.Int64

	s := retention.NewScheduler(logrus.New(), config.RetentionConfig{
		Days:     30,
		Schedule: "@every 1s",
	}, st, func(n int64) { hooked.Add(n + 1) })

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	require.Eventually(t, func() bool {
		return hooked.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := retention.NewScheduler(logrus.New(), config.RetentionConfig{
		Days:     30,
		Schedule: "whenever",
	}, setupStore(t), nil)

	require.Error(t, s.Start(context.Background()))
}
