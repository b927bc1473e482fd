// Package retention prunes old builds from the history store on a cron
// schedule.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/config"
	"github.com/ethpandaops/bundleoor/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const cleanupTimeout = 5 * time.Minute

// Scheduler runs store cleanup periodically.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	// RunOnce performs one cleanup pass immediately.
	RunOnce(ctx context.Context) (int64, error)
}

// Hook is called after every successful cleanup pass.
type Hook func(deleted int64)

// Compile-time interface check.
var _ Scheduler = (*scheduler)(nil)

type scheduler struct {
	log   logrus.FieldLogger
	cfg   config.RetentionConfig
	store store.Store
	hook  Hook
	cron  *cron.Cron

	// mu prevents overlapping passes when a run outlasts the interval.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a retention scheduler. hook may be nil.
func NewScheduler(
	log logrus.FieldLogger,
	cfg config.RetentionConfig,
	st store.Store,
	hook Hook,
) Scheduler {
	if hook == nil {
		hook = func(int64) {}
	}

	return &scheduler{
		log:   log.WithField("component", "retention"),
		cfg:   cfg,
		store: st,
		hook:  hook,
		cron:  cron.New(),
	}
}

// Start registers the cleanup job and starts the cron runner.
func (s *scheduler) Start(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("parsing retention schedule %q: %w", s.cfg.Schedule, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.run); err != nil {
		return fmt.Errorf("scheduling cleanup: %w", err)
	}

	s.cron.Start()

	s.log.WithFields(logrus.Fields{
		"schedule": s.cfg.Schedule,
		"days":     s.cfg.Days,
	}).Info("Retention scheduler started")

	return nil
}

// Stop halts the runner and waits for a running pass to finish.
func (s *scheduler) Stop() error {
	<-s.cron.Stop().Done()

	if s.cancel != nil {
		s.cancel()
	}

	return nil
}

func (s *scheduler) RunOnce(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	deleted, err := s.store.Cleanup(ctx, s.cfg.Days)
	if err != nil {
		return 0, fmt.Errorf("cleaning up builds: %w", err)
	}

	s.hook(deleted)

	return deleted, nil
}

func (s *scheduler) run() {
	deleted, err := s.RunOnce(s.ctx)
	if err != nil {
		s.log.WithError(err).Warn("Scheduled cleanup failed")

		return
	}

	s.log.WithField("deleted", deleted).Info("Scheduled cleanup completed")
}
