package watcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/analyzer"
	"github.com/ethpandaops/bundleoor/pkg/budget"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/sizeunit"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultDebounce is the quiet period after the last change event.
	DefaultDebounce = time.Second

	// DefaultThreshold is the total size change in bytes worth reporting.
	DefaultThreshold = 5 * 1024
)

// State is the watcher's scheduling state.
type State int32

// Watcher states.
const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}

	return "idle"
}

// CycleFunc performs one analysis and budget pass.
type CycleFunc func(ctx context.Context) (*budget.Result, error)

// Change is emitted after a cycle whose outcome is worth reporting.
type Change struct {
	// Initial is set for the first successful cycle, which has no
	// previous snapshot.
	Initial        bool
	PreviousTotal  int64
	CurrentTotal   int64
	Delta          int64
	PreviousStatus build.Status
	Status         build.Status
	Result         *budget.Result
	// Err is set when the cycle failed; other fields are zero.
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Notifier receives changes. It is called from the watcher goroutine.
type Notifier func(Change)

// Options configures a Watcher.
type Options struct {
	// Root is watched recursively for filesystem events. It may be absent
	// or recreated while watching. Empty disables filesystem watching;
	// Trigger can still drive cycles.
	Root string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Threshold is the delta in bytes that must be exceeded. Zero reports
	// every size change; negative values use DefaultThreshold.
	Threshold int64
	// RunInitial runs a baseline cycle as soon as Run starts.
	RunInitial bool
}

// Watcher schedules analysis cycles in response to change events: a
// trailing-edge debounce, at most one cycle at a time and at most one
// further cycle owed while one is running.
type Watcher interface {
	// Run blocks until ctx is cancelled. A cycle in flight when ctx is
	// cancelled is allowed to finish.
	Run(ctx context.Context) error
	// Trigger records a change event. It never blocks.
	Trigger()
	// State reports whether a cycle is running.
	State() State
}

// Compile-time interface check.
var _ Watcher = (*watcher)(nil)

type watcher struct {
	log    logrus.FieldLogger
	opts   Options
	cycle  CycleFunc
	notify Notifier

	// events has capacity one: it is the "one more cycle owed" flag while
	// a cycle runs.
	events chan struct{}
	state  atomic.Int32

	previous *budget.Result
}

// NewWatcher creates a Watcher that runs cycle and reports through notify.
func NewWatcher(
	log logrus.FieldLogger,
	opts Options,
	cycle CycleFunc,
	notify Notifier,
) Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	if opts.Threshold < 0 {
		opts.Threshold = DefaultThreshold
	}

	if notify == nil {
		notify = func(Change) {}
	}

	return &watcher{
		log:    log.WithField("component", "watcher"),
		opts:   opts,
		cycle:  cycle,
		notify: notify,
		events: make(chan struct{}, 1),
	}
}

// AnalyzeCycle returns a CycleFunc that analyzes a target and applies
// budgets.
func AnalyzeCycle(
	a analyzer.Analyzer, opts analyzer.Options, budgets budget.Budgets,
) CycleFunc {
	return func(ctx context.Context) (*budget.Result, error) {
		bundles, err := a.Analyze(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("analyzing: %w", err)
		}

		res, err := budget.Check(bundles, nil, budgets)
		if err != nil {
			return nil, fmt.Errorf("checking budgets: %w", err)
		}

		return res, nil
	}
}

func (w *watcher) Trigger() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

func (w *watcher) State() State {
	return State(w.state.Load())
}

func (w *watcher) Run(ctx context.Context) error {
	if w.opts.Root != "" {
		src, err := newFSSource(w.log, w.opts.Root)
		if err != nil {
			return fmt.Errorf("watching %s: %w", w.opts.Root, err)
		}

		defer func() { _ = src.Close() }()

		go src.Forward(ctx, w.Trigger)
	}

	w.log.WithFields(logrus.Fields{
		"root":      w.opts.Root,
		"debounce":  w.opts.Debounce.String(),
		"threshold": sizeunit.Format(w.opts.Threshold),
	}).Info("Watching for changes")

	if w.opts.RunInitial {
		w.runCycle(ctx)
	}

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()

	defer timer.Stop()

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Watcher stopped")

			return nil
		case <-w.events:
			timer.Reset(w.opts.Debounce)
			pending = timer.C
		case <-pending:
			pending = nil

			w.runCycle(ctx)
		}
	}
}

// runCycle executes one cycle on a context detached from cancellation so a
// shutdown never leaves a partial cycle.
func (w *watcher) runCycle(ctx context.Context) {
	w.state.Store(int32(StateRunning))
	defer w.state.Store(int32(StateIdle))

	started := time.Now()
	res, err := w.cycle(context.WithoutCancel(ctx))
	finished := time.Now()

	if err != nil {
		w.log.WithError(err).Warn("Analysis cycle failed")
		w.notify(Change{Err: err, StartedAt: started, FinishedAt: finished})

		return
	}

	change, report := w.evaluate(res)
	change.StartedAt = started
	change.FinishedAt = finished

	w.previous = res

	w.log.WithFields(logrus.Fields{
		"total":    sizeunit.Format(res.TotalSize),
		"status":   res.Status,
		"duration": finished.Sub(started).Round(time.Millisecond),
		"reported": report,
	}).Debug("Analysis cycle complete")

	if report {
		w.notify(change)
	}
}

// evaluate compares res with the previous cycle's snapshot.
func (w *watcher) evaluate(res *budget.Result) (Change, bool) {
	change := Change{
		CurrentTotal: res.TotalSize,
		Status:       res.Status,
		Result:       res,
	}

	if w.previous == nil {
		change.Initial = true

		return change, true
	}

	change.PreviousTotal = w.previous.TotalSize
	change.PreviousStatus = w.previous.Status
	change.Delta = res.TotalSize - w.previous.TotalSize

	abs := change.Delta
	if abs < 0 {
		abs = -abs
	}

	return change, abs > w.opts.Threshold || res.Status != w.previous.Status
}
