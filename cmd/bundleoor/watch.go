package main

import (
	"fmt"

	"github.com/ethpandaops/bundleoor/pkg/analyzer"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/sizeunit"
	"github.com/ethpandaops/bundleoor/pkg/watcher"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-analyze the build output whenever it changes",
	Long: `Watch the build output directory and re-run the size analysis after
changes settle. A change is reported when the total size moves by more than
watch.threshold or the budget status changes. Nothing is saved to history.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	f := watchCmd.Flags()
	f.StringVar(&analyzeTarget, "target", "", "configured target name")
	f.StringVar(&analyzeOutputPath, "output-path", "", "build output directory (overrides the target)")
	f.BoolVar(&analyzeGzip, "gzip", false, "compute gzip sizes")
	f.StringSliceVar(&analyzeIgnore, "ignore", nil, "glob patterns to skip (repeatable)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	target, err := resolveTarget(cmd, cfg)
	if err != nil {
		return err
	}

	threshold, err := cfg.Watch.ThresholdBytes()
	if err != nil {
		return fmt.Errorf("parsing watch threshold: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	cycle := watcher.AnalyzeCycle(
		analyzer.NewAnalyzer(log),
		analyzer.Options{
			OutputPath:  target.OutputPath,
			Gzip:        target.Gzip,
			IgnorePaths: target.IgnorePaths,
		},
		cfg.BudgetSet(),
	)

	w := watcher.NewWatcher(log, watcher.Options{
		Root:       target.OutputPath,
		Debounce:   cfg.Watch.Debounce,
		Threshold:  threshold,
		RunInitial: true,
	}, cycle, reportChange)

	return w.Run(ctx)
}

func reportChange(c watcher.Change) {
	// Failed cycles are logged by the watcher.
	if c.Err != nil {
		return
	}

	fields := logrus.Fields{
		"total":    sizeunit.Format(c.CurrentTotal),
		"status":   c.Status,
		"duration": c.FinishedAt.Sub(c.StartedAt),
	}

	if c.Initial {
		log.WithFields(fields).Info("Baseline established")

		return
	}

	fields["delta"] = sizeunit.FormatDelta(c.Delta)
	fields["previous_status"] = c.PreviousStatus

	entry := log.WithFields(fields)

	switch {
	case c.Status != c.PreviousStatus:
		entry.Warn("Budget status changed")
	default:
		entry.Info("Bundle size changed")
	}

	if c.Result == nil {
		return
	}

	for _, b := range c.Result.Bundles {
		if b.Status != build.StatusOK {
			log.WithFields(logrus.Fields{
				"bundle": b.Name,
				"size":   sizeunit.Format(b.Size),
				"status": b.Status,
			}).Warn("Bundle over budget")
		}
	}
}
