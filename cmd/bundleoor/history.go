package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/output"
	"github.com/ethpandaops/bundleoor/pkg/store"
	"github.com/spf13/cobra"
)

var (
	queryFormat  string
	historyLimit int
	historyOrder string
	trendDays    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent builds",
	RunE:  runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show <build-id>",
	Short: "Show one build with bundles, metrics and recommendations",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var compareCmd = &cobra.Command{
	Use:   "compare <old-build-id> <new-build-id>",
	Short: "Compare bundle sizes and metrics of two builds",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompare,
}

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show daily size and performance aggregates",
	RunE:  runTrend,
}

func init() {
	for _, cmd := range []*cobra.Command{historyCmd, showCmd, compareCmd, trendCmd} {
		cmd.Flags().StringVarP(&queryFormat, "output", "o", "table", "output format (table, json, yaml)")
		rootCmd.AddCommand(cmd)
	}

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of builds (0 for all)")
	historyCmd.Flags().StringVar(&historyOrder, "order", "desc", "timestamp order (asc, desc)")
	trendCmd.Flags().IntVar(&trendDays, "days", store.DefaultTrendDays, "trailing window in days")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	order, err := store.ParseOrder(historyOrder)
	if err != nil {
		return err
	}

	return withStore(cmd, func(f *output.Formatter, st store.Store) error {
		builds, err := st.GetRecentBuilds(cmd.Context(), historyLimit, order)
		if err != nil {
			return err
		}

		if builds == nil {
			builds = []build.Build{}
		}

		return f.Print(builds, buildListTable(builds))
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := parseBuildID(args[0])
	if err != nil {
		return err
	}

	return withStore(cmd, func(f *output.Formatter, st store.Store) error {
		b, err := st.GetBuild(cmd.Context(), id)
		if err != nil {
			return err
		}

		if b == nil {
			return fmt.Errorf("build %d not found", id)
		}

		return f.Print(b, buildDetailTables(b)...)
	})
}

func runCompare(cmd *cobra.Command, args []string) error {
	oldID, err := parseBuildID(args[0])
	if err != nil {
		return err
	}

	newID, err := parseBuildID(args[1])
	if err != nil {
		return err
	}

	return withStore(cmd, func(f *output.Formatter, st store.Store) error {
		cmp, err := st.GetBuildComparison(cmd.Context(), oldID, newID)
		if err != nil {
			return err
		}

		if cmp == nil {
			return fmt.Errorf("build %d or %d not found", oldID, newID)
		}

		return f.Print(cmp, comparisonTables(cmp)...)
	})
}

func runTrend(cmd *cobra.Command, _ []string) error {
	if trendDays < 1 {
		return fmt.Errorf("--days must be positive")
	}

	return withStore(cmd, func(f *output.Formatter, st store.Store) error {
		points, err := st.GetTrendData(cmd.Context(), trendDays)
		if err != nil {
			return err
		}

		if points == nil {
			points = []build.TrendPoint{}
		}

		return f.Print(points, trendTable(trendDays, points))
	})
}

// withStore loads config, opens the store and hands both to fn along with
// a formatter for --output.
func withStore(cmd *cobra.Command, fn func(*output.Formatter, store.Store) error) error {
	format, err := output.ParseFormat(queryFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	return fn(output.NewFormatter(format, os.Stdout), st)
}

func parseBuildID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid build id %q", s)
	}

	return uint(id), nil
}
