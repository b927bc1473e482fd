package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethpandaops/bundleoor/pkg/analyzer"
	"github.com/ethpandaops/bundleoor/pkg/audit"
	"github.com/ethpandaops/bundleoor/pkg/budget"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/config"
	"github.com/ethpandaops/bundleoor/pkg/output"
	"github.com/ethpandaops/bundleoor/pkg/report"
	"github.com/ethpandaops/bundleoor/pkg/sizeunit"
	"github.com/ethpandaops/bundleoor/pkg/store"
	"github.com/ethpandaops/bundleoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// maxSummaryChars keeps appended step summaries under CI size limits.
const maxSummaryChars = 65000

var (
	analyzeTarget        string
	analyzeOutputPath    string
	analyzeGzip          bool
	analyzeIgnore        []string
	analyzeBranch        string
	analyzeCommit        string
	analyzeURL           string
	analyzeDevice        string
	analyzeMetricsFile   string
	analyzeFormat        string
	analyzeReportDir     string
	analyzeReportFormats []string
	analyzeSummaryFile   string
	analyzeUpload        bool
	analyzeDryRun        bool
	analyzeNoSystemInfo  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a build output directory and record the result",
	Long: `Walk a build output directory, measure every file, evaluate the sizes
and optional audit metrics against the configured budgets and save the
build to history. Exits non-zero when any budget is exceeded.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	f := analyzeCmd.Flags()
	f.StringVar(&analyzeTarget, "target", "", "configured target name")
	f.StringVar(&analyzeOutputPath, "output-path", "", "build output directory (overrides the target)")
	f.BoolVar(&analyzeGzip, "gzip", false, "compute gzip sizes")
	f.StringSliceVar(&analyzeIgnore, "ignore", nil, "glob patterns to skip (repeatable)")
	f.StringVar(&analyzeBranch, "branch", "", "branch name recorded with the build")
	f.StringVar(&analyzeCommit, "commit", "", "commit hash recorded with the build")
	f.StringVar(&analyzeURL, "url", "", "audited page URL recorded with the build")
	f.StringVar(&analyzeDevice, "device", "", "audit device class (mobile, desktop)")
	f.StringVar(&analyzeMetricsFile, "metrics-file", "", "audit result file (flat JSON, Lighthouse or browsertime)")
	f.StringVarP(&analyzeFormat, "output", "o", "table", "stdout format (table, json, yaml, markdown)")
	f.StringVar(&analyzeReportDir, "report-dir", "", "write report files under this directory")
	f.StringSliceVar(&analyzeReportFormats, "report-format", []string{report.FormatJSON, report.FormatMarkdown},
		"report file formats (json, yaml, markdown)")
	f.StringVar(&analyzeSummaryFile, "summary-file", "", "append a markdown summary to this file (e.g. $GITHUB_STEP_SUMMARY)")
	f.BoolVar(&analyzeUpload, "upload", false, "upload report files to the configured S3 bucket")
	f.BoolVar(&analyzeDryRun, "dry-run", false, "evaluate without saving to history")
	f.BoolVar(&analyzeNoSystemInfo, "no-system-info", false, "omit host details from reports")
}

// budgetExceededError signals an overall error status so main can exit
// non-zero without treating it as a failure of the tool itself.
type budgetExceededError struct {
	status build.Status
	total  int64
}

func (e *budgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded (total size %s)", sizeunit.Format(e.total))
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	format := strings.ToLower(analyzeFormat)
	if format != report.FormatMarkdown {
		if _, err := output.ParseFormat(format); err != nil {
			return err
		}
	}

	if analyzeDevice != "" && analyzeDevice != build.DeviceMobile && analyzeDevice != build.DeviceDesktop {
		return fmt.Errorf("invalid device %q (want %s or %s)", analyzeDevice, build.DeviceMobile, build.DeviceDesktop)
	}

	target, err := resolveTarget(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	logger := log.WithFields(logrus.Fields{
		"target": target.Name,
		"path":   target.OutputPath,
	})

	bundles, err := analyzer.NewAnalyzer(log).Analyze(ctx, analyzer.Options{
		OutputPath:  target.OutputPath,
		Gzip:        target.Gzip,
		IgnorePaths: target.IgnorePaths,
	})
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", target.OutputPath, err)
	}

	if len(bundles) == 0 {
		logger.Warn("No files found in build output")
	}

	var metrics *build.Metrics

	if analyzeMetricsFile != "" {
		metrics, err = audit.Load(analyzeMetricsFile)
		if err != nil {
			return err
		}
	}

	b := &build.Build{
		Timestamp:  time.Now().UTC(),
		Branch:     optional(analyzeBranch),
		CommitHash: optional(analyzeCommit),
		URL:        optional(analyzeURL),
		Device:     optional(analyzeDevice),
		Metrics:    metrics,
	}

	prev, err := st.LatestBuild(ctx, store.Filter{Branch: b.Branch, URL: b.URL, Device: b.Device})
	if err != nil {
		return fmt.Errorf("loading previous build: %w", err)
	}

	store.ApplyDeltas(bundles, prev)

	budgets := cfg.BudgetSet()

	res, err := budget.Check(bundles, metrics, budgets)
	if err != nil {
		return fmt.Errorf("checking budgets: %w", err)
	}

	b.Bundles = res.Bundles
	b.Recommendations = budget.Recommend(res, budgets)

	if !analyzeDryRun {
		id, err := st.Save(ctx, b)
		if err != nil {
			return fmt.Errorf("saving build: %w", err)
		}

		b.ID = id
	}

	logger.WithFields(logrus.Fields{
		"build_id": b.ID,
		"bundles":  len(b.Bundles),
		"total":    sizeunit.Format(res.TotalSize),
		"status":   res.Status,
	}).Info("Build analyzed")

	rep := &report.Report{
		Target:      target.Name,
		GeneratedAt: b.Timestamp,
		Build:       b,
		Result:      res,
	}

	if prev != nil {
		rep.Comparison = store.Compare(prev, b)
	}

	if !analyzeNoSystemInfo {
		rep.System = report.CollectSystemInfo(ctx)
	}

	if err := printReport(format, rep); err != nil {
		return err
	}

	if err := publishReport(ctx, cfg, rep); err != nil {
		return err
	}

	if res.Status == build.StatusError {
		return &budgetExceededError{status: res.Status, total: res.TotalSize}
	}

	return nil
}

// resolveTarget picks the configured target and applies flag overrides.
// --output-path alone describes an ad-hoc target.
func resolveTarget(cmd *cobra.Command, cfg *config.Config) (config.TargetConfig, error) {
	var target config.TargetConfig

	if analyzeTarget != "" || (analyzeOutputPath == "" && len(cfg.Targets) > 0) {
		t, err := cfg.Target(analyzeTarget)
		if err != nil {
			return target, err
		}

		target = *t
	} else {
		target.Name = "default"
	}

	flags := cmd.Flags()

	if analyzeOutputPath != "" {
		target.OutputPath = analyzeOutputPath
	}

	if flags.Changed("gzip") {
		target.Gzip = analyzeGzip
	}

	if flags.Changed("ignore") {
		target.IgnorePaths = analyzeIgnore
	}

	if target.OutputPath == "" {
		return target, fmt.Errorf("no build output path (use --output-path or configure a target)")
	}

	return target, nil
}

func printReport(format string, rep *report.Report) error {
	if format == report.FormatMarkdown {
		return report.Write(os.Stdout, report.FormatMarkdown, rep)
	}

	f, _ := output.ParseFormat(format)

	return output.NewFormatter(f, os.Stdout).Print(rep, resultTables(rep)...)
}

// publishReport writes report files, the CI summary and the S3 upload.
func publishReport(ctx context.Context, cfg *config.Config, rep *report.Report) error {
	if analyzeSummaryFile != "" {
		if err := appendSummary(analyzeSummaryFile, report.Markdown(rep)); err != nil {
			return err
		}
	}

	if analyzeReportDir == "" && !analyzeUpload {
		return nil
	}

	if analyzeUpload && !cfg.Upload.S3.Enabled {
		return fmt.Errorf("--upload requires upload.s3.enabled in config")
	}

	baseDir := analyzeReportDir
	if baseDir == "" {
		tmp, err := os.MkdirTemp("", "bundleoor-report-")
		if err != nil {
			return fmt.Errorf("creating temp report dir: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()

		baseDir = tmp
	}

	dir := filepath.Join(baseDir, reportDirName(rep.Build))

	for _, format := range analyzeReportFormats {
		path, err := report.WriteFile(dir, format, rep)
		if err != nil {
			return fmt.Errorf("writing %s report: %w", format, err)
		}

		log.WithField("path", path).Info("Report written")
	}

	if !analyzeUpload {
		return nil
	}

	uploader, err := upload.NewS3Uploader(log, &cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("s3 preflight: %w", err)
	}

	prefix, err := uploader.Upload(ctx, dir)
	if err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}

	log.WithField("prefix", prefix).Info("Report uploaded")

	return nil
}

func reportDirName(b *build.Build) string {
	ts := b.Timestamp.UTC().Format("20060102T150405Z")
	if b.ID == 0 {
		return "dryrun_" + ts
	}

	return fmt.Sprintf("%d_%s", b.ID, ts)
}

// truncateSummary cuts md to at most maxSummaryChars bytes on a rune
// boundary.
func truncateSummary(md string) string {
	if len(md) <= maxSummaryChars {
		return md
	}

	cut := maxSummaryChars
	for cut > 0 && !utf8.RuneStart(md[cut]) {
		cut--
	}

	return md[:cut] + "\n\n_Summary truncated._\n"
}

func appendSummary(path, md string) error {
	md = truncateSummary(md)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening summary file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(md); err != nil {
		return fmt.Errorf("writing summary file: %w", err)
	}

	return f.Close()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
