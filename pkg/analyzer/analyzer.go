package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CompressionLevel is the fixed gzip level used for compressed sizes so
// results are reproducible across runs.
const CompressionLevel = gzip.BestCompression

// Options configures one analysis pass.
type Options struct {
	// OutputPath is the build output directory to walk.
	OutputPath string
	// Gzip enables compressed size computation.
	Gzip bool
	// IgnorePaths are glob patterns matched against slash-separated paths
	// relative to OutputPath. Patterns without a slash also match the
	// base name.
	IgnorePaths []string
	// Concurrency bounds parallel compression. Defaults to the CPU count.
	Concurrency int
}

// Analyzer measures build artifacts on disk.
type Analyzer interface {
	Analyze(ctx context.Context, opts Options) ([]build.Bundle, error)
}

// Compile-time interface check.
var _ Analyzer = (*analyzer)(nil)

type analyzer struct {
	log logrus.FieldLogger
}

// NewAnalyzer creates a new bundle size Analyzer.
func NewAnalyzer(log logrus.FieldLogger) Analyzer {
	return &analyzer{
		log: log.WithField("component", "analyzer"),
	}
}

type artifact struct {
	name string
	path string
	size int64
}

// Analyze walks opts.OutputPath and returns one bundle per regular file that
// is not ignored, sorted by name. A missing directory yields no bundles.
// Any unreadable entry fails the whole pass.
func (a *analyzer) Analyze(
	ctx context.Context, opts Options,
) ([]build.Bundle, error) {
	for _, pattern := range opts.IgnorePaths {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	info, err := os.Stat(opts.OutputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.log.WithField("path", opts.OutputPath).
				Debug("Output path does not exist, nothing to analyze")

			return []build.Bundle{}, nil
		}

		return nil, fmt.Errorf("stat output path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("output path %q is not a directory", opts.OutputPath)
	}

	artifacts, err := collect(opts)
	if err != nil {
		return nil, err
	}

	bundles := make([]build.Bundle, len(artifacts))
	for i, art := range artifacts {
		bundles[i] = build.Bundle{
			Name:   art.name,
			Size:   art.size,
			Status: build.StatusOK,
		}
	}

	if opts.Gzip && len(artifacts) > 0 {
		concurrency := opts.Concurrency
		if concurrency <= 0 {
			concurrency = runtime.NumCPU()
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for i := range artifacts {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}

				gz, err := CompressedSize(artifacts[i].path)
				if err != nil {
					return fmt.Errorf("compressing %s: %w", artifacts[i].name, err)
				}

				// Header overhead can exceed the savings on tiny files.
				gz = min(gz, artifacts[i].size)
				bundles[i].GzipSize = &gz

				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	a.log.WithFields(logrus.Fields{
		"path":    opts.OutputPath,
		"bundles": len(bundles),
		"gzip":    opts.Gzip,
	}).Debug("Analysis complete")

	return bundles, nil
}

// collect walks the output path and returns every non-ignored regular file,
// sorted by name.
func collect(opts Options) ([]artifact, error) {
	var artifacts []artifact

	err := filepath.WalkDir(opts.OutputPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(opts.OutputPath, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		name := filepath.ToSlash(rel)
		if isIgnored(name, opts.IgnorePaths) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		artifacts = append(artifacts, artifact{
			name: name,
			path: path,
			size: info.Size(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", opts.OutputPath, err)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].name < artifacts[j].name
	})

	return artifacts, nil
}

func isIgnored(name string, patterns []string) bool {
	base := name[strings.LastIndex(name, "/")+1:]

	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}

		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}

	return false
}

// CompressedSize returns the gzip size of the file at path using
// CompressionLevel.
func CompressedSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return compressedSize(f)
}

func compressedSize(r io.Reader) (int64, error) {
	var cw countingWriter

	zw, err := gzip.NewWriterLevel(&cw, CompressionLevel)
	if err != nil {
		return 0, fmt.Errorf("creating gzip writer: %w", err)
	}

	if _, err := io.Copy(zw, r); err != nil {
		return 0, fmt.Errorf("compressing: %w", err)
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("flushing gzip writer: %w", err)
	}

	return cw.n, nil
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))

	return len(p), nil
}
