package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/budget"
	"github.com/ethpandaops/bundleoor/pkg/build"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Report is the outcome of one analyze run as handed to renderers and
// uploaders.
type Report struct {
	Target      string            `json:"target" yaml:"target"`
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	Build       *build.Build      `json:"build" yaml:"build"`
	Result      *budget.Result    `json:"result" yaml:"result"`
	Comparison  *build.Comparison `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	System      *SystemInfo       `json:"system,omitempty" yaml:"system,omitempty"`
}

// Write renders v in the given format. Markdown is only available for
// reports; other values are rendered as JSON or YAML.
func Write(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}

		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}

		return enc.Close()
	case FormatMarkdown:
		rep, ok := v.(*Report)
		if !ok {
			return fmt.Errorf("markdown output is only supported for build reports")
		}

		_, err := io.WriteString(w, Markdown(rep))

		return err
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// WriteFile renders rep into dir as report.<ext> and returns the path.
func WriteFile(dir, format string, rep *Report) (string, error) {
	ext := map[string]string{
		FormatJSON:     "json",
		"":             "json",
		FormatYAML:     "yaml",
		FormatMarkdown: "md",
	}[format]
	if ext == "" {
		return "", fmt.Errorf("unsupported format %q", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	path := filepath.Join(dir, "report."+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := Write(f, format, rep); err != nil {
		return "", err
	}

	return path, f.Close()
}
