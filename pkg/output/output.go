// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format is a CLI output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string. Empty selects table output.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Table is tabular data for table output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Formatter writes results in one format.
type Formatter struct {
	Format Format
	Writer io.Writer
}

// NewFormatter creates a formatter writing to w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{Format: format, Writer: w}
}

// Print renders tables as text in table mode and data otherwise. data is
// what JSON and YAML consumers receive.
func (f *Formatter) Print(data any, tables ...Table) error {
	switch f.Format {
	case FormatJSON:
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")

		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)

		if err := enc.Encode(data); err != nil {
			return err
		}

		return enc.Close()
	default:
		for i, t := range tables {
			if i > 0 {
				_, _ = fmt.Fprintln(f.Writer)
			}

			f.printTable(t)
		}

		return nil
	}
}

func (f *Formatter) printTable(t Table) {
	if t.Title != "" {
		_, _ = fmt.Fprintln(f.Writer, t.Title)
	}

	if len(t.Rows) == 0 {
		_, _ = fmt.Fprintln(f.Writer, "  (none)")

		return
	}

	table := tablewriter.NewWriter(f.Writer)

	if len(t.Headers) > 0 {
		table.SetHeader(t.Headers)
	}

	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(t.Rows)
	table.Render()
}
