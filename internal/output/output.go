// Package output renders command results as text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Writer handles output in the specified format.
type Writer struct {
	format Format
	w      io.Writer
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w}
}

// Structured reports whether the writer emits machine-readable output.
func (w *Writer) Structured() bool {
	return w.format == FormatJSON || w.format == FormatYAML
}

// Write outputs v in the configured format. In text format, text is printed
// instead when non-nil; otherwise v is printed via fmt.Stringer or %+v.
func (w *Writer) Write(v interface{}, text fmt.Stringer) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	if text == nil {
		if s, ok := v.(fmt.Stringer); ok {
			text = s
		}
	}
	if text != nil {
		_, err := fmt.Fprintln(w.w, strings.TrimRight(text.String(), "\n"))
		return err
	}
	_, err := fmt.Fprintf(w.w, "%+v\n", v)
	return err
}

// Fields is an ordered list of label/value pairs printed as an aligned block.
type Fields [][2]string

// Add appends a pair, skipping empty values.
func (f Fields) Add(label, value string) Fields {
	if value == "" {
		return f
	}
	return append(f, [2]string{label, value})
}

func (f Fields) String() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, kv := range f {
		fmt.Fprintf(tw, "%s:\t%s\n", kv[0], kv[1])
	}
	_ = tw.Flush()
	return b.String()
}

// Table is a header row plus data rows printed in aligned columns.
type Table struct {
	Headers []string
	Rows    [][]string
	Empty   string // printed instead of the table when there are no rows
}

func (t Table) String() string {
	if len(t.Rows) == 0 {
		return t.Empty
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
	return b.String()
}

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}
