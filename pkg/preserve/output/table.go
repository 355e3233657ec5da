package output

import (
	"bytes"
	"encoding/csv"
	"strings"
)

// TSVFormatter writes the table as tab-separated values with a header
// row. Tabs and newlines inside cells are replaced by spaces.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(strings.Join(r.Columns, "\t") + "\n")
	for _, row := range r.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = tsvEscaper.Replace(c)
		}
		w.WriteString(strings.Join(cells, "\t") + "\n")
	}
	return nil
}

var tsvEscaper = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func init() {
	Register("tsv", func() Formatter {
		return &TSVFormatter{}
	})
}

// Ensure TSVFormatter implements Formatter.
var _ Formatter = (*TSVFormatter)(nil)

// CSVFormatter writes RFC 4180 comma-separated values.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(r.Columns); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := writer.Write(row.Cells); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

// Ensure CSVFormatter implements Formatter.
var _ Formatter = (*CSVFormatter)(nil)

// MarkdownFormatter writes a GitHub-flavored Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString("| " + strings.Join(escapeAll(r.Columns), " | ") + " |\n")
	seps := make([]string, len(r.Columns))
	for i := range seps {
		seps[i] = "---"
	}
	w.WriteString("|" + strings.Join(seps, "|") + "|\n")
	for _, row := range r.Rows {
		w.WriteString("| " + strings.Join(escapeAll(row.Cells), " | ") + " |\n")
	}
	return nil
}

// escapeAll escapes pipes so cells stay inside their markdown column.
func escapeAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

func init() {
	Register("markdown", func() Formatter {
		return &MarkdownFormatter{}
	})
}

// Ensure MarkdownFormatter implements Formatter.
var _ Formatter = (*MarkdownFormatter)(nil)
