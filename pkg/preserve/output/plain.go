package output

import (
	"bytes"
	"strings"
	"text/tabwriter"
)

// PlainFormatter writes an aligned table without colors, followed by the
// summary as "label: value" lines. It is the default when stdout is not
// a terminal.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, m := range r.Meta {
		w.WriteString(m.Label + ": " + m.Value + "\n")
	}
	if len(r.Meta) > 0 {
		w.WriteByte('\n')
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := tw.Write([]byte(strings.ToUpper(strings.Join(r.Columns, "\t")) + "\n")); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if _, err := tw.Write([]byte(strings.Join(row.Cells, "\t") + "\n")); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Summary) > 0 {
		w.WriteByte('\n')
		for _, s := range r.Summary {
			w.WriteString(s.Label + ": " + s.Value + "\n")
		}
	}
	for _, warning := range r.Warnings {
		w.WriteString("warning: " + warning + "\n")
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
