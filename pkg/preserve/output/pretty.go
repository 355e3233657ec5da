package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PrettyFormatter renders results with colors and boxes using lipgloss.
// The first column is treated as the status column and colored by the
// row's level.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	if header := f.formatHeader(r); header != "" {
		w.WriteString(header)
		w.WriteString("\n")
	}

	w.WriteString(f.formatTable(r))

	if len(r.Summary) > 0 {
		w.WriteString(FooterBox.Render(joinFields(r.Summary, "  ")))
		w.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(WarningStyle.Render("  " + warning))
			w.WriteString("\n")
		}
	}
	return nil
}

// formatHeader renders the title and Meta fields.
func (f *PrettyFormatter) formatHeader(r *Result) string {
	if r.Title == "" && len(r.Meta) == 0 {
		return ""
	}
	var lines []string
	if r.Title != "" {
		lines = append(lines, TitleStyle.Render(r.Title))
	}
	for _, m := range r.Meta {
		lines = append(lines, renderField(m))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatTable renders the rows with padded columns.
func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Rows) == 0 {
		return MutedStyle.Render("  Nothing to show") + "\n"
	}

	widths := columnWidths(r)
	var sb strings.Builder

	headers := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		headers[i] = TableHeaderStyle.Render(padRight(strings.ToUpper(c), widths[i]))
	}
	sb.WriteString("  " + strings.Join(headers, "  ") + "\n")

	for _, row := range r.Rows {
		cells := make([]string, len(r.Columns))
		for i := range r.Columns {
			cell := padRight(cellAt(row, i), widths[i])
			if i == 0 {
				cells[i] = levelStyle(row.Level).Render(cell)
			} else {
				cells[i] = ValueStyle.Render(cell)
			}
		}
		sb.WriteString(strings.TrimRight("  "+strings.Join(cells, "  "), " ") + "\n")
	}
	return sb.String()
}

// renderField styles one label and value.
func renderField(fl Field) string {
	return fmt.Sprintf("%s %s", LabelStyle.Render(fl.Label+":"), ValueStyle.Render(fl.Value))
}

func joinFields(fields []Field, sep string) string {
	parts := make([]string, len(fields))
	for i, fl := range fields {
		parts[i] = renderField(fl)
	}
	return strings.Join(parts, sep)
}

// columnWidths returns the display width of the widest cell per column.
func columnWidths(r *Result) []int {
	widths := make([]int, len(r.Columns))
	for i, c := range r.Columns {
		widths[i] = lipgloss.Width(c)
	}
	for _, row := range r.Rows {
		for i := range r.Columns {
			if w := lipgloss.Width(cellAt(row, i)); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

// cellAt returns row.Cells[i], or "" past the end.
func cellAt(row Row, i int) string {
	if i < len(row.Cells) {
		return row.Cells[i]
	}
	return ""
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
