// Package tui provides the interactive progress view shown while preserve
// copies, restores or verifies files on a terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for the TUI.
var (
	primaryColor = lipgloss.Color("#7D56F4")
	accentColor  = lipgloss.Color("#00D9FF")

	successColor = lipgloss.Color("#28A745")
	dangerColor  = lipgloss.Color("#DC3545")

	mutedColor  = lipgloss.Color("#666666")
	borderColor = lipgloss.Color("#333333")
)

var (
	// outerBoxStyle is the main container style.
	outerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(borderColor)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	successTextStyle = lipgloss.NewStyle().
				Foreground(successColor)

	pathStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	statsValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	statsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)
)

// renderDivider returns a horizontal rule of the given width.
func renderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	b := make([]rune, width)
	for i := range b {
		b[i] = '─'
	}
	return dividerStyle.Render(string(b))
}

// truncatePath shortens p from the left so it fits in width cells.
func truncatePath(p string, width int) string {
	if width < 4 {
		width = 4
	}
	r := []rune(p)
	if len(r) <= width {
		return p
	}
	return "..." + string(r[len(r)-width+3:])
}
