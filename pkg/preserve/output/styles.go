package output

import "github.com/charmbracelet/lipgloss"

// Color constants using the ANSI 256-color palette.
const (
	// ColorPrimary is used for headers and titles (bright blue).
	ColorPrimary = lipgloss.Color("39")

	// ColorSuccess marks verified, copied and restored files (green).
	ColorSuccess = lipgloss.Color("42")

	// ColorWarning marks skipped or unverified files (orange).
	ColorWarning = lipgloss.Color("214")

	// ColorDanger marks failures (red).
	ColorDanger = lipgloss.Color("196")

	// ColorMuted is used for labels and secondary text (gray).
	ColorMuted = lipgloss.Color("245")
)

var (
	// HeaderBox frames the metadata above the table.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	// FooterBox frames the summary below the table.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	LabelStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorDanger)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)

	// TableHeaderStyle is used for column headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorMuted)
)

// levelStyle returns the style for a row's status cell.
func levelStyle(l Level) lipgloss.Style {
	switch l {
	case LevelOK:
		return SuccessStyle
	case LevelWarn:
		return WarningStyle
	case LevelError:
		return ErrorStyle.Bold(true)
	default:
		return ValueStyle
	}
}
