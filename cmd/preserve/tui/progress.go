package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// ProgressFunc reports that done of total files have been handled; path is
// the file just finished.
type ProgressFunc func(done, total int, path string)

// Task is the work shown by Run.
type Task func(ctx context.Context, report ProgressFunc) error

// ProgressMsg is sent after each file.
type ProgressMsg struct {
	Done  int
	Total int
	Path  string
}

// DoneMsg is sent when the task returns.
type DoneMsg struct {
	Err error
}

// Model is the progress view.
type Model struct {
	title     string
	spinner   spinner.Model
	bar       progress.Model
	done      int
	total     int
	current   string
	startTime time.Time
	width     int
	finished  bool
	err       error
	cancel    context.CancelFunc
}

// NewModel creates a progress view. cancel is called when the user quits.
func NewModel(title string, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		title:     title,
		spinner:   s,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		startTime: time.Now(),
		width:     80,
		cancel:    cancel,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			m.err = context.Canceled
			return m, tea.Quit
		}
		return m, nil

	case ProgressMsg:
		// Workers finish out of order.
		if msg.Done > m.done {
			m.done = msg.Done
		}
		m.total = msg.Total
		m.current = msg.Path
		return m, nil

	case DoneMsg:
		m.finished = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Percent returns the completed fraction.
func (m Model) Percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// View renders the progress view.
func (m Model) View() string {
	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	switch {
	case m.finished && m.err != nil:
		b.WriteString(errorTextStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
	case m.finished:
		b.WriteString(successTextStyle.Render("  Done"))
	default:
		fmt.Fprintf(&b, "  %s %s", m.spinner.View(), pathStyle.Render(truncatePath(m.current, contentWidth-8)))
	}
	b.WriteString("\n\n  ")

	m.bar.Width = contentWidth - 4
	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString("\n\n")
	b.WriteString(m.renderStats(contentWidth))

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

// renderHeader draws the spinner, title and current path.
func (m Model) renderHeader(width int) string {
	title := titleStyle.Render("  " + m.title)
	hint := mutedTextStyle.Render("[Ctrl+C to stop]")
	spacing := max(width-lipgloss.Width(title)-lipgloss.Width(hint), 1)
	return title + strings.Repeat(" ", spacing) + hint
}

// renderStats lays out the stat boxes in one row.
func (m Model) renderStats(totalWidth int) string {
	boxWidth := max((totalWidth-8)/3, 10)

	files := "-"
	if m.total > 0 {
		files = fmt.Sprintf("%s / %s", humanize.Comma(int64(m.done)), humanize.Comma(int64(m.total)))
	}
	percent := fmt.Sprintf("%.0f%%", m.Percent()*100)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		"  ", renderStatBox("Files", files, boxWidth),
		" ", renderStatBox("Progress", percent, boxWidth),
		" ", renderStatBox("Time", formatDuration(time.Since(m.startTime)), boxWidth))
}

func renderStatBox(label, value string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		statsLabelStyle.Render(label),
		statsValueStyle.Render(value))
	return statsBoxStyle.Width(width).Align(lipgloss.Center).Render(content)
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}

// Run shows the progress view on stderr while task runs. Quitting the view
// cancels the task's context; Run still waits for the task to return and
// returns its error.
func Run(ctx context.Context, title string, task Task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title, cancel), tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	errc := make(chan error, 1)
	go func() {
		err := task(ctx, func(done, total int, path string) {
			p.Send(ProgressMsg{Done: done, Total: total, Path: path})
		})
		errc <- err
		p.Send(DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-errc
		return fmt.Errorf("progress view: %w", err)
	}
	return <-errc
}
