package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModelProgress(t *testing.T) {
	m := NewModel("copy", nil)
	if m.Percent() != 0 {
		t.Errorf("expected 0 percent before any progress, got %v", m.Percent())
	}

	next, _ := m.Update(ProgressMsg{Done: 2, Total: 4, Path: "/data/a.txt"})
	m = next.(Model)
	if m.Percent() != 0.5 {
		t.Errorf("expected 0.5, got %v", m.Percent())
	}
	if m.current != "/data/a.txt" {
		t.Errorf("expected current path '/data/a.txt', got %s", m.current)
	}

	// A late message from a slower worker must not move the bar back.
	next, _ = m.Update(ProgressMsg{Done: 1, Total: 4, Path: "/data/b.txt"})
	m = next.(Model)
	if m.done != 2 {
		t.Errorf("expected done to stay 2, got %d", m.done)
	}
}

func TestModelDoneQuits(t *testing.T) {
	m := NewModel("verify", nil)
	wantErr := errors.New("boom")

	next, cmd := m.Update(DoneMsg{Err: wantErr})
	m = next.(Model)
	if !m.finished {
		t.Error("expected finished to be true")
	}
	if !errors.Is(m.err, wantErr) {
		t.Errorf("expected err %v, got %v", wantErr, m.err)
	}
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "boom") {
		t.Error("expected the error in the view")
	}
}

func TestModelCtrlCCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewModel("restore", cancel)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if ctx.Err() == nil {
		t.Error("expected ctrl+c to cancel the task context")
	}
	if cmd == nil {
		t.Error("expected a quit command")
	}
}

func TestViewShowsTitleAndCounts(t *testing.T) {
	m := NewModel("copy", nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	m = next.(Model)
	next, _ = m.Update(ProgressMsg{Done: 1200, Total: 3400, Path: "/data/x"})
	m = next.(Model)

	view := m.View()
	for _, want := range []string{"copy", "1,200 / 3,400", "35%"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path  string
		width int
		want  string
	}{
		{"/short", 20, "/short"},
		{"/a/very/long/path/file.txt", 12, ".../file.txt"},
	}
	for _, tt := range tests {
		got := truncatePath(tt.path, tt.width)
		if got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.width, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(75 * time.Second); got != "1:15" {
		t.Errorf("formatDuration(75s) = %q, want 1:15", got)
	}
}
