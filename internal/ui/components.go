package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seamd/seamd/internal/ipc"
)

// SpinnerDot is the frame set used by the status bar spinner.
var SpinnerDot = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// StatusBar is the one-line header with a spinner, a title and the
// connection state.
type StatusBar struct {
	Width       int
	Title       string
	Status      string
	Connected   bool
	ShowSpinner bool
	spinner     spinner.Model
}

// NewStatusBar creates a status bar with the spinner running.
func NewStatusBar(title string) *StatusBar {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerDot,
		FPS:    time.Second / 10,
	}
	s.Style = SpinnerStyle

	return &StatusBar{
		Title:       title,
		ShowSpinner: true,
		spinner:     s,
	}
}

// Init implements tea.Model
func (s *StatusBar) Init() tea.Cmd {
	return s.spinner.Tick
}

// Update implements tea.Model
func (s *StatusBar) Update(msg tea.Msg) (*StatusBar, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	case tea.WindowSizeMsg:
		s.Width = msg.Width
	}
	return s, nil
}

// View renders the status bar
func (s *StatusBar) View() string {
	title := TitleStyle.Render(s.Title)

	var status string
	if s.ShowSpinner {
		status = s.spinner.View() + " " + s.Status
	} else {
		status = s.Status
	}
	statusFormatted := FormatStatus(s.Connected, status)

	gap := s.Width - lipgloss.Width(title) - lipgloss.Width(statusFormatted) - 2
	if gap < 0 {
		gap = 0
	}
	line := title + strings.Repeat(" ", gap) + statusFormatted

	return BoxStyle.Width(s.Width).Render(line)
}

// sessionColumns defines the roster table layout.
var sessionColumns = []struct {
	title string
	width int
}{
	{"UUID", 10},
	{"CLIENT", 18},
	{"ADDRESS", 22},
	{"TRANSPORT", 10},
	{"TYPE", 6},
	{"LATENCY", 9},
	{"EVENTS", 8},
	{"UPTIME", 10},
}

// SessionTable renders the connected client roster.
type SessionTable struct {
	Title    string
	Sessions []ipc.SessionEntry
	Width    int
}

// View renders the session table
func (t *SessionTable) View() string {
	var b strings.Builder

	b.WriteString(SubheaderStyle.Render(t.Title))
	b.WriteString("\n\n")

	if len(t.Sessions) == 0 {
		b.WriteString(MutedStyle.Render("No clients connected"))
		b.WriteString("\n")
		return BoxStyle.Width(t.Width).Render(b.String())
	}

	var header strings.Builder
	for _, col := range sessionColumns {
		header.WriteString(fmt.Sprintf("%-*s", col.width, col.title))
	}
	b.WriteString(TableHeaderStyle.Render(strings.TrimRight(header.String(), " ")))
	b.WriteString("\n")

	for _, s := range t.Sessions {
		cells := []string{
			ShortUUID(s.UUID),
			clientLabel(s),
			s.Address,
			s.Transport,
			clientType(s),
			FormatLatency(s.LatencyMS),
			fmt.Sprintf("%d", s.UserEvents),
			FormatSeconds(s.ConnectedSeconds),
		}
		var row strings.Builder
		for i, col := range sessionColumns {
			row.WriteString(fmt.Sprintf("%-*s", col.width, truncate(cells[i], col.width-1)))
		}
		b.WriteString(TableRowStyle.Render(strings.TrimRight(row.String(), " ")))
		b.WriteString("\n")
	}

	return BoxStyle.Width(t.Width).Render(b.String())
}

// ControlsHelp lists the keyboard shortcuts at the bottom of a
// dashboard.
type ControlsHelp struct {
	Controls []Control
	Width    int
}

// Control is one keyboard shortcut entry.
type Control struct {
	Key  string
	Desc string
}

// View renders the controls help line
func (c *ControlsHelp) View() string {
	entries := make([]string, 0, len(c.Controls))
	for _, ctrl := range c.Controls {
		entries = append(entries, FormatControl(ctrl.Key, ctrl.Desc))
	}
	return SubtleStyle.Render(strings.Join(entries, "   "))
}

func clientLabel(s ipc.SessionEntry) string {
	switch {
	case s.Username != "" && s.Hostname != "":
		return s.Username + "@" + s.Hostname
	case s.Username != "":
		return s.Username
	case s.Hostname != "":
		return s.Hostname
	}
	return "-"
}

func clientType(s ipc.SessionEntry) string {
	if s.UIClient {
		if s.Share {
			return "ui+s"
		}
		return "ui"
	}
	return "info"
}

// ShortUUID trims a uuid to its first group for table display.
func ShortUUID(uuid string) string {
	if idx := strings.IndexByte(uuid, '-'); idx > 0 {
		return uuid[:idx]
	}
	return truncate(uuid, 8)
}

// FormatLatency renders a millisecond latency, "-" while unmeasured.
func FormatLatency(ms int64) string {
	if ms < 0 {
		return "-"
	}
	return fmt.Sprintf("%dms", ms)
}

// FormatSeconds renders a duration in seconds compactly: 42s, 3m12s,
// 2h5m.
func FormatSeconds(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

func truncate(s string, limit int) string {
	if limit <= 1 || len(s) <= limit {
		return s
	}
	return s[:limit-1] + "…"
}
