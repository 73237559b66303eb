package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seamd/seamd/internal/ipc"
)

// pollInterval is how often the dashboard refreshes from the control
// socket.
const pollInterval = time.Second

// TopModel is the Bubble Tea model behind `seamd top`: a live view of
// the server and its connected clients, refreshed over the control
// socket.
type TopModel struct {
	client *ipc.Client

	status   *StatusBar
	table    *SessionTable
	controls *ControlsHelp

	info    map[string]any
	fetched bool
	err     error

	width    int
	height   int
	quitting bool
}

// NewTopModel creates the dashboard model around a control socket
// client.
func NewTopModel(client *ipc.Client) *TopModel {
	return &TopModel{
		client: client,
		status: NewStatusBar("seamd"),
		table: &SessionTable{
			Title: "Connected Clients",
		},
		controls: &ControlsHelp{
			Controls: []Control{
				{Key: "r", Desc: "refresh"},
				{Key: "q", Desc: "quit"},
			},
		},
	}
}

type tickMsg time.Time

// statsMsg carries one poll result back into the model.
type statsMsg struct {
	sessions []ipc.SessionEntry
	info     map[string]any
	err      error
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetch runs off the UI goroutine and reports both the roster and the
// server info in one message.
func (m *TopModel) fetch() tea.Msg {
	sessions, err := m.client.Sessions()
	if err != nil {
		return statsMsg{err: err}
	}
	info, err := m.client.Info()
	if err != nil {
		return statsMsg{sessions: sessions, err: err}
	}
	return statsMsg{sessions: sessions, info: info}
}

// Init implements tea.Model
func (m *TopModel) Init() tea.Cmd {
	return tea.Batch(m.status.Init(), m.fetch, tick())
}

// Update implements tea.Model
func (m *TopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.status.Width = msg.Width
		m.table.Width = msg.Width
		m.controls.Width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.fetch, tick())

	case statsMsg:
		m.fetched = true
		m.err = msg.err
		m.table.Sessions = msg.sessions
		if msg.info != nil {
			m.info = msg.info
		}
		m.status.Connected = msg.err == nil
		m.status.Status = m.statusLine()
	}

	status, cmd := m.status.Update(msg)
	m.status = status
	return m, cmd
}

// View implements tea.Model
func (m *TopModel) View() string {
	if m.quitting {
		return MutedStyle.Render("Closing the dashboard...\n")
	}

	var sections []string
	sections = append(sections, HeaderStyle.Render(m.headerLine()))
	sections = append(sections, m.status.View())

	if m.err != nil {
		msg := fmt.Sprintf("%s cannot reach the server: %v", IconError, m.err)
		sections = append(sections, BoxStyle.Width(m.width).Render(ErrorStyle.Render(msg)))
	} else if m.fetched {
		sections = append(sections, m.table.View())
	}

	sections = append(sections, m.controls.View())
	return lipgloss.JoinVertical(lipgloss.Top, sections...)
}

func (m *TopModel) headerLine() string {
	name := infoStr(m.serverInfo(), "session_name")
	if name == "" {
		return "seamd"
	}
	return "seamd - " + name
}

// statusLine summarizes the server namespace of the last info poll.
func (m *TopModel) statusLine() string {
	if m.err != nil {
		return "disconnected"
	}
	srv := m.serverInfo()
	parts := []string{
		fmt.Sprintf("%d client(s)", len(m.table.Sessions)),
	}
	if up := infoInt(srv, "uptime"); up > 0 {
		parts = append(parts, "up "+FormatSeconds(up))
	}
	if load, ok := srv["load"].([]any); ok && len(load) == 3 {
		parts = append(parts, fmt.Sprintf("load %.2f %.2f %.2f",
			float64(jsonInt(load[0]))/1000,
			float64(jsonInt(load[1]))/1000,
			float64(jsonInt(load[2]))/1000))
	}
	if v := infoStr(srv, "version"); v != "" {
		parts = append(parts, "v"+v)
	}
	return strings.Join(parts, " · ")
}

func (m *TopModel) serverInfo() map[string]any {
	if m.info == nil {
		return nil
	}
	srv, _ := m.info["server"].(map[string]any)
	return srv
}

func infoStr(info map[string]any, key string) string {
	if info == nil {
		return ""
	}
	s, _ := info[key].(string)
	return s
}

func infoInt(info map[string]any, key string) int64 {
	if info == nil {
		return 0
	}
	return jsonInt(info[key])
}

// jsonInt coerces the number shapes JSON decoding produces.
func jsonInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
