package ui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamd/seamd/internal/ipc"
)

func testStats() statsMsg {
	return statsMsg{
		sessions: []ipc.SessionEntry{
			{UUID: "c1", Address: "10.0.0.2:51234", Transport: "ssh", UIClient: true},
		},
		info: map[string]any{
			"server": map[string]any{
				"session_name": "desk",
				"version":      "0.1.0-dev",
				"uptime":       float64(125),
				"load":         []any{float64(420), float64(380), float64(310)},
			},
		},
	}
}

func TestTopModelAppliesStats(t *testing.T) {
	m := NewTopModel(nil)
	updated, _ := m.Update(testStats())
	top, ok := updated.(*TopModel)
	require.True(t, ok)

	assert.True(t, top.fetched)
	assert.NoError(t, top.err)
	assert.Len(t, top.table.Sessions, 1)
	assert.True(t, top.status.Connected)
	assert.Contains(t, top.status.Status, "1 client(s)")
	assert.Contains(t, top.status.Status, "up 2m5s")
	assert.Contains(t, top.status.Status, "load 0.42 0.38 0.31")
}

func TestTopModelShowsFetchError(t *testing.T) {
	m := NewTopModel(nil)
	m.Update(testStats())
	updated, _ := m.Update(statsMsg{err: errors.New("connection refused")})
	top := updated.(*TopModel)

	assert.Error(t, top.err)
	assert.False(t, top.status.Connected)
	assert.Equal(t, "disconnected", top.status.Status)
	assert.Contains(t, top.View(), "cannot reach the server")
}

func TestTopModelKeepsLastInfoAcrossPartialFailure(t *testing.T) {
	m := NewTopModel(nil)
	m.Update(testStats())
	m.Update(statsMsg{err: errors.New("timeout")})

	// the header still knows the session name from the last good poll
	assert.Contains(t, m.headerLine(), "desk")
}

func TestTopModelQuits(t *testing.T) {
	m := NewTopModel(nil)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	top := updated.(*TopModel)

	assert.True(t, top.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Contains(t, top.View(), "Closing")
}

func TestTopModelTickReschedules(t *testing.T) {
	m := NewTopModel(nil)
	_, cmd := m.Update(tickMsg{})
	assert.NotNil(t, cmd)
}

func TestTopModelResize(t *testing.T) {
	m := NewTopModel(nil)
	m.Update(tea.WindowSizeMsg{Width: 132, Height: 40})
	assert.Equal(t, 132, m.table.Width)
	assert.Equal(t, 132, m.status.Width)
}
