package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seamd/seamd/internal/ipc"
)

func TestShortUUID(t *testing.T) {
	assert.Equal(t, "b53f3a41", ShortUUID("b53f3a41-0756-4aa2-9cbb-46ff65e47140"))
	assert.Equal(t, "nodashes", ShortUUID("nodashes"))
	assert.Equal(t, "", ShortUUID(""))
}

func TestFormatLatency(t *testing.T) {
	assert.Equal(t, "-", FormatLatency(-1))
	assert.Equal(t, "0ms", FormatLatency(0))
	assert.Equal(t, "42ms", FormatLatency(42))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0s", FormatSeconds(-5))
	assert.Equal(t, "42s", FormatSeconds(42))
	assert.Equal(t, "3m12s", FormatSeconds(192))
	assert.Equal(t, "2h5m", FormatSeconds(2*3600+5*60+9))
}

func TestClientLabels(t *testing.T) {
	assert.Equal(t, "alice@laptop", clientLabel(ipc.SessionEntry{Username: "alice", Hostname: "laptop"}))
	assert.Equal(t, "alice", clientLabel(ipc.SessionEntry{Username: "alice"}))
	assert.Equal(t, "-", clientLabel(ipc.SessionEntry{}))

	assert.Equal(t, "ui", clientType(ipc.SessionEntry{UIClient: true}))
	assert.Equal(t, "ui+s", clientType(ipc.SessionEntry{UIClient: true, Share: true}))
	assert.Equal(t, "info", clientType(ipc.SessionEntry{}))
}

func TestSessionTableEmpty(t *testing.T) {
	table := &SessionTable{Title: "Connected Clients", Width: 100}
	out := table.View()
	assert.Contains(t, out, "Connected Clients")
	assert.Contains(t, out, "No clients connected")
}

func TestSessionTableRows(t *testing.T) {
	table := &SessionTable{
		Title: "Connected Clients",
		Width: 120,
		Sessions: []ipc.SessionEntry{
			{
				UUID:             "b53f3a41-0756-4aa2-9cbb-46ff65e47140",
				Address:          "10.0.0.2:51234",
				Transport:        "ssh",
				UIClient:         true,
				Username:         "alice",
				Hostname:         "laptop",
				LatencyMS:        12,
				UserEvents:       7,
				ConnectedSeconds: 65,
			},
		},
	}
	out := table.View()
	assert.Contains(t, out, "UUID")
	assert.Contains(t, out, "b53f3a41")
	assert.Contains(t, out, "alice@laptop")
	assert.Contains(t, out, "10.0.0.2:51234")
	assert.Contains(t, out, "12ms")
	assert.Contains(t, out, "1m5s")
}

func TestControlsHelp(t *testing.T) {
	help := &ControlsHelp{Controls: []Control{
		{Key: "r", Desc: "refresh"},
		{Key: "q", Desc: "quit"},
	}}
	out := help.View()
	assert.Contains(t, out, "r")
	assert.Contains(t, out, "refresh")
	assert.Contains(t, out, "quit")
}
