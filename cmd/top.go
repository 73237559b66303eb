package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/seamd/seamd/internal/ipc"
	"github.com/seamd/seamd/internal/ui"
	"github.com/spf13/cobra"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live dashboard of the running server",
	Long: `Show a continuously refreshing view of the running seamd server:
connected clients, their latency and event counts, and the server load.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient()
		if err != nil {
			return fmt.Errorf("cannot reach the server, is it running? (%w)", err)
		}
		defer client.Close()

		p := tea.NewProgram(ui.NewTopModel(client), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("dashboard error: %w", err)
		}
		return nil
	},
}
