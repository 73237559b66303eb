package cmd

import (
	"fmt"

	"github.com/seamd/seamd/internal/ipc"
	"github.com/seamd/seamd/internal/ui"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the clients connected to the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient()
		if err != nil {
			fmt.Println("seamd server is not running")
			return nil
		}
		defer client.Close()

		sessions, err := client.Sessions()
		if err != nil {
			return fmt.Errorf("failed to query the server: %w", err)
		}

		table := ui.SessionTable{
			Title:    fmt.Sprintf("Connected clients (%d)", len(sessions)),
			Sessions: sessions,
		}
		fmt.Println(table.View())
		return nil
	},
}
