package cmd

import (
	"fmt"

	"github.com/seamd/seamd/internal/ipc"
	"github.com/seamd/seamd/internal/ui"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running seamd server",
	Long:  `Ask the running seamd server to shut down over its control socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient()
		if err != nil {
			fmt.Println(ui.WarningStyle.Render("seamd server is not running"))
			return nil
		}
		defer client.Close()

		if err := client.Stop(); err != nil {
			return fmt.Errorf("failed to stop the server: %w", err)
		}

		fmt.Println(ui.SuccessStyle.Render("✓") + " seamd server stopped")
		return nil
	},
}
