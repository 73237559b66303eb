// Package cmd implements the seamd command line interface.
package cmd

import (
	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/server"
	"github.com/spf13/cobra"
)

var (
	// Version is set during build; it defaults to the library version.
	Version = server.Version

	configFile string
	debugMode  bool

	rootCmd = &cobra.Command{
		Use:   "seamd",
		Short: "seamd - seamless session daemon",
		Long: `Seamd keeps a running desktop session in sync with its remote viewers.
It accepts client connections over SSH or WebSocket, replays their key
events into the session, negotiates the display geometry, and forwards
cursor changes back to them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configFile != "" {
				config.SetConfigPath(configFile)
			}
			if debugMode {
				logger.SetLevelString("debug")
			}
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	// Add commands
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(versionCmd)
}
