package cmd

import (
	"os"

	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/logger"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage seamd configuration",
	Long:  `Manage seamd configuration including the SSH key whitelist.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Server]")
		logger.Infof("  Port: %d", cfg.Server.Port)
		logger.Infof("  Bind Address: %s", cfg.Server.BindAddress)
		logger.Infof("  Name: %s", cfg.Server.Name)
		logger.Infof("  Max Clients: %d", cfg.Server.MaxClients)
		logger.Infof("  WebSocket Port: %d", cfg.Server.WebSocketPort)
		logger.Infof("  Ping Interval: %d seconds", cfg.Server.PingInterval)
		logger.Infof("  SSH Host Key: %s", cfg.Server.SSHHostKeyPath)
		logger.Infof("  SSH Authorized Keys: %s", cfg.Server.SSHAuthKeysPath)
		logger.Infof("  SSH Whitelist Only: %v", cfg.Server.SSHWhitelistOnly)
		if len(cfg.Server.SSHWhitelist) > 0 {
			logger.Info("  SSH Whitelist:")
			for _, fp := range cfg.Server.SSHWhitelist {
				logger.Infof("    - %s", fp)
			}
		}

		logger.Info("\n[Display]")
		logger.Infof("  Client Resize: %v", cfg.Display.Resize)
		logger.Infof("  DPI: %d", cfg.Display.DPI)
		logger.Infof("  Refresh Rate: %s", cfg.Display.RefreshRate)
		logger.Infof("  Sync Settings: %v", cfg.Display.SyncSettings)

		logger.Info("\n[Keyboard]")
		logger.Infof("  Sync: %v", cfg.Keyboard.Sync)
		logger.Infof("  Repeat: %dms delay, %dms interval", cfg.Keyboard.RepeatDelay, cfg.Keyboard.RepeatInterval)
		if cfg.Keyboard.Layout != "" {
			logger.Infof("  Layout: %s", cfg.Keyboard.Layout)
		}

		logger.Info("\n[Cursor]")
		logger.Infof("  Forwarding: %v", cfg.Cursor.Enabled)
		if cfg.Cursor.PollInterval > 0 {
			logger.Infof("  Poll Interval: %dms", cfg.Cursor.PollInterval)
		}

		logger.Info("\n[Input]")
		logger.Infof("  Backend: %s", cfg.Input.Backend)
		logger.Infof("  Uinput Name: %s", cfg.Input.UinputName)

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			logger.Infof("Configuration file already exists at: %s", configPath)
			logger.Info("Use --force to overwrite")

			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return nil
			}
		}

		// Seed the defaults, then write them out
		if err := config.Init(); err != nil {
			return err
		}
		if err := config.Save(); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save current configuration to file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Configuration saved to: %s", config.GetConfigPath())
		return nil
	},
}

var configSSHCmd = &cobra.Command{
	Use:   "ssh",
	Short: "Manage the SSH key whitelist",
}

var configSSHListCmd = &cobra.Command{
	Use:   "list",
	Short: "List whitelisted SSH keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		cfg := config.Get()

		if len(cfg.Server.SSHWhitelist) == 0 {
			logger.Info("No SSH keys in whitelist")
		} else {
			logger.Info("Whitelisted SSH Keys:")
			for i, fp := range cfg.Server.SSHWhitelist {
				logger.Infof("%d. %s", i+1, fp)
			}
		}

		if cfg.Server.SSHWhitelistOnly {
			logger.Info("\nWhitelist-only mode is ENABLED")
			logger.Info("Only whitelisted keys may connect")
		} else {
			logger.Info("\nWhitelist-only mode is DISABLED")
			logger.Info("All authorized keys are accepted")
		}

		return nil
	},
}

var configSSHAddCmd = &cobra.Command{
	Use:   "add <fingerprint>",
	Short: "Add an SSH key fingerprint to the whitelist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		fingerprint := args[0]

		if config.IsSSHKeyWhitelisted(fingerprint) {
			logger.Infof("SSH key already whitelisted: %s", fingerprint)
			return nil
		}
		if err := config.AddSSHKeyToWhitelist(fingerprint); err != nil {
			return err
		}

		logger.Infof("Added SSH key to whitelist: %s", fingerprint)
		return nil
	},
}

var configSSHRemoveCmd = &cobra.Command{
	Use:   "remove <fingerprint>",
	Short: "Remove an SSH key from the whitelist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		fingerprint := args[0]

		if err := config.RemoveSSHKeyFromWhitelist(fingerprint); err != nil {
			return err
		}

		logger.Infof("Removed SSH key from whitelist: %s", fingerprint)
		return nil
	},
}

var configSSHClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all SSH keys from the whitelist",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		cfg := config.Get()
		count := len(cfg.Server.SSHWhitelist)

		if count == 0 {
			logger.Info("Whitelist is already empty")
			return nil
		}

		cfg.Server.SSHWhitelist = []string{}
		if err := config.UpdateServer(cfg.Server); err != nil {
			return err
		}

		logger.Infof("Cleared %d SSH key(s) from whitelist", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSaveCmd)
	configCmd.AddCommand(configSSHCmd)

	configSSHCmd.AddCommand(configSSHListCmd)
	configSSHCmd.AddCommand(configSSHAddCmd)
	configSSHCmd.AddCommand(configSSHRemoveCmd)
	configSSHCmd.AddCommand(configSSHClearCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
}
