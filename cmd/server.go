package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverPort  int
	bindAddress string
	wsPort      int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the seamd server",
	Long: `Run the seamd server for the current session. The server listens for
client connections over SSH and WebSocket, applies their key events and
display preferences to the session, and keeps them fed with cursor and
setting changes until they disconnect.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "SSH port to listen on")
	serverCmd.Flags().StringVarP(&bindAddress, "bind", "b", "", "Bind address")
	serverCmd.Flags().IntVar(&wsPort, "ws-port", -1, "WebSocket port to listen on (0 disables)")

	// Bind flags to viper
	viper.BindPFlag("server.port", serverCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.bind_address", serverCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.websocket_port", serverCmd.Flags().Lookup("ws-port"))
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Ensure config file exists; Init has already seeded the defaults
	if err := ensureServerConfig(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	// Get configuration
	cfg := config.Get()

	// Use flag values if provided, otherwise use config
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if bindAddress != "" {
		cfg.Server.BindAddress = bindAddress
	}
	if wsPort >= 0 {
		cfg.Server.WebSocketPort = wsPort
	}
	if cfg.Logging.LogLevel != "" && !debugMode {
		logger.SetLevelString(cfg.Logging.LogLevel)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Infof("Starting seamd session '%s' on %s:%d", cfg.Server.Name, cfg.Server.BindAddress, cfg.Server.Port)
	if cfg.Server.WebSocketPort > 0 {
		logger.Infof("WebSocket listener on %s:%d", cfg.Server.BindAddress, cfg.Server.WebSocketPort)
	}
	logger.Infof("SSH Host Key: %s", cfg.Server.SSHHostKeyPath)
	logger.Infof("SSH Authorized Keys: %s", cfg.Server.SSHAuthKeysPath)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Infof("Received %s, shutting down", sig)
		cancel()
	}()

	return srv.Run(ctx)
}

// ensureServerConfig ensures the config file exists when running as server
func ensureServerConfig() error {
	configPath := config.GetConfigPath()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Infof("No config file found. Creating default config at %s", configPath)

		// Save default config
		if err := config.Save(); err != nil {
			return err
		}

		logger.Info("Default configuration created successfully")
	}

	return nil
}
