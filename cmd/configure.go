package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/seamd/seamd/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive server configuration",
	Long: `Walk through the server settings interactively and save them to the
config file. Existing values are offered as defaults.`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Get()

	name := cfg.Server.Name
	bind := cfg.Server.BindAddress
	port := strconv.Itoa(cfg.Server.Port)
	wsPort := strconv.Itoa(cfg.Server.WebSocketPort)
	backend := cfg.Input.Backend
	refreshRate := cfg.Display.RefreshRate
	resize := cfg.Display.Resize
	keyboardSync := cfg.Keyboard.Sync
	cursors := cfg.Cursor.Enabled
	whitelistOnly := cfg.Server.SSHWhitelistOnly

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Session name").
				Description("Shown to clients during the handshake").
				Value(&name),
			huh.NewInput().
				Title("Bind address").
				Description("Address the listeners bind to").
				Value(&bind),
			huh.NewInput().
				Title("SSH port").
				Description("Port the SSH transport listens on").
				Validate(validatePort).
				Value(&port),
			huh.NewInput().
				Title("WebSocket port").
				Description("Port the WebSocket transport listens on (0 disables)").
				Validate(validatePort).
				Value(&wsPort),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Key injection backend").
				Description("auto probes XTEST first, then uinput").
				Options(
					huh.NewOption("auto", "auto"),
					huh.NewOption("xtest", "xtest"),
					huh.NewOption("uinput", "uinput"),
					huh.NewOption("none", "none"),
				).
				Value(&backend),
			huh.NewInput().
				Title("Refresh rate").
				Description(`"auto", an absolute rate like "60", or a percentage like "50%"`).
				Value(&refreshRate),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Allow clients to resize the display?").
				Description("The session resolution follows the client's screen").
				Value(&resize),
			huh.NewConfirm().
				Title("Enable keyboard sync?").
				Description("Clients drive key repeat; the server keeps keycodes in step").
				Value(&keyboardSync),
			huh.NewConfirm().
				Title("Forward cursor changes?").
				Description("Clients render the session cursor themselves").
				Value(&cursors),
			huh.NewConfirm().
				Title("Restrict SSH to whitelisted keys?").
				Description("Only fingerprints added with 'seamd config ssh add' may connect").
				Value(&whitelistOnly),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("configuration cancelled: %w", err)
	}

	portNum, _ := strconv.Atoi(port)
	wsPortNum, _ := strconv.Atoi(wsPort)

	viper.Set("server.name", name)
	viper.Set("server.bind_address", bind)
	viper.Set("server.port", portNum)
	viper.Set("server.websocket_port", wsPortNum)
	viper.Set("server.ssh_whitelist_only", whitelistOnly)
	viper.Set("input.backend", backend)
	viper.Set("display.refresh_rate", refreshRate)
	viper.Set("display.resize", resize)
	viper.Set("keyboard.sync", keyboardSync)
	viper.Set("cursor.enabled", cursors)

	if err := config.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println("✅ Configuration saved!")
	fmt.Printf("📁 Config file: %s\n", config.GetConfigPath())

	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("port must be between 0 and 65535")
	}
	return nil
}
