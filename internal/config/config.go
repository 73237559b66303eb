// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Display configuration
	Display DisplayConfig `mapstructure:"display"`

	// Keyboard configuration
	Keyboard KeyboardConfig `mapstructure:"keyboard"`

	// Cursor configuration
	Cursor CursorConfig `mapstructure:"cursor"`

	// Input backend configuration
	Input InputConfig `mapstructure:"input"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains transport and session settings
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
	Name        string `mapstructure:"name"`
	MaxClients  int    `mapstructure:"max_clients"`

	// WebSocket transport (0 disables it)
	WebSocketPort int `mapstructure:"websocket_port"`

	// Interval in seconds between server-initiated pings (0 disables)
	PingInterval int `mapstructure:"ping_interval"`

	// SSH configuration
	SSHHostKeyPath   string   `mapstructure:"ssh_host_key_path"`
	SSHAuthKeysPath  string   `mapstructure:"ssh_authorized_keys_path"`
	SSHWhitelist     []string `mapstructure:"ssh_whitelist"`      // List of allowed SSH key fingerprints
	SSHWhitelistOnly bool     `mapstructure:"ssh_whitelist_only"` // Only allow whitelisted keys
}

// DisplayConfig contains screen geometry and settings-sync options
type DisplayConfig struct {
	// Allow clients to drive the server resolution
	Resize bool `mapstructure:"resize"`

	// Forced DPI; 0 means derive it from the client
	DPI int `mapstructure:"dpi"`

	// "auto", an absolute rate ("60"), or a percentage ("50%")
	RefreshRate string `mapstructure:"refresh_rate"`

	// Apply client desktop settings (resource manager, xsettings)
	SyncSettings bool `mapstructure:"sync_settings"`
}

// KeyboardConfig contains key replay settings
type KeyboardConfig struct {
	// Server-side key-repeat emulation
	Sync bool `mapstructure:"sync"`

	RepeatDelay    int `mapstructure:"repeat_delay"`
	RepeatInterval int `mapstructure:"repeat_interval"`

	// Default layout when no client imposes one
	Layout  string `mapstructure:"layout"`
	Variant string `mapstructure:"variant"`
	Options string `mapstructure:"options"`
}

// CursorConfig controls cursor forwarding
type CursorConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Polling fallback in milliseconds when change events are unavailable
	PollInterval int `mapstructure:"poll_interval"`
}

// InputConfig selects the key injection backend
type InputConfig struct {
	// "auto", "xtest", "uinput" or "none"
	Backend string `mapstructure:"backend"`

	// Name given to the virtual uinput device
	UinputName string `mapstructure:"uinput_name"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	FileLogging bool   `mapstructure:"file_logging"` // Enable/disable file logging
	LogLevel    string `mapstructure:"log_level"`    // Override SEAMD_LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Server: ServerConfig{
			Port:             14500,
			BindAddress:      "0.0.0.0",
			Name:             getHostname(),
			MaxClients:       10,
			WebSocketPort:    14501,
			PingInterval:     5,
			SSHHostKeyPath:   "/etc/seamd/host_key",
			SSHAuthKeysPath:  "/etc/seamd/authorized_keys",
			SSHWhitelist:     []string{},
			SSHWhitelistOnly: false,
		},
		Display: DisplayConfig{
			Resize:       true,
			DPI:          0,
			RefreshRate:  "auto",
			SyncSettings: true,
		},
		Keyboard: KeyboardConfig{
			Sync:           true,
			RepeatDelay:    500,
			RepeatInterval: 30,
		},
		Cursor: CursorConfig{
			Enabled:      true,
			PollInterval: 0,
		},
		Input: InputConfig{
			Backend:    "auto",
			UinputName: "seamd virtual keyboard",
		},
		Logging: LoggingConfig{
			FileLogging: true, // Enable file logging by default
			LogLevel:    "",   // Empty means use SEAMD_LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	// Set config name and type
	viper.SetConfigName("seamd")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		// Add config paths in order of precedence
		viper.AddConfigPath("/etc/seamd") // System config directory (primary)

		// If running with sudo, try the real user's config
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			userConfigPath := fmt.Sprintf("/home/%s/.config/seamd", sudoUser)
			viper.AddConfigPath(userConfigPath)
		} else if home := os.Getenv("HOME"); home != "" && home != "/root" {
			// Normal user config
			viper.AddConfigPath(filepath.Join(home, ".config", "seamd"))
		}

		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("server.port", DefaultConfig.Server.Port)
	viper.SetDefault("server.bind_address", DefaultConfig.Server.BindAddress)
	viper.SetDefault("server.name", DefaultConfig.Server.Name)
	viper.SetDefault("server.max_clients", DefaultConfig.Server.MaxClients)
	viper.SetDefault("server.websocket_port", DefaultConfig.Server.WebSocketPort)
	viper.SetDefault("server.ping_interval", DefaultConfig.Server.PingInterval)
	viper.SetDefault("server.ssh_host_key_path", DefaultConfig.Server.SSHHostKeyPath)
	viper.SetDefault("server.ssh_authorized_keys_path", DefaultConfig.Server.SSHAuthKeysPath)
	viper.SetDefault("server.ssh_whitelist", DefaultConfig.Server.SSHWhitelist)
	viper.SetDefault("server.ssh_whitelist_only", DefaultConfig.Server.SSHWhitelistOnly)

	viper.SetDefault("display.resize", DefaultConfig.Display.Resize)
	viper.SetDefault("display.dpi", DefaultConfig.Display.DPI)
	viper.SetDefault("display.refresh_rate", DefaultConfig.Display.RefreshRate)
	viper.SetDefault("display.sync_settings", DefaultConfig.Display.SyncSettings)

	viper.SetDefault("keyboard.sync", DefaultConfig.Keyboard.Sync)
	viper.SetDefault("keyboard.repeat_delay", DefaultConfig.Keyboard.RepeatDelay)
	viper.SetDefault("keyboard.repeat_interval", DefaultConfig.Keyboard.RepeatInterval)
	viper.SetDefault("keyboard.layout", DefaultConfig.Keyboard.Layout)
	viper.SetDefault("keyboard.variant", DefaultConfig.Keyboard.Variant)
	viper.SetDefault("keyboard.options", DefaultConfig.Keyboard.Options)

	viper.SetDefault("cursor.enabled", DefaultConfig.Cursor.Enabled)
	viper.SetDefault("cursor.poll_interval", DefaultConfig.Cursor.PollInterval)

	viper.SetDefault("input.backend", DefaultConfig.Input.Backend)
	viper.SetDefault("input.uinput_name", DefaultConfig.Input.UinputName)

	viper.SetDefault("logging.file_logging", DefaultConfig.Logging.FileLogging)
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	// Read config file if it exists. With an explicit --config path
	// viper reports a plain fs.ErrNotExist instead of
	// ConfigFileNotFoundError, so tolerate both.
	if err := viper.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	// Unmarshal config
	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		// If we can't create it (e.g., /etc/seamd needs sudo), provide helpful message
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config
	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	// If override is set, use that
	if configPathOverride != "" {
		return configPathOverride
	}

	// Check if config file is already loaded
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	// For servers/sudo, prefer system config
	if os.Getuid() == 0 || os.Getenv("SUDO_USER") != "" {
		return "/etc/seamd/seamd.toml"
	}

	// For regular users, use user config directory
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/seamd/seamd.toml"
	}

	return filepath.Join(home, ".config", "seamd", "seamd.toml")
}

// UpdateServer updates server configuration
func UpdateServer(serverCfg ServerConfig) error {
	viper.Set("server", serverCfg)
	cfg.Server = serverCfg
	return Save()
}

// AddSSHKeyToWhitelist adds an SSH key fingerprint to the whitelist
func AddSSHKeyToWhitelist(fingerprint string) error {
	cfg := Get()

	// Check if already whitelisted
	for _, fp := range cfg.Server.SSHWhitelist {
		if fp == fingerprint {
			return fmt.Errorf("key already whitelisted")
		}
	}

	// Add to whitelist
	cfg.Server.SSHWhitelist = append(cfg.Server.SSHWhitelist, fingerprint)
	viper.Set("server.ssh_whitelist", cfg.Server.SSHWhitelist)
	return Save()
}

// RemoveSSHKeyFromWhitelist removes an SSH key fingerprint from the whitelist
func RemoveSSHKeyFromWhitelist(fingerprint string) error {
	cfg := Get()

	// Find and remove
	for i, fp := range cfg.Server.SSHWhitelist {
		if fp == fingerprint {
			cfg.Server.SSHWhitelist = append(cfg.Server.SSHWhitelist[:i], cfg.Server.SSHWhitelist[i+1:]...)
			viper.Set("server.ssh_whitelist", cfg.Server.SSHWhitelist)
			return Save()
		}
	}

	return fmt.Errorf("key not found in whitelist")
}

// IsSSHKeyWhitelisted checks if an SSH key fingerprint is whitelisted
func IsSSHKeyWhitelisted(fingerprint string) bool {
	cfg := Get()

	for _, fp := range cfg.Server.SSHWhitelist {
		if fp == fingerprint {
			return true
		}
	}

	return false
}

// Helper function to get hostname
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "seamd-server"
	}
	return hostname
}
