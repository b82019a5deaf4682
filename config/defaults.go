package config

import (
	"errors"
	"runtime"
	"time"
)

// ErrInvalidConfig is wrapped by Validate.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultToolTimeout   = 30 * time.Second
	DefaultChannelBuffer = 64
)

func DefaultSystemConfig() *SystemConfig {
	if runtime.GOOS == "windows" {
		return &SystemConfig{DataDirectory: GetDefaultDataDir()}
	}
	return &SystemConfig{
		DataDirectory: "~/.local/share/deskos",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Bridge: BridgeConfig{
			ToolTimeoutSeconds: int(DefaultToolTimeout / time.Second),
			ChannelBuffer:      DefaultChannelBuffer,
			DefaultFormat:      "mcp",
		},
		Plugins: PluginsConfig{
			WatchManifests: true,
			Autostart:      []string{"notepad"},
		},
		Windows: WindowsConfig{
			PersistLayout: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# deskos System Configuration
# Location: ~/.config/deskos/settings.toml
# This file uses TOML format: https://toml.io

# Directory where layouts, manifests and user config are stored
data_directory = "~/.local/share/deskos"
`
}

func GenerateUserConfigTemplate() string {
	return `# deskos User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[bridge]
# Seconds a tool call waits for the main context before failing
tool_timeout_seconds = 30

# Messages buffered per direction between main and worker
channel_buffer = 64

# Tool format returned by tools/list when none is requested
# One of: mcp, openai, openrouter, anthropic, ollama
default_format = "mcp"

[plugins]
# Directory scanned for component manifests (*.yaml)
# Empty means <data_directory>/manifests
manifest_dir = ""

# Re-announce components when a manifest changes
watch_manifests = true

# Plugins opened at startup
autostart = ["notepad"]

[windows]
# Remember window position and size between runs
persist_layout = true

[logging]
# debug, info, warn or error
level = "info"

# Log file; empty logs to stderr (or <data_directory>/deskos.log with DESKOS_DEBUG=1)
file = ""
`
}
