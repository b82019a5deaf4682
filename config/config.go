package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type BridgeConfig struct {
	ToolTimeoutSeconds int    `toml:"tool_timeout_seconds"`
	ChannelBuffer      int    `toml:"channel_buffer"`
	DefaultFormat      string `toml:"default_format"`
}

type PluginsConfig struct {
	ManifestDir    string   `toml:"manifest_dir"`
	WatchManifests bool     `toml:"watch_manifests"`
	Autostart      []string `toml:"autostart"`
}

type WindowsConfig struct {
	PersistLayout bool `toml:"persist_layout"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type UserConfig struct {
	Bridge  BridgeConfig  `toml:"bridge"`
	Plugins PluginsConfig `toml:"plugins"`
	Windows WindowsConfig `toml:"windows"`
	Logging LoggingConfig `toml:"logging"`
}

// Config is the merged runtime configuration: system settings, user
// config and environment overrides.
type Config struct {
	DataDirectory string
	Bridge        BridgeConfig
	Plugins       PluginsConfig
	Windows       WindowsConfig
	Logging       LoggingConfig
	Debug         bool
}

const (
	EnvDataDir     = "DESKOS_DATA_DIR"
	EnvLogLevel    = "DESKOS_LOG_LEVEL"
	EnvToolTimeout = "DESKOS_TOOL_TIMEOUT"
	EnvDebug       = "DESKOS_DEBUG"
)

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// ToolTimeout is the deadline for one cross-context tool call.
func (c *Config) ToolTimeout() time.Duration {
	if c.Bridge.ToolTimeoutSeconds <= 0 {
		return DefaultToolTimeout
	}
	return time.Duration(c.Bridge.ToolTimeoutSeconds) * time.Second
}

// ManifestDir falls back to <data>/manifests when unset.
func (c *Config) ManifestDir() string {
	if c.Plugins.ManifestDir != "" {
		return ExpandPath(c.Plugins.ManifestDir)
	}
	return filepath.Join(c.DataDir(), "manifests")
}

// LogFile is empty unless a file is configured or debug is on.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return ExpandPath(c.Logging.File)
	}
	if c.Debug {
		return filepath.Join(c.DataDir(), "deskos.log")
	}
	return ""
}

func (c *Config) applyUser(u *UserConfig) {
	c.Bridge = u.Bridge
	c.Plugins = u.Plugins
	c.Windows = u.Windows
	c.Logging = u.Logging
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv(EnvDataDir); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
	if raw := os.Getenv(EnvToolTimeout); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			c.Bridge.ToolTimeoutSeconds = secs
		}
	}
	if CheckDebug() {
		c.Debug = true
		c.Logging.Level = "debug"
	}
}

func CheckDebug() bool {
	debug := strings.ToLower(os.Getenv(EnvDebug))
	return debug == "true" || debug == "1"
}

// Default returns the configuration used when no files exist.
func Default() *Config {
	cfg := &Config{DataDirectory: DefaultSystemConfig().DataDirectory}
	cfg.applyUser(DefaultUserConfig())
	return cfg
}

// Load reads settings.toml and the user config it points at, creating
// both from templates on first run, then applies environment overrides.
// DESKOS_DATA_DIR takes effect before the user config is read.
func Load() (*Config, error) {
	cfg := Default()

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory
	if dataDir := os.Getenv(EnvDataDir); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUser(userCfg)
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the user-facing sections back to <data>/config.toml.
func (c *Config) Save() error {
	return SaveUserConfig(&UserConfig{
		Bridge:  c.Bridge,
		Plugins: c.Plugins,
		Windows: c.Windows,
		Logging: c.Logging,
	}, c.DataDir())
}

// Validate rejects values the runtime cannot start with.
func (c *Config) Validate() error {
	if c.DataDirectory == "" {
		return fmt.Errorf("%w: data_directory is empty", ErrInvalidConfig)
	}
	if c.Bridge.ChannelBuffer < 0 {
		return fmt.Errorf("%w: bridge.channel_buffer must not be negative", ErrInvalidConfig)
	}
	switch c.Bridge.DefaultFormat {
	case "", "mcp", "openai", "openrouter", "anthropic", "ollama":
	default:
		return fmt.Errorf("%w: unknown bridge.default_format %q", ErrInvalidConfig, c.Bridge.DefaultFormat)
	}
	if _, ok := parseLevel(c.Logging.Level); !ok {
		return fmt.Errorf("%w: unknown logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
