package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string

	// Fixed display width for the now command (0 disables padding)
	OutputWidth int

	// Marquee scrolling for now output longer than OutputWidth
	MarqueeEnabled   bool
	MarqueeSpeed     int // characters per second
	MarqueeSeparator string

	// Directory holding the catalog, session snapshot and socket
	DataDir string

	// Control socket path, defaults to <DataDir>/tapedeck.sock
	SocketPath string

	Player      PlayerConfig
	Persistence PersistenceConfig
}

// PlayerConfig tunes the audio engine and playback session
type PlayerConfig struct {
	SampleRate       int
	ProgressInterval time.Duration
	LoadTimeout      time.Duration
	RestartThreshold time.Duration
	MaxAutoSkips     int // 0 means the queue length
}

// PersistenceConfig controls how often the session is written to disk
type PersistenceConfig struct {
	SaveInterval    time.Duration
	PersistInterval time.Duration
}

var envReplacer = strings.NewReplacer(".", "_")

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := newViper()

	// Config file locations (in order of precedence)
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")

	// Read config file (optional - don't fail if missing)
	_ = v.ReadInConfig()

	return fromViper(v), nil
}

// newViper returns a viper instance with defaults and environment binding
func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	// TAPEDECK_PLAYER_LOAD_TIMEOUT overrides player.load_timeout
	v.SetEnvPrefix("TAPEDECK")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", 2)
	v.SetDefault("marquee_separator", " • ")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("socket_path", "")

	v.SetDefault("player.sample_rate", 44100)
	v.SetDefault("player.progress_interval", 250*time.Millisecond)
	v.SetDefault("player.load_timeout", 10*time.Second)
	v.SetDefault("player.restart_threshold", 3*time.Second)
	v.SetDefault("player.max_auto_skips", 0)

	v.SetDefault("persistence.save_interval", 30*time.Second)
	v.SetDefault("persistence.persist_interval", 2*time.Second)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		OutputFormat:     v.GetString("output_format"),
		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
		DataDir:          expandHome(v.GetString("data_dir")),
		SocketPath:       expandHome(v.GetString("socket_path")),
		Player: PlayerConfig{
			SampleRate:       v.GetInt("player.sample_rate"),
			ProgressInterval: v.GetDuration("player.progress_interval"),
			LoadTimeout:      v.GetDuration("player.load_timeout"),
			RestartThreshold: v.GetDuration("player.restart_threshold"),
			MaxAutoSkips:     v.GetInt("player.max_auto_skips"),
		},
		Persistence: PersistenceConfig{
			SaveInterval:    v.GetDuration("persistence.save_interval"),
			PersistInterval: v.GetDuration("persistence.persist_interval"),
		},
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.DataDir, "tapedeck.sock")
	}

	return cfg
}

// defaultDataDir returns ~/.local/share/tapedeck
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "tapedeck")
}

// expandHome replaces a leading ~/ with the user's home directory
func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "tapedeck")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	return c.SaveAs(filepath.Join(getConfigDir(), "config.yaml"))
}

// SaveAs writes configuration to configFile
func (c *Config) SaveAs(configFile string) error {
	v := viper.New()

	// Set values in viper
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)
	v.Set("data_dir", c.DataDir)
	v.Set("socket_path", c.SocketPath)
	v.Set("player.sample_rate", c.Player.SampleRate)
	v.Set("player.progress_interval", c.Player.ProgressInterval.String())
	v.Set("player.load_timeout", c.Player.LoadTimeout.String())
	v.Set("player.restart_threshold", c.Player.RestartThreshold.String())
	v.Set("player.max_auto_skips", c.Player.MaxAutoSkips)
	v.Set("persistence.save_interval", c.Persistence.SaveInterval.String())
	v.Set("persistence.persist_interval", c.Persistence.PersistInterval.String())

	// Write to file
	return v.WriteConfigAs(configFile)
}

// LoadFile reads configuration from configFile only, applying defaults and
// environment overrides
func LoadFile(configFile string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return fromViper(v), nil
}
