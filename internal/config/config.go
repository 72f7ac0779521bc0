package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/errors"
)

// EnvPrefix prefixes environment overrides, e.g. SHMCHAT_SEGMENT_NAME for
// segment.name.
const EnvPrefix = "SHMCHAT"

// Config represents the complete shmchat configuration
type Config struct {
	Segment SegmentConfig `mapstructure:"segment" yaml:"segment"`
	Names   NamesConfig   `mapstructure:"names" yaml:"names"`
	Chat    ChatConfig    `mapstructure:"chat" yaml:"chat"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// SegmentConfig locates and sizes the shared segment
type SegmentConfig struct {
	// Name is the backing object name; every participant of one chat uses the same name.
	Name string `mapstructure:"name" yaml:"name"`
	// SizeBytes is the capacity of a newly created segment. An existing segment keeps its size.
	SizeBytes int `mapstructure:"size_bytes" yaml:"size_bytes"`
	// Dir overrides the backing directory (default /dev/shm).
	Dir string `mapstructure:"dir" yaml:"dir"`
	// LockProbeMs is how often a blocked lock checks whether its holder is still alive.
	LockProbeMs int `mapstructure:"lock_probe_ms" yaml:"lock_probe_ms"`
}

// NamesConfig names the shared objects inside the segment
type NamesConfig struct {
	Log          string `mapstructure:"log" yaml:"log"`
	Mutex        string `mapstructure:"mutex" yaml:"mutex"`
	Condition    string `mapstructure:"condition" yaml:"condition"`
	Participants string `mapstructure:"participants" yaml:"participants"`
	Sequence     string `mapstructure:"sequence" yaml:"sequence"`
}

// ChatConfig controls the message log and the front-end
type ChatConfig struct {
	// Mode is "ring" (keep the newest Capacity records) or "append" (keep
	// everything until the segment is full).
	Mode string `mapstructure:"mode" yaml:"mode"`
	// Capacity is the ring size. Ignored in append mode.
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
	// ExitCommand ends the session when typed on a line by itself.
	ExitCommand string `mapstructure:"exit_command" yaml:"exit_command"`
	// TUI runs the full-screen interface instead of the line console.
	TUI bool `mapstructure:"tui" yaml:"tui"`
	// AltScreen runs the full-screen interface in the terminal's alternate screen.
	AltScreen bool `mapstructure:"alt_screen" yaml:"alt_screen"`
	// Timestamps prefixes each rendered record with its time.
	Timestamps bool `mapstructure:"timestamps" yaml:"timestamps"`
	// Color is "auto", "always", or "never".
	Color string `mapstructure:"color" yaml:"color"`
}

// LoggingConfig controls the diagnostic log. Logs never go to stdout.
type LoggingConfig struct {
	// Enabled writes a log file; when false only warnings go to stderr.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is debug, info, warn, or error.
	Level string `mapstructure:"level" yaml:"level"`
	// Dir holds shmchat.log. Empty means ConfigDir()/logs.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the size at which the log rotates.
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9464". Empty disables it.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Segment: SegmentConfig{
			Name:        "shared_memory",
			SizeBytes:   64 * 1024,
			LockProbeMs: 1000,
		},
		Names: NamesConfig{
			Log:          "history",
			Mutex:        "mutex",
			Condition:    "condition",
			Participants: "users",
			Sequence:     "messages",
		},
		Chat: ChatConfig{
			Mode:        string(chatlog.ModeRing),
			Capacity:    chatlog.DefaultCapacity,
			ExitCommand: "exit",
			Color:       "auto",
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 2,
		},
	}
}

// LockProbe returns the lock liveness probe interval as a Duration
func (c *SegmentConfig) LockProbe() time.Duration {
	return time.Duration(c.LockProbeMs) * time.Millisecond
}

// LogMode returns the configured retention mode
func (c *ChatConfig) LogMode() chatlog.Mode {
	return chatlog.Mode(c.Mode)
}

// ResolveDir returns the log directory, defaulting under ConfigDir
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}
	if strings.HasPrefix(c.Dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, c.Dir[2:])
		}
	}
	return c.Dir
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Segment defaults
	viper.SetDefault("segment.name", defaults.Segment.Name)
	viper.SetDefault("segment.size_bytes", defaults.Segment.SizeBytes)
	viper.SetDefault("segment.dir", defaults.Segment.Dir)
	viper.SetDefault("segment.lock_probe_ms", defaults.Segment.LockProbeMs)

	// Object name defaults
	viper.SetDefault("names.log", defaults.Names.Log)
	viper.SetDefault("names.mutex", defaults.Names.Mutex)
	viper.SetDefault("names.condition", defaults.Names.Condition)
	viper.SetDefault("names.participants", defaults.Names.Participants)
	viper.SetDefault("names.sequence", defaults.Names.Sequence)

	// Chat defaults
	viper.SetDefault("chat.mode", defaults.Chat.Mode)
	viper.SetDefault("chat.capacity", defaults.Chat.Capacity)
	viper.SetDefault("chat.exit_command", defaults.Chat.ExitCommand)
	viper.SetDefault("chat.tui", defaults.Chat.TUI)
	viper.SetDefault("chat.alt_screen", defaults.Chat.AltScreen)
	viper.SetDefault("chat.timestamps", defaults.Chat.Timestamps)
	viper.SetDefault("chat.color", defaults.Chat.Color)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Metrics defaults
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Init prepares viper: defaults, the config file search path, a .env file
// in the working directory, and SHMCHAT_* environment overrides. A missing
// config file is not an error.
func Init(cfgFile string) error {
	SetDefaults()

	// .env values never override variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(EnvPrefix)
	// SHMCHAT_CHAT_MODE for chat.mode
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Load unmarshals and validates the configuration viper has assembled
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shmchat")
	}
	// Fall back to ~/.config/shmchat
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shmchat"
	}
	return filepath.Join(home, ".config", "shmchat")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidModes returns the list of valid log retention modes
func ValidModes() []string {
	return []string{string(chatlog.ModeRing), string(chatlog.ModeAppend)}
}

// ValidColorModes returns the list of valid color settings
func ValidColorModes() []string {
	return []string{"auto", "always", "never"}
}
