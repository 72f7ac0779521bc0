package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
)

// resetViper isolates a test from global viper state and the user's
// config directory.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	// godotenv reads .env from the working directory.
	t.Chdir(t.TempDir())
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Segment.Name != "shared_memory" {
		t.Errorf("Segment.Name = %q, want %q", cfg.Segment.Name, "shared_memory")
	}
	if cfg.Segment.SizeBytes != 65536 {
		t.Errorf("Segment.SizeBytes = %d, want 65536", cfg.Segment.SizeBytes)
	}
	if cfg.Names.Participants != "users" {
		t.Errorf("Names.Participants = %q, want %q", cfg.Names.Participants, "users")
	}
	if cfg.Names.Sequence != "messages" {
		t.Errorf("Names.Sequence = %q, want %q", cfg.Names.Sequence, "messages")
	}
	if cfg.Chat.LogMode() != chatlog.ModeRing {
		t.Errorf("Chat.LogMode() = %q, want %q", cfg.Chat.LogMode(), chatlog.ModeRing)
	}
	if cfg.Chat.Capacity != 10 {
		t.Errorf("Chat.Capacity = %d, want 10", cfg.Chat.Capacity)
	}
	if cfg.Chat.ExitCommand != "exit" {
		t.Errorf("Chat.ExitCommand = %q, want %q", cfg.Chat.ExitCommand, "exit")
	}
	if cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be false by default")
	}
	if cfg.Segment.LockProbe() != time.Second {
		t.Errorf("Segment.LockProbe() = %v, want 1s", cfg.Segment.LockProbe())
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default().Validate() = %v, want no errors", errs)
	}
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)
	if err := Init(""); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Segment.Name != "shared_memory" {
		t.Errorf("Segment.Name = %q, want default", cfg.Segment.Name)
	}
	if viper.ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want none", viper.ConfigFileUsed())
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "shmchat.yaml")
	content := `segment:
  name: team
  size_bytes: 131072
chat:
  mode: append
  timestamps: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Segment.Name != "team" {
		t.Errorf("Segment.Name = %q, want %q", cfg.Segment.Name, "team")
	}
	if cfg.Segment.SizeBytes != 131072 {
		t.Errorf("Segment.SizeBytes = %d, want 131072", cfg.Segment.SizeBytes)
	}
	if cfg.Chat.LogMode() != chatlog.ModeAppend {
		t.Errorf("Chat.Mode = %q, want append", cfg.Chat.Mode)
	}
	if !cfg.Chat.Timestamps {
		t.Error("Chat.Timestamps should be true")
	}
	// Unset keys keep their defaults.
	if cfg.Names.Log != "history" {
		t.Errorf("Names.Log = %q, want %q", cfg.Names.Log, "history")
	}
}

func TestInit_MissingExplicitFile(t *testing.T) {
	resetViper(t)
	if err := Init(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Init() with a missing explicit config file should fail")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("SHMCHAT_SEGMENT_NAME", "from_env")
	t.Setenv("SHMCHAT_CHAT_CAPACITY", "25")

	if err := Init(""); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Segment.Name != "from_env" {
		t.Errorf("Segment.Name = %q, want %q", cfg.Segment.Name, "from_env")
	}
	if cfg.Chat.Capacity != 25 {
		t.Errorf("Chat.Capacity = %d, want 25", cfg.Chat.Capacity)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	resetViper(t)
	if err := os.WriteFile(".env", []byte("SHMCHAT_METRICS_ADDR=127.0.0.1:9464\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("SHMCHAT_METRICS_ADDR") })

	if err := Init(""); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9464" {
		t.Errorf("Metrics.Addr = %q, want value from .env", cfg.Metrics.Addr)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	resetViper(t)
	t.Setenv("SHMCHAT_CHAT_MODE", "stack")

	if err := Init(""); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, err := Load()
	if err == nil {
		t.Fatal("Load() should reject an unknown chat mode")
	}
	if _, ok := err.(ValidationErrors); !ok {
		t.Errorf("Load() error type = %T, want ValidationErrors", err)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/shmchat" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/shmchat")
		}
		if got := ConfigFile(); got != "/custom/config/shmchat/config.yaml" {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		want := filepath.Join(home, ".config", "shmchat")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestLoggingConfig_ResolveDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	home, _ := os.UserHomeDir()

	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"empty uses config dir", "", "/xdg/shmchat/logs"},
		{"absolute", "/var/log/shmchat", "/var/log/shmchat"},
		{"home relative", "~/logs", filepath.Join(home, "logs")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := LoggingConfig{Dir: tt.dir}
			if got := c.ResolveDir(); got != tt.want {
				t.Errorf("ResolveDir() = %q, want %q", got, tt.want)
			}
		})
	}
}
