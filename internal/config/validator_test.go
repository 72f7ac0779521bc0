package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{"empty segment name", func(c *Config) { c.Segment.Name = "" }, "segment.name"},
		{"segment name with slash", func(c *Config) { c.Segment.Name = "a/b" }, "segment.name"},
		{"segment name too long", func(c *Config) { c.Segment.Name = strings.Repeat("s", 41) }, "segment.name"},
		{"segment too small", func(c *Config) { c.Segment.SizeBytes = 1024 }, "segment.size_bytes"},
		{"segment too large", func(c *Config) { c.Segment.SizeBytes = 2 << 30 }, "segment.size_bytes"},
		{"zero lock probe", func(c *Config) { c.Segment.LockProbeMs = 0 }, "segment.lock_probe_ms"},
		{"empty log name", func(c *Config) { c.Names.Log = "" }, "names.log"},
		{"duplicate object names", func(c *Config) { c.Names.Condition = c.Names.Mutex }, "names.condition"},
		{"unknown mode", func(c *Config) { c.Chat.Mode = "stack" }, "chat.mode"},
		{"ring without capacity", func(c *Config) { c.Chat.Capacity = 0 }, "chat.capacity"},
		{"blank exit command", func(c *Config) { c.Chat.ExitCommand = "  " }, "chat.exit_command"},
		{"unknown color", func(c *Config) { c.Chat.Color = "sometimes" }, "chat.color"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
		{"metrics addr without port", func(c *Config) { c.Metrics.Addr = "localhost" }, "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Validate() field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidate_AppendModeIgnoresCapacity(t *testing.T) {
	cfg := Default()
	cfg.Chat.Mode = "append"
	cfg.Chat.Capacity = 0
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidate_MetricsAddr(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Addr = ":9464"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	single := ValidationErrors{{Field: "chat.mode", Value: "x", Message: "bad"}}
	if got := single.Error(); got != "chat.mode: bad (got: x)" {
		t.Errorf("Error() = %q", got)
	}

	multi := ValidationErrors{
		{Field: "a", Value: 1, Message: "m1"},
		{Field: "b", Value: 2, Message: "m2"},
	}
	got := multi.Error()
	if !strings.HasPrefix(got, "2 validation errors:") {
		t.Errorf("Error() = %q, want count prefix", got)
	}
	if !strings.Contains(got, "1. a: m1") || !strings.Contains(got, "2. b: m2") {
		t.Errorf("Error() = %q, missing entries", got)
	}

	if (ValidationErrors{}).Error() != "" {
		t.Error("empty ValidationErrors should have empty message")
	}
}
