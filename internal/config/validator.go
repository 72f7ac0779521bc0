package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "segment.size_bytes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Bounds
const (
	maxSegmentBytes = 1 << 30 // 1GiB
	maxLogSizeMB    = 1000
	maxLockProbeMs  = 60_000
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSegment()...)
	errors = append(errors, c.validateNames()...)
	errors = append(errors, c.validateChat()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

func validateObjectName(field, name string) []ValidationError {
	if name == "" {
		return []ValidationError{{Field: field, Value: name, Message: "must not be empty"}}
	}
	if len(name) > shm.MaxObjectName {
		return []ValidationError{{Field: field, Value: name, Message: fmt.Sprintf("must be at most %d bytes", shm.MaxObjectName)}}
	}
	if strings.ContainsAny(name, "/\x00") {
		return []ValidationError{{Field: field, Value: name, Message: "must not contain '/' or NUL"}}
	}
	return nil
}

// validateSegment validates the SegmentConfig
func (c *Config) validateSegment() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateObjectName("segment.name", c.Segment.Name)...)

	if c.Segment.SizeBytes < shm.MinSegmentSize {
		errors = append(errors, ValidationError{
			Field:   "segment.size_bytes",
			Value:   c.Segment.SizeBytes,
			Message: fmt.Sprintf("must be at least %d", shm.MinSegmentSize),
		})
	}
	if c.Segment.SizeBytes > maxSegmentBytes {
		errors = append(errors, ValidationError{
			Field:   "segment.size_bytes",
			Value:   c.Segment.SizeBytes,
			Message: fmt.Sprintf("exceeds maximum of %d", maxSegmentBytes),
		})
	}

	if c.Segment.LockProbeMs <= 0 || c.Segment.LockProbeMs > maxLockProbeMs {
		errors = append(errors, ValidationError{
			Field:   "segment.lock_probe_ms",
			Value:   c.Segment.LockProbeMs,
			Message: fmt.Sprintf("must be between 1 and %d", maxLockProbeMs),
		})
	}

	return errors
}

// validateNames validates the NamesConfig
func (c *Config) validateNames() []ValidationError {
	var errors []ValidationError

	fields := []struct {
		field string
		name  string
	}{
		{"names.log", c.Names.Log},
		{"names.mutex", c.Names.Mutex},
		{"names.condition", c.Names.Condition},
		{"names.participants", c.Names.Participants},
		{"names.sequence", c.Names.Sequence},
	}

	seen := make(map[string]string)
	for _, f := range fields {
		errors = append(errors, validateObjectName(f.field, f.name)...)
		if f.name == "" {
			continue
		}
		// Two objects sharing a directory name would alias each other.
		if prev, ok := seen[f.name]; ok {
			errors = append(errors, ValidationError{
				Field:   f.field,
				Value:   f.name,
				Message: fmt.Sprintf("duplicates %s", prev),
			})
			continue
		}
		seen[f.name] = f.field
	}

	return errors
}

// validateChat validates the ChatConfig
func (c *Config) validateChat() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidModes(), c.Chat.Mode) {
		errors = append(errors, ValidationError{
			Field:   "chat.mode",
			Value:   c.Chat.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}

	if c.Chat.Mode == string(chatlog.ModeRing) && c.Chat.Capacity <= 0 {
		errors = append(errors, ValidationError{
			Field:   "chat.capacity",
			Value:   c.Chat.Capacity,
			Message: "must be positive in ring mode",
		})
	}

	if strings.TrimSpace(c.Chat.ExitCommand) == "" {
		errors = append(errors, ValidationError{
			Field:   "chat.exit_command",
			Value:   c.Chat.ExitCommand,
			Message: "must not be blank",
		})
	}

	if !slices.Contains(ValidColorModes(), c.Chat.Color) {
		errors = append(errors, ValidationError{
			Field:   "chat.color",
			Value:   c.Chat.Color,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidColorModes(), ", ")),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	if c.Metrics.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be host:port",
		}}
	}
	return nil
}
