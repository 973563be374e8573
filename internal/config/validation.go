package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scrivener/internal/registry"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// IsWarning reports a non-fatal issue.
func (e *ValidationError) IsWarning() bool {
	return e.Warning
}

// Warnings returns only warning-level entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			out = append(out, err)
		}
	}
	return out
}

// Errors returns only error-level entries.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			out = append(out, err)
		}
	}
	return out
}

// HasErrors reports whether any entry is not a warning.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// Validate returns the fatal problems in c, or nil.
func (c *Config) Validate() error {
	errs := Check(c).Errors()
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Check returns every problem in c, warnings included.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validatePositioner(&c.Positioner)...)
	errs = append(errs, validateCursor(&c.Cursor)...)
	errs = append(errs, validateProfiles(c.Profiles)...)
	errs = append(errs, validatePlatform(&c.Platform)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateServer(&c.Server)...)
	errs = append(errs, validateFocus(&c.Focus)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors
	if e.StageMaxTries < 1 || e.StageMaxTries > 10 {
		errs = append(errs, *RangeError("engine.stage_max_tries", 1, 10))
	}
	if e.RetryInitialMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.retry_initial_ms",
			Message: "retry delay must be at least 1ms",
		})
	}
	if e.RetryMaxMs < e.RetryInitialMs {
		errs = append(errs, ValidationError{
			Field:   "engine.retry_max_ms",
			Message: "max retry delay cannot be below the initial delay",
		})
	}
	return errs
}

func validatePositioner(p *PositionerConfig) ValidationErrors {
	var errs ValidationErrors
	for _, r := range []struct {
		field string
		v     float64
	}{
		{"element_x", p.ElementX}, {"element_y", p.ElementY},
		{"window_x", p.WindowX}, {"window_y", p.WindowY},
		{"screen_x", p.ScreenX}, {"screen_y", p.ScreenY},
	} {
		if r.v < 0 || r.v > 1 {
			errs = append(errs, *RangeError("positioner."+r.field, 0, 1))
		}
	}
	if p.WindowTopMargin < 0 || p.WindowBottomMargin < 0 {
		errs = append(errs, ValidationError{
			Field:   "positioner.window_top_margin",
			Message: "window margins cannot be negative",
		})
	}
	if p.FallbackWidth <= 0 || p.FallbackHeight <= 0 {
		errs = append(errs, ValidationError{
			Field:   "positioner.fallback_width",
			Message: "fallback display must have a positive size",
		})
	}
	return errs
}

func validateCursor(c *CursorConfig) ValidationErrors {
	var errs ValidationErrors
	if c.Capacity < 1 || c.Capacity > 4096 {
		errs = append(errs, *RangeError("cursor.capacity", 1, 4096))
	}
	if c.MaxAgeSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "cursor.max_age_sec",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func validateProfiles(profiles map[string]TimingConfig) ValidationErrors {
	var errs ValidationErrors
	known := map[string]bool{"generic": true}
	for _, n := range registry.Default().Names() {
		known[strings.ToLower(n)] = true
	}

	for name, t := range profiles {
		field := "profiles." + name
		if !known[strings.ToLower(strings.TrimSpace(name))] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "no built-in profile has this name; the override is ignored",
				Warning: true,
			})
		}
		for _, v := range []int{t.ActivationSettleMs, t.ClickSettleMs, t.ClipboardSettleMs,
			t.CharDelayMs, t.LineDelayMs, t.ScriptSettleMs, t.StageTimeoutMs} {
			if v < 0 {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: "timings cannot be negative",
				})
				break
			}
		}
	}
	return errs
}

func validatePlatform(p *PlatformConfig) ValidationErrors {
	var errs ValidationErrors
	if p.CommandTimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "platform.command_timeout_sec",
			Message: "command timeout must be at least 1 second",
		})
	}
	switch p.Clipboard {
	case "auto", "xclip", "xsel", "wl-copy":
	default:
		errs = append(errs, ValidationError{
			Field:   "platform.clipboard",
			Message: fmt.Sprintf("invalid clipboard tool: %s (valid: auto, xclip, xsel, wl-copy)", p.Clipboard),
		})
	}
	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	var errs ValidationErrors
	if !j.Enabled {
		return nil
	}
	if j.Path == "" {
		errs = append(errs, *RequiredFieldError("journal.path"))
	} else {
		dir := filepath.Dir(expandPath(j.Path))
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			errs = append(errs, ValidationError{
				Field:   "journal.path",
				Message: fmt.Sprintf("parent path is not a directory: %s", dir),
			})
		}
		// a missing directory is created on open
	}
	if j.RetentionDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "journal.retention_days",
			Message: "retention cannot be negative",
		})
	}
	return errs
}

func validateServer(s *ServerConfig) ValidationErrors {
	var errs ValidationErrors
	if s.SocketPath == "" {
		errs = append(errs, *RequiredFieldError("server.socket_path"))
	}
	if _, err := s.SocketMode(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.permissions",
			Message: fmt.Sprintf("invalid octal mode: %s", s.Permissions),
		})
	}
	if s.ReadTimeoutSec < 1 || s.WriteTimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout_sec",
			Message: "timeouts must be at least 1 second",
		})
	}
	if s.MaxPayloadBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.max_payload_bytes",
			Message: "max payload must be positive",
		})
	}
	return errs
}

func validateFocus(f *FocusConfig) ValidationErrors {
	var errs ValidationErrors
	if !f.Enabled {
		return nil
	}
	if f.PollIntervalMs < 20 {
		errs = append(errs, ValidationError{
			Field:   "focus.poll_interval_ms",
			Message: "poll interval must be at least 20ms",
		})
	}
	if f.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "focus.debounce_ms",
			Message: "debounce cannot be negative",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
