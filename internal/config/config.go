// Package config handles configuration loading, validation and hot reload
// for scrivener.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"scrivener/internal/axtree"
	"scrivener/internal/cursor"
	"scrivener/internal/engine"
	"scrivener/internal/focus"
	"scrivener/internal/logging"
	"scrivener/internal/platform"
	"scrivener/internal/position"
	"scrivener/internal/registry"
	"scrivener/internal/server"
)

// Version is the current configuration schema version.
const Version = 1

const envPrefix = "SCRIVENER_"

// Config holds the complete configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	Engine     EngineConfig     `toml:"engine" json:"engine" yaml:"engine"`
	Positioner PositionerConfig `toml:"positioner" json:"positioner" yaml:"positioner"`
	Cursor     CursorConfig     `toml:"cursor" json:"cursor" yaml:"cursor"`

	// Profiles overrides timing per built-in profile, keyed by profile
	// name. The key "generic" applies to unknown applications.
	Profiles map[string]TimingConfig `toml:"profiles" json:"profiles" yaml:"profiles"`

	Platform PlatformConfig `toml:"platform" json:"platform" yaml:"platform"`
	Journal  JournalConfig  `toml:"journal" json:"journal" yaml:"journal"`
	Metrics  MetricsConfig  `toml:"metrics" json:"metrics" yaml:"metrics"`
	Server   ServerConfig   `toml:"server" json:"server" yaml:"server"`
	Focus    FocusConfig    `toml:"focus" json:"focus" yaml:"focus"`
	Logging  LoggingConfig  `toml:"logging" json:"logging" yaml:"logging"`
}

// EngineConfig tunes stage retries.
type EngineConfig struct {
	// StageMaxTries bounds the tries of one backend before moving on.
	StageMaxTries  int `toml:"stage_max_tries" json:"stage_max_tries" yaml:"stage_max_tries"`
	RetryInitialMs int `toml:"retry_initial_ms" json:"retry_initial_ms" yaml:"retry_initial_ms"`
	RetryMaxMs     int `toml:"retry_max_ms" json:"retry_max_ms" yaml:"retry_max_ms"`
}

// PositionerConfig holds the click-point ratios and margins.
type PositionerConfig struct {
	ElementX           float64 `toml:"element_x" json:"element_x" yaml:"element_x"`
	ElementY           float64 `toml:"element_y" json:"element_y" yaml:"element_y"`
	WindowTopMargin    float64 `toml:"window_top_margin" json:"window_top_margin" yaml:"window_top_margin"`
	WindowBottomMargin float64 `toml:"window_bottom_margin" json:"window_bottom_margin" yaml:"window_bottom_margin"`
	WindowX            float64 `toml:"window_x" json:"window_x" yaml:"window_x"`
	WindowY            float64 `toml:"window_y" json:"window_y" yaml:"window_y"`
	ScreenX            float64 `toml:"screen_x" json:"screen_x" yaml:"screen_x"`
	ScreenY            float64 `toml:"screen_y" json:"screen_y" yaml:"screen_y"`

	// FallbackWidth and FallbackHeight describe the display assumed when
	// the OS cannot report one.
	FallbackWidth  float64 `toml:"fallback_width" json:"fallback_width" yaml:"fallback_width"`
	FallbackHeight float64 `toml:"fallback_height" json:"fallback_height" yaml:"fallback_height"`
}

// CursorConfig configures cursor memory.
type CursorConfig struct {
	Capacity int `toml:"capacity" json:"capacity" yaml:"capacity"`
	// MaxAgeSec expires entries; 0 keeps them until overwritten.
	MaxAgeSec int `toml:"max_age_sec" json:"max_age_sec" yaml:"max_age_sec"`
}

// TimingConfig overrides a profile's pacing. Zero fields keep the built-in
// value.
type TimingConfig struct {
	ActivationSettleMs int `toml:"activation_settle_ms" json:"activation_settle_ms" yaml:"activation_settle_ms"`
	ClickSettleMs      int `toml:"click_settle_ms" json:"click_settle_ms" yaml:"click_settle_ms"`
	ClipboardSettleMs  int `toml:"clipboard_settle_ms" json:"clipboard_settle_ms" yaml:"clipboard_settle_ms"`
	CharDelayMs        int `toml:"char_delay_ms" json:"char_delay_ms" yaml:"char_delay_ms"`
	LineDelayMs        int `toml:"line_delay_ms" json:"line_delay_ms" yaml:"line_delay_ms"`
	ScriptSettleMs     int `toml:"script_settle_ms" json:"script_settle_ms" yaml:"script_settle_ms"`
	StageTimeoutMs     int `toml:"stage_timeout_ms" json:"stage_timeout_ms" yaml:"stage_timeout_ms"`
}

// PlatformConfig selects the OS helpers.
type PlatformConfig struct {
	CommandTimeoutSec int    `toml:"command_timeout_sec" json:"command_timeout_sec" yaml:"command_timeout_sec"`
	Xdotool           string `toml:"xdotool" json:"xdotool" yaml:"xdotool"`
	Osascript         string `toml:"osascript" json:"osascript" yaml:"osascript"`
	// Clipboard is "auto", "xclip", "xsel" or "wl-copy".
	Clipboard string `toml:"clipboard" json:"clipboard" yaml:"clipboard"`
}

// JournalConfig configures the delivery journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`
	// RetentionDays prunes older entries at startup; 0 keeps everything.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// MetricsConfig configures the Prometheus endpoint of the daemon.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" json:"namespace" yaml:"namespace"`
	Runtime   bool   `toml:"runtime" json:"runtime" yaml:"runtime"`
}

// ServerConfig configures the local delivery daemon.
type ServerConfig struct {
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
	// Permissions is the octal mode of the socket file.
	Permissions     string `toml:"permissions" json:"permissions" yaml:"permissions"`
	ReadTimeoutSec  int    `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec"`
	MaxPayloadBytes int64  `toml:"max_payload_bytes" json:"max_payload_bytes" yaml:"max_payload_bytes"`
}

// FocusConfig configures the focus watcher.
type FocusConfig struct {
	Enabled        bool     `toml:"enabled" json:"enabled" yaml:"enabled"`
	PollIntervalMs int      `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
	DebounceMs     int      `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
	Ignored        []string `toml:"ignored" json:"ignored" yaml:"ignored"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	paths := GetDefaultPaths()
	eng := engine.DefaultOptions()
	pos := position.DefaultConfig()
	cur := cursor.DefaultConfig()
	plat := platform.DefaultOptions()
	fc := focus.DefaultConfig()
	lc := logging.DefaultConfig()

	return &Config{
		Version: Version,
		Engine: EngineConfig{
			StageMaxTries:  int(eng.StageMaxTries),
			RetryInitialMs: int(eng.RetryInitial / time.Millisecond),
			RetryMaxMs:     int(eng.RetryMax / time.Millisecond),
		},
		Positioner: PositionerConfig{
			ElementX:           pos.ElementX,
			ElementY:           pos.ElementY,
			WindowTopMargin:    pos.WindowTopMargin,
			WindowBottomMargin: pos.WindowBottomMargin,
			WindowX:            pos.WindowX,
			WindowY:            pos.WindowY,
			ScreenX:            pos.ScreenX,
			ScreenY:            pos.ScreenY,
			FallbackWidth:      pos.FallbackScreen.Width,
			FallbackHeight:     pos.FallbackScreen.Height,
		},
		Cursor: CursorConfig{
			Capacity:  cur.Capacity,
			MaxAgeSec: int(cur.MaxAge / time.Second),
		},
		Profiles: map[string]TimingConfig{},
		Platform: PlatformConfig{
			CommandTimeoutSec: int(plat.CommandTimeout / time.Second),
			Xdotool:           plat.Xdotool,
			Osascript:         plat.Osascript,
			Clipboard:         plat.Clipboard,
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          paths.JournalFile,
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "scrivener",
		},
		Server: ServerConfig{
			SocketPath:      paths.SocketPath,
			Permissions:     "0600",
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 120,
			MaxPayloadBytes: 1 << 20,
		},
		Focus: FocusConfig{
			Enabled:        true,
			PollIntervalMs: int(fc.PollInterval / time.Millisecond),
			DebounceMs:     int(fc.Debounce / time.Millisecond),
			Ignored:        fc.Ignored,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     lc.Output,
			FilePath:   lc.FilePath,
			MaxSizeMB:  int(lc.MaxSize),
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAge,
			Compress:   lc.Compress,
		},
	}
}

// ApplyEnvOverrides applies SCRIVENER_* environment variables. Malformed
// numeric values are ignored and left to validation.
func (c *Config) ApplyEnvOverrides() {
	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_OUTPUT", &c.Logging.Output)
	str("LOG_PATH", &c.Logging.FilePath)
	str("SOCKET_PATH", &c.Server.SocketPath)
	str("JOURNAL_PATH", &c.Journal.Path)
	flag("JOURNAL_ENABLED", &c.Journal.Enabled)
	flag("METRICS_ENABLED", &c.Metrics.Enabled)
	flag("FOCUS_ENABLED", &c.Focus.Enabled)
	str("XDOTOOL", &c.Platform.Xdotool)
	str("OSASCRIPT", &c.Platform.Osascript)
	str("CLIPBOARD", &c.Platform.Clipboard)
	num("STAGE_MAX_TRIES", &c.Engine.StageMaxTries)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Profiles = make(map[string]TimingConfig, len(c.Profiles))
	for k, v := range c.Profiles {
		clone.Profiles[k] = v
	}
	clone.Focus.Ignored = append([]string(nil), c.Focus.Ignored...)
	return &clone
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// EngineOptions converts the engine, positioner and cursor sections. Logger
// and observers are left for the caller.
func (c *Config) EngineOptions() engine.Options {
	o := engine.DefaultOptions()
	if c.Engine.StageMaxTries > 0 {
		o.StageMaxTries = uint(c.Engine.StageMaxTries)
	}
	if c.Engine.RetryInitialMs > 0 {
		o.RetryInitial = ms(c.Engine.RetryInitialMs)
	}
	if c.Engine.RetryMaxMs > 0 {
		o.RetryMax = ms(c.Engine.RetryMaxMs)
	}
	o.Positioner = c.Positioner.Settings()
	o.Cursor = c.Cursor.Settings()
	return o
}

// Settings converts the section into positioner settings.
func (p PositionerConfig) Settings() position.Config {
	return position.Config{
		ElementX:           p.ElementX,
		ElementY:           p.ElementY,
		WindowTopMargin:    p.WindowTopMargin,
		WindowBottomMargin: p.WindowBottomMargin,
		WindowX:            p.WindowX,
		WindowY:            p.WindowY,
		ScreenX:            p.ScreenX,
		ScreenY:            p.ScreenY,
		FallbackScreen:     axtree.Rect{Width: p.FallbackWidth, Height: p.FallbackHeight},
	}
}

// Settings converts the section into cursor store settings.
func (cc CursorConfig) Settings() cursor.Config {
	return cursor.Config{Capacity: cc.Capacity, MaxAge: time.Duration(cc.MaxAgeSec) * time.Second}
}

// Timing converts an override.
func (t TimingConfig) Timing() registry.Timing {
	return registry.Timing{
		ActivationSettle: ms(t.ActivationSettleMs),
		ClickSettle:      ms(t.ClickSettleMs),
		ClipboardSettle:  ms(t.ClipboardSettleMs),
		CharDelay:        ms(t.CharDelayMs),
		LineDelay:        ms(t.LineDelayMs),
		ScriptSettle:     ms(t.ScriptSettleMs),
		StageTimeout:     ms(t.StageTimeoutMs),
	}
}

// Registry builds the profile table with the configured overrides.
func (c *Config) Registry() *registry.Registry {
	overrides := make(map[string]registry.Timing, len(c.Profiles))
	for name, t := range c.Profiles {
		overrides[name] = t.Timing()
	}
	return registry.New(overrides)
}

// Options converts the section into platform options.
func (p PlatformConfig) Options(log *logging.Logger) platform.Options {
	o := platform.DefaultOptions()
	if p.CommandTimeoutSec > 0 {
		o.CommandTimeout = time.Duration(p.CommandTimeoutSec) * time.Second
	}
	if p.Xdotool != "" {
		o.Xdotool = p.Xdotool
	}
	if p.Osascript != "" {
		o.Osascript = p.Osascript
	}
	if p.Clipboard != "" {
		o.Clipboard = p.Clipboard
	}
	o.Logger = log
	return o
}

// Settings converts the section into focus watcher settings.
func (f FocusConfig) Settings() focus.Config {
	return focus.Config{
		PollInterval: ms(f.PollIntervalMs),
		Debounce:     ms(f.DebounceMs),
		Ignored:      append([]string(nil), f.Ignored...),
	}
}

// Settings converts the section into logging settings.
func (l LoggingConfig) Settings() (*logging.Config, error) {
	lc := logging.DefaultConfig()
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = format
	if l.Output != "" {
		lc.Output = strings.ToLower(l.Output)
	}
	if l.FilePath != "" {
		lc.FilePath = expandPath(l.FilePath)
	}
	if l.MaxSizeMB > 0 {
		lc.MaxSize = int64(l.MaxSizeMB)
	}
	lc.MaxBackups = l.MaxBackups
	lc.MaxAge = l.MaxAgeDays
	lc.Compress = l.Compress
	return lc, nil
}

// ResolvedPath returns Path with a leading "~/" expanded.
func (j JournalConfig) ResolvedPath() string {
	return expandPath(j.Path)
}

// Cutoff returns the oldest start time kept at now. The boolean is false
// when entries are kept forever.
func (j JournalConfig) Cutoff(now time.Time) (time.Time, bool) {
	if j.RetentionDays <= 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -j.RetentionDays), true
}

// Settings converts the section into listener settings.
func (s ServerConfig) Settings() (server.Config, error) {
	mode, err := s.SocketMode()
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		SocketPath:      expandPath(s.SocketPath),
		Mode:            mode,
		ReadTimeout:     time.Duration(s.ReadTimeoutSec) * time.Second,
		WriteTimeout:    time.Duration(s.WriteTimeoutSec) * time.Second,
		MaxPayloadBytes: s.MaxPayloadBytes,
	}, nil
}

// SocketMode parses Permissions.
func (s ServerConfig) SocketMode() (os.FileMode, error) {
	m, err := strconv.ParseUint(s.Permissions, 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(m), nil
}
